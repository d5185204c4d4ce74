// Package domain defines the run log model and the owner-scoped business logic around it.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrRunNotFound is returned when the owner has no run with the given id.
	ErrRunNotFound = errors.New("run not found")
	// ErrUnauthenticated is returned when an operation is attempted without an owner identity.
	ErrUnauthenticated = errors.New("not authenticated")
)

// RunRepository captures persistence operations. Every call is scoped to one owner.
type RunRepository interface {
	// List returns the owner's runs, most recent date first.
	List(ctx context.Context, ownerID string) ([]Run, error)
	Get(ctx context.Context, ownerID, runID string) (*Run, error)
	Insert(ctx context.Context, run Run) error
	// Update replaces the stored run matching run.UserID and run.ID. It reports false when no row matched.
	Update(ctx context.Context, run Run) (bool, error)
	// Delete removes exactly one run. It reports false when no row matched.
	Delete(ctx context.Context, ownerID, runID string) (bool, error)
}

// Service orchestrates run workflows.
type Service struct {
	repo RunRepository
	now  func() time.Time
}

// ServiceOption configures optional behaviour for the Service.
type ServiceOption func(*Service)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs a Service.
func NewService(repo RunRepository, opts ...ServiceOption) *Service {
	s := &Service{
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListRuns fetches the owner's runs and applies the requested ordering.
func (s *Service) ListRuns(ctx context.Context, ownerID string, spec SortSpec) ([]Run, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	runs, err := s.repo.List(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	if !spec.IsDefault() {
		SortRuns(runs, spec)
	}
	return runs, nil
}

// GetRun fetches by ID.
func (s *Service) GetRun(ctx context.Context, ownerID, runID string) (*Run, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	run, err := s.repo.Get(ctx, ownerID, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// CreateRun validates the input and stores a new run owned by ownerID.
func (s *Service) CreateRun(ctx context.Context, ownerID string, input RunInput) (*Run, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	input = input.Normalize()
	if errs := input.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	now := s.now().UTC()
	run := Run{
		ID:        uuid.NewString(),
		UserID:    ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	input.Apply(&run)

	if err := s.repo.Insert(ctx, run); err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &run, nil
}

// UpdateRun replaces every editable field of an existing run.
func (s *Service) UpdateRun(ctx context.Context, ownerID, runID string, input RunInput) (*Run, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	input = input.Normalize()
	if errs := input.Validate(); len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}

	existing, err := s.repo.Get(ctx, ownerID, runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if existing == nil {
		return nil, ErrRunNotFound
	}

	updated := *existing
	input.Apply(&updated)
	updated.UpdatedAt = s.now().UTC()

	ok, err := s.repo.Update(ctx, updated)
	if err != nil {
		return nil, fmt.Errorf("update run: %w", err)
	}
	if !ok {
		return nil, ErrRunNotFound
	}
	return &updated, nil
}

// DeleteRun removes the run immediately.
func (s *Service) DeleteRun(ctx context.Context, ownerID, runID string) error {
	if ownerID == "" {
		return ErrUnauthenticated
	}
	ok, err := s.repo.Delete(ctx, ownerID, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if !ok {
		return ErrRunNotFound
	}
	return nil
}
