// Package memory keeps runs in process memory for local development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/runlog/internal/domain"
	"example.com/runlog/internal/observability"
)

// Repository stores runs in memory keyed by owner.
type Repository struct {
	mu   sync.RWMutex
	runs map[string]map[string]domain.Run
}

// NewRepository constructs an empty repository, optionally seeded with runs.
func NewRepository(seed ...domain.Run) *Repository {
	repo := &Repository{runs: make(map[string]map[string]domain.Run)}
	for _, run := range seed {
		repo.put(run)
	}
	return repo
}

func (r *Repository) put(run domain.Run) {
	owned, ok := r.runs[run.UserID]
	if !ok {
		owned = make(map[string]domain.Run)
		r.runs[run.UserID] = owned
	}
	owned[run.ID] = clone(run)
}

// List implements domain.RunRepository.
func (r *Repository) List(ctx context.Context, ownerID string) ([]domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]domain.Run, 0, len(r.runs[ownerID]))
	for _, run := range r.runs[ownerID] {
		results = append(results, clone(run))
	}
	sort.SliceStable(results, func(i, j int) bool {
		if !results[i].Date.Equal(results[j].Date) {
			return results[j].Date.Before(results[i].Date)
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

// Get implements domain.RunRepository.
func (r *Repository) Get(ctx context.Context, ownerID, runID string) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[ownerID][runID]
	if !ok {
		return nil, nil
	}
	copied := clone(run)
	return &copied, nil
}

// Insert implements domain.RunRepository.
func (r *Repository) Insert(ctx context.Context, run domain.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.put(run)
	r.mu.Unlock()

	observability.RecordRunWritten(observability.OperationInsert, run.CreatedAt)
	return nil
}

// Update implements domain.RunRepository.
func (r *Repository) Update(ctx context.Context, run domain.Run) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	_, ok := r.runs[run.UserID][run.ID]
	if ok {
		r.put(run)
	}
	r.mu.Unlock()

	if ok {
		observability.RecordRunWritten(observability.OperationUpdate, run.UpdatedAt)
	}
	return ok, nil
}

// Delete implements domain.RunRepository.
func (r *Repository) Delete(ctx context.Context, ownerID, runID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	_, ok := r.runs[ownerID][runID]
	if ok {
		delete(r.runs[ownerID], runID)
	}
	r.mu.Unlock()

	if ok {
		observability.RecordRunWritten(observability.OperationDelete, time.Now().UTC())
	}
	return ok, nil
}

// clone detaches optional fields so callers cannot mutate stored records.
func clone(run domain.Run) domain.Run {
	run.AvgBPM = cloneInt(run.AvgBPM)
	run.MaxBPM = cloneInt(run.MaxBPM)
	run.AvgSPM = cloneInt(run.AvgSPM)
	run.DurationSeconds = cloneFloat(run.DurationSeconds)
	run.DistanceKM = cloneFloat(run.DistanceKM)
	if run.Notes != nil {
		notes := *run.Notes
		run.Notes = &notes
	}
	return run
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
