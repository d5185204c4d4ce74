package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSchemaNotRegistered means the subject holds no version with the given schema.
var ErrSchemaNotRegistered = errors.New("schema not registered under subject")

// RegistryError is a non-2xx Schema Registry reply.
type RegistryError struct {
	Status  int
	Code    int
	Message string
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("schema registry: status %d (code %d): %s", e.Status, e.Code, e.Message)
}

// RegistryClient resolves run event schemas against a Confluent-compatible
// Schema Registry. The run event types share one subject, so a schema is
// looked up by its content rather than by the subject's latest version; the
// subject needs compatibility NONE for the three shapes to coexist.
type RegistryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewRegistryClient builds a client. A nil httpClient gets a 10s timeout.
func NewRegistryClient(baseURL string, httpClient *http.Client) *RegistryClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &RegistryClient{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

// EnsureSchema returns the id of schema under subject, registering it on first use.
func (c *RegistryClient) EnsureSchema(ctx context.Context, subject, schema string) (int, error) {
	id, err := c.Lookup(ctx, subject, schema)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, ErrSchemaNotRegistered) {
		return 0, err
	}
	return c.Register(ctx, subject, schema)
}

// Lookup finds the id of an already registered schema.
func (c *RegistryClient) Lookup(ctx context.Context, subject, schema string) (int, error) {
	id, err := c.post(ctx, "/subjects/"+url.PathEscape(subject), schema)
	var regErr *RegistryError
	if errors.As(err, &regErr) && regErr.Status == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %s", ErrSchemaNotRegistered, subject)
	}
	return id, err
}

// Register adds schema as a new version of subject.
func (c *RegistryClient) Register(ctx context.Context, subject, schema string) (int, error) {
	return c.post(ctx, "/subjects/"+url.PathEscape(subject)+"/versions", schema)
}

func (c *RegistryClient) post(ctx context.Context, path, schema string) (int, error) {
	body, err := json.Marshal(struct {
		SchemaType string `json:"schemaType"`
		Schema     string `json:"schema"`
	}{SchemaType: "JSON", Schema: schema})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")
	req.Header.Set("Accept", "application/vnd.schemaregistry.v1+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		regErr := &RegistryError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var reply struct {
			ErrorCode int    `json:"error_code"`
			Message   string `json:"message"`
		}
		if json.Unmarshal(raw, &reply) == nil && reply.ErrorCode != 0 {
			regErr.Code, regErr.Message = reply.ErrorCode, reply.Message
		}
		return 0, regErr
	}

	var reply struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return 0, fmt.Errorf("decode schema registry reply: %w", err)
	}
	return reply.ID, nil
}
