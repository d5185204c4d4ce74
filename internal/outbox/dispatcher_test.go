package outbox

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/runlog/internal/domain"
	"example.com/runlog/internal/events"
)

func TestValidatePayloadAcceptsRunEvents(t *testing.T) {
	created := createdPayload(t, "run-1", "user-1")
	require.NoError(t, ValidatePayload(events.TypeRunCreated, created))

	deleted, err := json.Marshal(events.RunDeleted{RunID: "run-1", UserID: "user-1", OccurredAt: time.Now().UTC()})
	require.NoError(t, err)
	require.NoError(t, ValidatePayload(events.TypeRunDeleted, deleted))
}

func TestValidatePayloadRejectsMalformedEvents(t *testing.T) {
	cases := map[string]struct {
		eventType string
		payload   string
	}{
		"unknown type":     {eventType: "run.renamed", payload: `{}`},
		"not json":         {eventType: events.TypeRunDeleted, payload: `{`},
		"missing user":     {eventType: events.TypeRunDeleted, payload: `{"run_id":"r","occurred_at":"2024-03-10T00:00:00Z"}`},
		"extra field":      {eventType: events.TypeRunDeleted, payload: `{"run_id":"r","user_id":"u","occurred_at":"2024-03-10T00:00:00Z","source":"watch"}`},
		"unknown category": {eventType: events.TypeRunCreated, payload: snapshotJSON(`"Jog"`, `150`)},
		"negative bpm":     {eventType: events.TypeRunCreated, payload: snapshotJSON(`"Race"`, `-1`)},
		"fractional bpm":   {eventType: events.TypeRunUpdated, payload: snapshotJSON(`"Race"`, `150.5`)},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, ValidatePayload(tc.eventType, []byte(tc.payload)))
		})
	}
}

func TestPartitionValid(t *testing.T) {
	messages := []Message{
		{EventID: 1, EventType: events.TypeRunCreated, Payload: createdPayload(t, "run-1", "user-1")},
		{EventID: 2, EventType: events.TypeRunDeleted, Payload: json.RawMessage(`{"run_id":""}`)},
		{EventID: 3, EventType: "run.unknown", Payload: json.RawMessage(`{}`)},
	}

	valid, invalid := partitionValid(messages)
	require.Len(t, valid, 1)
	require.Equal(t, int64(1), valid[0].EventID)
	require.Len(t, invalid, 2)
	require.Contains(t, invalid[1].err.Error(), "no schema metadata for event_type=run.unknown")
}

func TestDeliverGroupsByTopicAndCachesSchemaIDs(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 21}
	dispatcher := NewDispatcher(nil, producer, registry, time.Second, 10)

	messages := []Message{
		{EventID: 1, EventType: events.TypeRunCreated, Topic: "run_events", SchemaSubject: "run_events-value", PartitionKey: "user-1", Payload: createdPayload(t, "run-1", "user-1")},
		{EventID: 2, EventType: events.TypeRunCreated, Topic: "run_events", SchemaSubject: "run_events-value", PartitionKey: "user-2", Payload: createdPayload(t, "run-2", "user-2")},
	}

	require.NoError(t, dispatcher.deliver(context.Background(), messages))
	require.NoError(t, dispatcher.deliver(context.Background(), messages[:1]))

	require.Len(t, registry.calls, 1, "schema registry should be invoked once due to cache")
	require.Len(t, producer.writes, 2)
	require.Equal(t, "run_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 2)

	first := producer.writes[0].messages[0]
	require.Equal(t, "user-1", string(first.Key))
	require.Equal(t, uint32(21), binary.BigEndian.Uint32(first.Value[1:5]))
	require.Equal(t, "event_type", first.Headers[0].Key)
	require.Equal(t, events.TypeRunCreated, string(first.Headers[0].Value))
}

func TestDeliverPropagatesRegistryFailure(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{err: errors.New("registry down")}
	dispatcher := NewDispatcher(nil, producer, registry, time.Second, 10)

	err := dispatcher.deliver(context.Background(), []Message{
		{EventID: 1, EventType: events.TypeRunCreated, Topic: "run_events", SchemaSubject: "run_events-value", Payload: createdPayload(t, "run-1", "user-1")},
	})
	require.ErrorContains(t, err, "registry down")
	require.Empty(t, producer.writes)
}

func TestDispatchObservesWholeBatch(t *testing.T) {
	clock := &fakeClock{at: time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)}
	producer := &stubProducer{onWrite: func() { clock.advance(2 * time.Second) }}
	dispatcher := NewDispatcher(nil, producer, &stubRegistry{id: 7}, time.Second, 10, WithClock(clock.now))
	var marked []Message
	dispatcher.mark = func(_ context.Context, msgs []Message) error {
		clock.advance(time.Second)
		marked = msgs
		return nil
	}

	start := clock.now()
	clock.advance(500 * time.Millisecond)
	before := histogramSum(t)

	messages := []Message{{EventID: 1, EventType: events.TypeRunCreated, Topic: events.Topic, SchemaSubject: events.SchemaSubject, PartitionKey: "user-1", UserID: "user-1", Payload: createdPayload(t, "run-1", "user-1")}}
	require.NoError(t, dispatcher.dispatch(context.Background(), start, messages))

	require.Len(t, marked, 1)
	require.InDelta(t, before+3.5, histogramSum(t), 1e-9)
	require.True(t, start.Add(500*time.Millisecond).Equal(producer.writes[0].messages[0].Time))
}

func TestPrimeResolvesEveryEventType(t *testing.T) {
	registry := &stubRegistry{id: 5}
	dispatcher := NewDispatcher(nil, &stubProducer{}, registry, time.Second, 10)

	require.NoError(t, dispatcher.Prime(context.Background()))
	require.Len(t, registry.calls, len(events.Types()))
	for _, call := range registry.calls {
		require.Equal(t, events.SchemaSubject, call.subject)
	}

	// cached after priming
	_, err := dispatcher.schemaID(context.Background(), events.SchemaSubject, runDeletedSchema)
	require.NoError(t, err)
	require.Len(t, registry.calls, len(events.Types()))
}

func TestMoveToDLQRecordsEveryMessage(t *testing.T) {
	dlq := &stubDLQ{}
	dispatcher := NewDispatcher(nil, &stubProducer{}, &stubRegistry{}, time.Second, 10)
	dispatcher.dlq = dlq

	messages := []Message{{EventID: 1, Topic: "run_events"}, {EventID: 2, Topic: "run_events"}}
	require.NoError(t, dispatcher.moveToDLQ(context.Background(), messages, "kafka write failed"))

	require.Len(t, dlq.reasons, 2)
	require.Equal(t, "kafka write failed (topic=run_events)", dlq.reasons[0])
}

func createdPayload(t *testing.T, runID, userID string) json.RawMessage {
	t.Helper()
	dist := 5.0
	run := domain.Run{
		ID:         runID,
		UserID:     userID,
		Type:       domain.CategoryEasyRun,
		Date:       domain.NewDate(2024, time.March, 10),
		DistanceKM: &dist,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}
	body, err := json.Marshal(events.RunCreated{RunSnapshot: events.SnapshotOf(run), OccurredAt: run.CreatedAt})
	require.NoError(t, err)
	return body
}

func snapshotJSON(runType, avgBPM string) string {
	return `{"run_id":"r","user_id":"u","type":` + runType + `,"date":"2024-03-10","avg_bpm":` + avgBPM +
		`,"max_bpm":null,"duration_seconds":null,"distance_km":null,"avg_spm":null,"notes":null,` +
		`"created_at":"2024-03-10T00:00:00Z","updated_at":"2024-03-10T00:00:00Z","occurred_at":"2024-03-10T00:00:00Z"}`
}

type stubProducer struct {
	mu      sync.Mutex
	err     error
	onWrite func()
	writes  []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.onWrite != nil {
		s.onWrite()
	}
	if s.err != nil {
		return s.err
	}

	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)

	s.writes = append(s.writes, writtenBatch{
		topic:    topic,
		messages: copied,
	})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(ctx context.Context, subject string, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}

type stubDLQ struct {
	reasons []string
}

func (s *stubDLQ) Write(ctx context.Context, msg Message, reason string) error {
	s.reasons = append(s.reasons, reason)
	return nil
}

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time { return c.at }

func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func histogramSum(t *testing.T) float64 {
	t.Helper()
	var metric dto.Metric
	require.NoError(t, batchDuration.Write(&metric))
	return metric.GetHistogram().GetSampleSum()
}
