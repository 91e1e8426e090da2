package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/consumer"
	"github.com/mit-27/panora-sync/internal/models"
	"github.com/mit-27/panora-sync/internal/store"
)

type delayedJob struct {
	job   models.DeliveryJob
	delay time.Duration
}

type recordingQueue struct {
	mu        sync.Mutex
	published []models.DeliveryJob
	delayed   []delayedJob
}

func (q *recordingQueue) Publish(_ context.Context, job models.DeliveryJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, job)
	return nil
}

func (q *recordingQueue) PublishDelayed(_ context.Context, job models.DeliveryJob, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, delayedJob{job: job, delay: delay})
	return nil
}

func (q *recordingQueue) Consume(ctx context.Context, _ consumer.Handler) error {
	<-ctx.Done()
	return nil
}

func (q *recordingQueue) Healthy() bool { return true }

type harness struct {
	store      *store.MemoryStore
	queue      *recordingQueue
	worker     *Worker
	dispatcher *Dispatcher
	project    uuid.UUID
	endpoint   models.WebhookEndpoint
	server     *httptest.Server

	statusCode atomic.Int32
	calls      atomic.Int32
	lastBody   atomic.Value
	lastSig    atomic.Value
}

const secret = "whsec_test"

func newHarness(t *testing.T, maxAttempts int) *harness {
	t.Helper()
	h := &harness{store: store.NewMemoryStore(), queue: &recordingQueue{}, project: uuid.New()}
	h.statusCode.Store(http.StatusOK)

	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		h.calls.Add(1)
		h.lastBody.Store(body)
		h.lastSig.Store(r.Header.Get(SignatureHeader))
		w.WriteHeader(int(h.statusCode.Load()))
		_, _ = w.Write([]byte(`{"received":true}`))
	}))
	t.Cleanup(h.server.Close)

	h.endpoint = models.WebhookEndpoint{
		ID:        uuid.New(),
		ProjectID: h.project,
		URL:       h.server.URL,
		Secret:    secret,
		Scope:     pq.StringArray{"crm.company.pulled"},
		Active:    true,
	}
	require.NoError(t, h.store.CreateEndpoint(context.Background(), &h.endpoint))

	deliverer := NewDelivererWithClient(h.server.Client(), 1024, zap.NewNop())
	h.worker = NewWorker(h.store, h.queue, deliverer, zap.NewNop())
	h.dispatcher = NewDispatcher(h.store, h.queue, h.worker, maxAttempts, zap.NewNop())
	return h
}

func (h *harness) trigger(eventType string, mode Mode) Trigger {
	return Trigger{
		ProjectID: h.project,
		EventID:   uuid.New(),
		EventType: eventType,
		Data:      []map[string]any{{"id": "rec-1", "name": "Acme"}},
		Mode:      mode,
	}
}

// advance moves the worker clock d past the wall clock
func (h *harness) advance(d time.Duration) {
	at := time.Now().UTC().Add(d)
	h.worker.now = func() time.Time { return at }
}

func (h *harness) attempt(t *testing.T, id uuid.UUID) *models.WebhookDeliveryAttempt {
	t.Helper()
	attempt, err := h.store.GetAttempt(context.Background(), id)
	require.NoError(t, err)
	return attempt
}

func TestDispatchMatchesScope(t *testing.T) {
	h := newHarness(t, 8)
	ctx := context.Background()

	ids := h.dispatcher.Dispatch(ctx, h.trigger("crm.company.pulled", ModeQueued))
	require.Len(t, ids, 1)
	assert.Equal(t, models.DeliveryStatusQueued, h.attempt(t, ids[0]).Status)
	require.Len(t, h.queue.published, 1)
	assert.Equal(t, ids[0].String(), h.queue.published[0].AttemptID)

	none := h.dispatcher.Dispatch(ctx, h.trigger("crm.deal.pulled", ModeQueued))
	assert.Empty(t, none)

	attempts, err := h.store.ListAttempts(ctx, store.AttemptFilter{ProjectID: h.project})
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

func TestDispatchSkipsInactiveEndpoints(t *testing.T) {
	h := newHarness(t, 8)
	ctx := context.Background()
	other := models.WebhookEndpoint{
		ID: uuid.New(), ProjectID: h.project, URL: "http://unused", Secret: "x",
		Scope: pq.StringArray{"crm.company.pulled"}, Active: false,
	}
	require.NoError(t, h.store.CreateEndpoint(ctx, &other))

	ids := h.dispatcher.Dispatch(ctx, h.trigger("crm.company.pulled", ModeQueued))
	assert.Len(t, ids, 1)
}

func TestDeliverySignsEnvelope(t *testing.T) {
	h := newHarness(t, 8)
	ctx := context.Background()
	trig := h.trigger("crm.company.pulled", ModeQueued)

	ids := h.dispatcher.Dispatch(ctx, trig)
	require.Len(t, ids, 1)
	require.NoError(t, h.worker.HandleDelivery(ctx, ids[0]))

	body := h.lastBody.Load().([]byte)
	assert.NoError(t, VerifySignature(body, h.lastSig.Load().(string), secret))

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(body, &envelope))
	assert.Equal(t, trig.EventID.String(), envelope["id_event"])
	assert.Equal(t, []any{map[string]any{"id": "rec-1", "name": "Acme"}}, envelope["data"])

	attempt := h.attempt(t, ids[0])
	assert.Equal(t, models.DeliveryStatusSuccess, attempt.Status)
	assert.Equal(t, 1, attempt.AttemptCount)
	require.NotNil(t, attempt.ResponseStatus)
	assert.Equal(t, http.StatusOK, *attempt.ResponseStatus)
	assert.JSONEq(t, `{"received":true}`, *attempt.ResponseBody)
}

func TestFailedDeliverySchedulesOneRetryThenSucceeds(t *testing.T) {
	h := newHarness(t, 8)
	ctx := context.Background()
	h.statusCode.Store(http.StatusInternalServerError)

	ids := h.dispatcher.Dispatch(ctx, h.trigger("crm.company.pulled", ModeQueued))
	require.Len(t, ids, 1)

	before := time.Now().UTC()
	require.NoError(t, h.worker.HandleDelivery(ctx, ids[0]))

	attempt := h.attempt(t, ids[0])
	assert.Equal(t, models.DeliveryStatusFailed, attempt.Status)
	assert.Equal(t, 1, attempt.AttemptCount)
	require.NotNil(t, attempt.NextRetry)
	assert.WithinDuration(t, before.Add(time.Minute), *attempt.NextRetry, 5*time.Second)
	require.Len(t, h.queue.delayed, 1)
	assert.Equal(t, time.Minute, h.queue.delayed[0].delay)
	assert.Equal(t, ids[0].String(), h.queue.delayed[0].job.AttemptID)

	h.statusCode.Store(http.StatusOK)
	h.advance(time.Minute)
	require.NoError(t, h.worker.HandleMessage(ctx, []byte(`{"attempt_id":"`+ids[0].String()+`"}`)))

	attempt = h.attempt(t, ids[0])
	assert.Equal(t, models.DeliveryStatusSuccess, attempt.Status)
	assert.Equal(t, 2, attempt.AttemptCount)
	assert.Equal(t, http.StatusOK, *attempt.ResponseStatus)
	assert.Len(t, h.queue.delayed, 1)

	logs, err := h.store.ListDeliveryLogs(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, http.StatusInternalServerError, *logs[0].HTTPStatus)
	assert.Equal(t, http.StatusOK, *logs[1].HTTPStatus)
}

func TestDeliveryGoesDeadAtMaxAttempts(t *testing.T) {
	h := newHarness(t, 2)
	ctx := context.Background()
	h.statusCode.Store(http.StatusBadGateway)

	ids := h.dispatcher.Dispatch(ctx, h.trigger("crm.company.pulled", ModeQueued))
	require.Len(t, ids, 1)

	require.NoError(t, h.worker.HandleDelivery(ctx, ids[0]))
	h.advance(time.Minute)
	require.NoError(t, h.worker.HandleDelivery(ctx, ids[0]))

	attempt := h.attempt(t, ids[0])
	assert.Equal(t, models.DeliveryStatusDead, attempt.Status)
	assert.Equal(t, 2, attempt.AttemptCount)
	assert.Len(t, h.queue.delayed, 1)
}

func TestEarlyRetryJobIsSkippedUntilDue(t *testing.T) {
	h := newHarness(t, 3)
	ctx := context.Background()
	h.statusCode.Store(http.StatusInternalServerError)

	ids := h.dispatcher.Dispatch(ctx, h.trigger("crm.company.pulled", ModeQueued))
	require.Len(t, ids, 1)
	require.NoError(t, h.worker.HandleDelivery(ctx, ids[0]))

	// duplicate jobs for the same attempt arrive before the retry is due
	job := []byte(`{"attempt_id":"` + ids[0].String() + `"}`)
	require.NoError(t, h.worker.HandleMessage(ctx, job))
	require.NoError(t, h.worker.HandleMessage(ctx, job))

	attempt := h.attempt(t, ids[0])
	assert.Equal(t, models.DeliveryStatusFailed, attempt.Status)
	assert.Equal(t, 1, attempt.AttemptCount)
	assert.Equal(t, int32(1), h.calls.Load())

	h.advance(time.Minute)
	require.NoError(t, h.worker.HandleMessage(ctx, job))

	attempt = h.attempt(t, ids[0])
	assert.Equal(t, models.DeliveryStatusFailed, attempt.Status)
	assert.Equal(t, 2, attempt.AttemptCount)
	assert.Equal(t, int32(2), h.calls.Load())
}

func TestTerminalAttemptIsNotRedelivered(t *testing.T) {
	h := newHarness(t, 8)
	ctx := context.Background()

	ids := h.dispatcher.Dispatch(ctx, h.trigger("crm.company.pulled", ModeQueued))
	require.NoError(t, h.worker.HandleDelivery(ctx, ids[0]))
	require.NoError(t, h.worker.HandleDelivery(ctx, ids[0]))

	assert.Equal(t, int32(1), h.calls.Load())
	assert.Equal(t, models.DeliveryStatusSuccess, h.attempt(t, ids[0]).Status)
}

func TestPriorityModeDeliversSynchronously(t *testing.T) {
	h := newHarness(t, 8)
	ctx := context.Background()

	ids := h.dispatcher.Dispatch(ctx, h.trigger("crm.company.pulled", ModePriority))
	require.Len(t, ids, 1)

	assert.Equal(t, int32(1), h.calls.Load())
	assert.Empty(t, h.queue.published)
	assert.Equal(t, models.DeliveryStatusSuccess, h.attempt(t, ids[0]).Status)
}

func TestInactiveEndpointCountsAsFailure(t *testing.T) {
	h := newHarness(t, 8)
	ctx := context.Background()

	ids := h.dispatcher.Dispatch(ctx, h.trigger("crm.company.pulled", ModeQueued))
	require.Len(t, ids, 1)

	// deactivated between dispatch and delivery
	endpoint := h.endpoint
	endpoint.Active = false
	require.NoError(t, h.store.CreateEndpoint(ctx, &endpoint))

	require.NoError(t, h.worker.HandleDelivery(ctx, ids[0]))
	attempt := h.attempt(t, ids[0])
	assert.Equal(t, models.DeliveryStatusFailed, attempt.Status)
	assert.Contains(t, *attempt.LastError, "inactive")
	assert.Equal(t, int32(0), h.calls.Load())
}

func TestHandleMessageDropsMalformedJobs(t *testing.T) {
	h := newHarness(t, 8)
	assert.NoError(t, h.worker.HandleMessage(context.Background(), []byte(`not json`)))
	assert.NoError(t, h.worker.HandleMessage(context.Background(), []byte(`{"attempt_id":"nope"}`)))
	assert.NoError(t, h.worker.HandleMessage(context.Background(), []byte(`{"attempt_id":"`+uuid.NewString()+`"}`)))
}

func TestSweeperRepublishesStaleQueuedAttempts(t *testing.T) {
	h := newHarness(t, 8)
	ctx := context.Background()

	ids := h.dispatcher.Dispatch(ctx, h.trigger("crm.company.pulled", ModeQueued))
	require.Len(t, ids, 1)

	sweeper := NewSweeper(h.store, h.queue, time.Minute, 5*time.Minute, zap.NewNop())

	n, err := sweeper.SweepOnce(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = sweeper.SweepOnce(ctx, time.Now().UTC().Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, h.queue.published, 2)
}
