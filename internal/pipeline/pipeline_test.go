package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/adapter"
	"github.com/mit-27/panora-sync/internal/config"
	"github.com/mit-27/panora-sync/internal/fieldmapping"
	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/mapping/hubspot"
	"github.com/mit-27/panora-sync/internal/models"
	"github.com/mit-27/panora-sync/internal/reconcile"
	"github.com/mit-27/panora-sync/internal/store"
	"github.com/mit-27/panora-sync/internal/unified"
	"github.com/mit-27/panora-sync/internal/webhook"
)

type stubAdapter struct {
	mu          sync.Mutex
	records     []unified.RawRecord
	err         error
	block       chan struct{}
	extraFields []string
	created     []unified.RawRecord
}

func (a *stubAdapter) FetchRemote(_ context.Context, _ adapter.Connection, extraFields []string) ([]unified.RawRecord, error) {
	a.mu.Lock()
	a.extraFields = extraFields
	a.mu.Unlock()
	if a.block != nil {
		<-a.block
	}
	return a.records, a.err
}

func (a *stubAdapter) CreateRemote(_ context.Context, _ adapter.Connection, record unified.RawRecord) (unified.RawRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = append(a.created, record)
	props := record["properties"].(map[string]any)
	return unified.RawRecord{"id": "new-1", "properties": props}, nil
}

type panickingAdapter struct {
	seen map[string]bool
}

func (a *panickingAdapter) FetchRemote(_ context.Context, _ adapter.Connection, _ []string) ([]unified.RawRecord, error) {
	a.seen["fetch"] = true
	return nil, nil
}

type recordingWebhooks struct {
	triggers []webhook.Trigger
}

func (r *recordingWebhooks) Dispatch(_ context.Context, t webhook.Trigger) []uuid.UUID {
	r.triggers = append(r.triggers, t)
	return []uuid.UUID{uuid.New()}
}

type fixture struct {
	store    *store.MemoryStore
	adapters *adapter.Registry
	webhooks *recordingWebhooks
	sync     *ObjectSync[unified.CRMCompany]
	target   Target
}

func setup(t *testing.T, a adapter.Adapter, timeout time.Duration) fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	project := models.Project{ID: uuid.New(), Name: "acme"}
	require.NoError(t, s.CreateProject(ctx, &project))
	user := models.LinkedUser{ID: uuid.New(), ProjectID: project.ID, OriginUser: "u-1"}
	require.NoError(t, s.CreateLinkedUser(ctx, &user))
	require.NoError(t, s.CreateAttribute(ctx, &models.Attribute{
		ProjectID: project.ID, ObjectType: unified.CRMCompanyType, Slug: "priority", RemoteID: "custom_priority_1", Source: hubspot.Provider,
	}))

	adapters := adapter.NewRegistry()
	if a != nil {
		adapters.Register(adapter.Key{Vertical: "crm", Object: "company", Provider: hubspot.Provider}, a)
	}

	mappers := mapping.NewRegistry[unified.CRMCompany]("crm", "company")
	mappers.Register(hubspot.Provider, hubspot.NewCompanyMapper(mapping.NoReferences{}))

	fields := fieldmapping.NewService(s, config.EAVModeUpsert, zap.NewNop())
	webhooks := &recordingWebhooks{}
	objectSync := NewObjectSync(mappers, Deps{
		Store:        s,
		Adapters:     adapters,
		Fields:       fields,
		Reconciler:   reconcile.NewReconciler(s, fields, zap.NewNop()),
		Webhooks:     webhooks,
		FetchTimeout: timeout,
		Logger:       zap.NewNop(),
	})

	return fixture{
		store:    s,
		adapters: adapters,
		webhooks: webhooks,
		sync:     objectSync,
		target: Target{
			ProjectID:    project.ID,
			LinkedUserID: user.ID,
			Provider:     hubspot.Provider,
			Connection:   adapter.Connection{Provider: hubspot.Provider, BaseURL: "http://hubspot.invalid"},
		},
	}
}

func companies() []unified.RawRecord {
	return []unified.RawRecord{
		{"id": "1", "properties": map[string]any{"name": "Acme", "custom_priority_1": "high"}},
		{"id": "2", "properties": map[string]any{"name": "Globex"}},
	}
}

func TestSyncPersistsAndEmits(t *testing.T) {
	stub := &stubAdapter{records: companies()}
	f := setup(t, stub, time.Second)
	ctx := context.Background()

	res, err := f.sync.Sync(ctx, f.target)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.Persisted)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{"custom_priority_1"}, stub.extraFields)

	events, err := f.store.ListEvents(ctx, f.target.ProjectID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "crm.company.pulled", events[0].Type)
	assert.Equal(t, models.EventStatusSuccess, events[0].Status)
	assert.Equal(t, 2, events[0].RecordCount)

	require.Len(t, f.webhooks.triggers, 1)
	trig := f.webhooks.triggers[0]
	assert.Equal(t, events[0].ID, trig.EventID)
	assert.Equal(t, "crm.company.pulled", trig.EventType)
	data := trig.Data.([]map[string]any)
	require.Len(t, data, 2)
	assert.Equal(t, "1", data[0]["remote_id"])
	assert.Equal(t, map[string]any{"priority": "high"}, data[0]["field_mappings"])

	again, err := f.sync.Sync(ctx, f.target)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Created)

	records, err := f.store.ListRecords(ctx, store.RecordFilter{ObjectType: unified.CRMCompanyType, LinkedUserID: f.target.LinkedUserID})
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestSyncWithoutAdapterIsSkipped(t *testing.T) {
	f := setup(t, nil, time.Second)

	res, err := f.sync.Sync(context.Background(), f.target)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Empty(t, f.webhooks.triggers)
}

func TestSyncFetchErrorRecordsFailedEvent(t *testing.T) {
	f := setup(t, &stubAdapter{err: errors.New("503 from vendor")}, time.Second)
	ctx := context.Background()

	_, err := f.sync.Sync(ctx, f.target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503 from vendor")

	events, err := f.store.ListEvents(ctx, f.target.ProjectID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventStatusFailed, events[0].Status)
	assert.Empty(t, f.webhooks.triggers)
}

func TestSyncAdapterPanicFailsTheBatch(t *testing.T) {
	f := setup(t, &panickingAdapter{}, time.Second)
	ctx := context.Background()

	_, err := f.sync.Sync(ctx, f.target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adapter panicked")

	events, err := f.store.ListEvents(ctx, f.target.ProjectID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventStatusFailed, events[0].Status)
}

func TestSyncFetchTimesOut(t *testing.T) {
	stub := &stubAdapter{block: make(chan struct{})}
	defer close(stub.block)
	f := setup(t, stub, 20*time.Millisecond)

	_, err := f.sync.Sync(context.Background(), f.target)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSyncMissingRemoteIDAbortsBatch(t *testing.T) {
	stub := &stubAdapter{records: []unified.RawRecord{
		{"id": "1", "properties": map[string]any{"name": "Acme"}},
		{"properties": map[string]any{"name": "No id"}},
	}}
	f := setup(t, stub, time.Second)
	ctx := context.Background()

	_, err := f.sync.Sync(ctx, f.target)
	var missing *reconcile.MissingOriginIDError
	require.True(t, errors.As(err, &missing))

	records, err := f.store.ListRecords(ctx, store.RecordFilter{LinkedUserID: f.target.LinkedUserID})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCreatePushesAndPersists(t *testing.T) {
	stub := &stubAdapter{}
	f := setup(t, stub, time.Second)
	ctx := context.Background()

	record := unified.CRMCompany{
		Base: unified.Base{FieldMappings: map[string]any{"priority": "low"}},
		Name: "Initech",
	}
	persisted, err := f.sync.Create(ctx, f.target, record)
	require.NoError(t, err)
	assert.Equal(t, "new-1", persisted.RemoteID)
	assert.True(t, persisted.Created)

	require.Len(t, stub.created, 1)
	props := stub.created[0]["properties"].(map[string]any)
	assert.Equal(t, "Initech", props["name"])
	assert.Equal(t, "low", props["custom_priority_1"])

	require.Len(t, f.webhooks.triggers, 1)
	assert.Equal(t, "crm.company.created", f.webhooks.triggers[0].EventType)
}

func TestCreateWithoutCreatorFails(t *testing.T) {
	f := setup(t, nil, time.Second)
	f.adapters.Register(adapter.Key{Vertical: "crm", Object: "company", Provider: hubspot.Provider}, fetchOnly{})

	_, err := f.sync.Create(context.Background(), f.target, unified.CRMCompany{Name: "x"})
	assert.Error(t, err)
}

func TestCreateUnsupportedProvider(t *testing.T) {
	f := setup(t, &stubAdapter{}, time.Second)
	f.adapters.Register(adapter.Key{Vertical: "crm", Object: "company", Provider: "salesforce"}, &stubAdapter{})
	target := f.target
	target.Provider = "salesforce"

	_, err := f.sync.Create(context.Background(), target, unified.CRMCompany{Name: "x"})
	var unsupported *mapping.UnsupportedError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "salesforce", unsupported.Provider)
}

type fetchOnly struct{}

func (fetchOnly) FetchRemote(context.Context, adapter.Connection, []string) ([]unified.RawRecord, error) {
	return nil, nil
}
