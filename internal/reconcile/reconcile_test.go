package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/config"
	"github.com/mit-27/panora-sync/internal/fieldmapping"
	"github.com/mit-27/panora-sync/internal/models"
	"github.com/mit-27/panora-sync/internal/store"
	"github.com/mit-27/panora-sync/internal/unified"
)

type fixture struct {
	store   store.Store
	project models.Project
	user    models.LinkedUser
}

func setup(t *testing.T, s store.Store) fixture {
	t.Helper()
	ctx := context.Background()
	project := models.Project{ID: uuid.New(), Name: "acme"}
	require.NoError(t, s.CreateProject(ctx, &project))
	user := models.LinkedUser{ID: uuid.New(), ProjectID: project.ID, OriginUser: "u-1"}
	require.NoError(t, s.CreateLinkedUser(ctx, &user))
	return fixture{store: s, project: project, user: user}
}

func (f fixture) reconciler() *Reconciler {
	fields := fieldmapping.NewService(f.store, config.EAVModeUpsert, zap.NewNop())
	return NewReconciler(f.store, fields, zap.NewNop())
}

func (f fixture) input(records ...unified.Object) UpsertInput {
	return UpsertInput{
		ObjectType:   unified.CRMCompanyType,
		ProjectID:    f.project.ID,
		LinkedUserID: f.user.ID,
		Origin:       "hubspot",
		Records:      records,
	}
}

func company(remoteID, name, industry string) *unified.CRMCompany {
	return &unified.CRMCompany{Base: unified.Base{RemoteID: remoteID}, Name: name, Industry: industry}
}

func TestUpsertIsIdempotent(t *testing.T) {
	f := setup(t, store.NewMemoryStore())
	r := f.reconciler()
	ctx := context.Background()

	first, err := r.Upsert(ctx, f.input(company("c-1", "Acme", "Tech")))
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.True(t, first[0].Created)

	second, err := r.Upsert(ctx, f.input(company("c-1", "Acme", "Tech")))
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.False(t, second[0].Created)
	assert.Equal(t, first[0].ID, second[0].ID)

	records, err := f.store.ListRecords(ctx, store.RecordFilter{ObjectType: unified.CRMCompanyType, LinkedUserID: f.user.ID})
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestUpsertSparseMergeNeverErases(t *testing.T) {
	f := setup(t, store.NewMemoryStore())
	r := f.reconciler()
	ctx := context.Background()

	_, err := r.Upsert(ctx, f.input(company("c-1", "Acme", "Tech")))
	require.NoError(t, err)

	out, err := r.Upsert(ctx, f.input(company("c-1", "Acme Corp", "")))
	require.NoError(t, err)

	stored, err := f.store.GetRecord(ctx, out[0].ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Acme Corp","industry":"Tech"}`, string(stored.Data))
}

func TestUpsertMergesChildrenByPosition(t *testing.T) {
	f := setup(t, store.NewMemoryStore())
	r := f.reconciler()
	ctx := context.Background()

	initial := company("c-1", "Acme", "")
	initial.Addresses = []unified.Address{
		{Street1: "1 Main St", City: "Paris"},
		{Street1: "2 Side St", City: "Lyon"},
	}
	_, err := r.Upsert(ctx, f.input(initial))
	require.NoError(t, err)

	update := company("c-1", "", "")
	update.Addresses = []unified.Address{{City: "Nice"}}
	out, err := r.Upsert(ctx, f.input(update))
	require.NoError(t, err)

	addresses := out[0].Data["addresses"].([]any)
	require.Len(t, addresses, 2)
	assert.Equal(t, map[string]any{"street_1": "1 Main St", "city": "Nice"}, addresses[0])
	assert.Equal(t, map[string]any{"street_1": "2 Side St", "city": "Lyon"}, addresses[1])
	assert.Equal(t, "Acme", out[0].Data["name"])
}

func TestUpsertMissingOriginIDAbortsBatch(t *testing.T) {
	f := setup(t, store.NewMemoryStore())
	r := f.reconciler()
	ctx := context.Background()

	_, err := r.Upsert(ctx, f.input(company("c-1", "Acme", ""), company("", "Nameless", "")))

	var missing *MissingOriginIDError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, 1, missing.Index)

	records, err := f.store.ListRecords(ctx, store.RecordFilter{LinkedUserID: f.user.ID})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestUpsertKeepsInputOrderAndStoresRemoteData(t *testing.T) {
	f := setup(t, store.NewMemoryStore())
	r := f.reconciler()
	ctx := context.Background()

	in := f.input(company("c-2", "Beta", ""), company("c-1", "Alpha", ""))
	in.Raw = []unified.RawRecord{{"id": "c-2", "v": 1}, {"id": "c-1", "v": 2}}

	out, err := r.Upsert(ctx, in)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "c-2", out[0].RemoteID)
	assert.Equal(t, "c-1", out[1].RemoteID)

	raw, err := f.store.GetRemoteData(ctx, out[1].ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"c-1","v":2}`, string(raw.Data))
}

func TestUpsertRejectsMismatchedRaw(t *testing.T) {
	f := setup(t, store.NewMemoryStore())
	in := f.input(company("c-1", "Acme", ""))
	in.Raw = []unified.RawRecord{{}, {}}

	_, err := f.reconciler().Upsert(context.Background(), in)
	assert.Error(t, err)
}

func TestUpsertAttachesCustomValues(t *testing.T) {
	f := setup(t, store.NewMemoryStore())
	ctx := context.Background()
	require.NoError(t, f.store.CreateAttribute(ctx, &models.Attribute{
		ProjectID: f.project.ID, ObjectType: unified.CRMCompanyType, Slug: "priority", RemoteID: "custom_priority_1", Source: "hubspot",
	}))

	record := company("c-1", "Acme", "")
	record.FieldMappings = map[string]any{"priority": "high"}
	out, err := f.reconciler().Upsert(ctx, f.input(record))
	require.NoError(t, err)

	values, err := f.store.ListValues(ctx, out[0].ID)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "high", values[0].Data)

	view := out[0].Unified()
	assert.Equal(t, out[0].ID.String(), view["id"])
	assert.Equal(t, map[string]any{"priority": "high"}, view["field_mappings"])
}

// failingStore fails remote data writes whose payload contains "boom"
type failingStore struct {
	store.Store
}

func (f failingStore) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.Transaction(ctx, func(tx store.Store) error {
		return fn(failingStore{Store: tx})
	})
}

func (f failingStore) UpsertRemoteData(ctx context.Context, data *models.RemoteData) error {
	if strings.Contains(string(data.Data), "boom") {
		return errors.New("disk full")
	}
	return f.Store.UpsertRemoteData(ctx, data)
}

func TestUpsertRollsBackWholeBatchOnFailure(t *testing.T) {
	mem := store.NewMemoryStore()
	f := setup(t, failingStore{Store: mem})
	ctx := context.Background()

	in := f.input(company("c-1", "Acme", ""), company("c-2", "Beta", ""))
	in.Raw = []unified.RawRecord{{"ok": true}, {"boom": true}}

	_, err := NewReconciler(f.store, nil, zap.NewNop()).Upsert(ctx, in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	records, err := mem.ListRecords(ctx, store.RecordFilter{LinkedUserID: f.user.ID})
	require.NoError(t, err)
	assert.Empty(t, records)
}
