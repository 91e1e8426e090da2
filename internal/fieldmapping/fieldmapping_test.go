package fieldmapping

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mit-27/panora-sync/internal/config"
	"github.com/mit-27/panora-sync/internal/models"
	"github.com/mit-27/panora-sync/internal/store"
	"github.com/mit-27/panora-sync/internal/unified"
)

type fixture struct {
	store   *store.MemoryStore
	project models.Project
	user    models.LinkedUser
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemoryStore()

	project := models.Project{ID: uuid.New(), Name: "acme"}
	require.NoError(t, s.CreateProject(ctx, &project))
	user := models.LinkedUser{ID: uuid.New(), ProjectID: project.ID, OriginUser: "u-1"}
	require.NoError(t, s.CreateLinkedUser(ctx, &user))

	for _, attr := range []models.Attribute{
		{Slug: "priority", RemoteID: "custom_priority_1", Source: "hubspot", ObjectType: unified.CRMCompanyType},
		{Slug: "tier", RemoteID: "tier__c", Source: "hubspot", ObjectType: unified.CRMCompanyType},
		{Slug: "draft", Source: "hubspot", ObjectType: unified.CRMCompanyType},
		{Slug: "priority", RemoteID: "Priority__c", Source: "zoho", ObjectType: unified.CRMCompanyType},
	} {
		attr.ProjectID = project.ID
		require.NoError(t, s.CreateAttribute(ctx, &attr))
	}
	return fixture{store: s, project: project, user: user}
}

func TestCustomFieldMappingsScopedByProvider(t *testing.T) {
	f := setup(t)
	svc := NewService(f.store, config.EAVModeUpsert, zap.NewNop())

	mappings, err := svc.CustomFieldMappings(context.Background(), "hubspot", f.user.ID, unified.CRMCompanyType)
	require.NoError(t, err)

	remote := RemoteFieldNames(mappings)
	assert.ElementsMatch(t, []string{"custom_priority_1", "tier__c"}, remote)

	none, err := svc.CustomFieldMappings(context.Background(), "hubspot", f.user.ID, unified.CRMDealType)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCustomFieldMappingsUnknownLinkedUser(t *testing.T) {
	f := setup(t)
	svc := NewService(f.store, config.EAVModeUpsert, zap.NewNop())

	_, err := svc.CustomFieldMappings(context.Background(), "hubspot", uuid.New(), unified.CRMCompanyType)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAttachCustomValuesDropsUndeclaredAndEmpty(t *testing.T) {
	f := setup(t)
	svc := NewService(f.store, config.EAVModeUpsert, zap.NewNop())
	owner := uuid.New()

	written, err := svc.AttachCustomValues(context.Background(), AttachInput{
		OwnerID:    owner,
		ObjectType: unified.CRMCompanyType,
		Values:     map[string]any{"priority": "high", "unknown": "x", "tier": ""},
		Source:     "hubspot",
		ProjectID:  f.project.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	values, err := f.store.ListValues(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "high", values[0].Data)
}

func TestAttachCustomValuesUpsertKeepsOneValuePerAttribute(t *testing.T) {
	f := setup(t)
	svc := NewService(f.store, config.EAVModeUpsert, zap.NewNop())
	ctx := context.Background()
	owner := uuid.New()

	in := AttachInput{OwnerID: owner, ObjectType: unified.CRMCompanyType, Source: "hubspot", ProjectID: f.project.ID}

	in.Values = map[string]any{"priority": "high", "tier": 2}
	_, err := svc.AttachCustomValues(ctx, in)
	require.NoError(t, err)

	in.Values = map[string]any{"priority": "low"}
	_, err = svc.AttachCustomValues(ctx, in)
	require.NoError(t, err)

	values, err := f.store.ListValues(ctx, owner)
	require.NoError(t, err)
	require.Len(t, values, 2)

	data := map[string]bool{}
	for _, v := range values {
		data[v.Data] = true
	}
	assert.True(t, data["low"])
	assert.True(t, data["2"])
	assert.False(t, data["high"])
}

func TestAttachCustomValuesAppendAccumulates(t *testing.T) {
	f := setup(t)
	svc := NewService(f.store, config.EAVModeAppend, zap.NewNop())
	ctx := context.Background()
	owner := uuid.New()

	in := AttachInput{
		OwnerID:    owner,
		ObjectType: unified.CRMCompanyType,
		Values:     map[string]any{"priority": "high"},
		Source:     "hubspot",
		ProjectID:  f.project.ID,
	}
	for i := 0; i < 3; i++ {
		_, err := svc.AttachCustomValues(ctx, in)
		require.NoError(t, err)
	}

	values, err := f.store.ListValues(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, values, 3)
}

func TestNewServiceDefaultsToUpsert(t *testing.T) {
	svc := NewService(store.NewMemoryStore(), "bogus", zap.NewNop())
	assert.Equal(t, config.EAVModeUpsert, svc.Mode())
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty(map[string]any{}))
	assert.True(t, IsEmpty([]any{}))
	assert.False(t, IsEmpty(0))
	assert.False(t, IsEmpty(false))
	assert.False(t, IsEmpty("x"))
}
