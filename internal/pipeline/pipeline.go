// Package pipeline runs the sync chain of one (vertical, object) for one
// linked user and provider: fetch, unify, reconcile, record the event, fan out webhooks.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/mit-27/panora-sync/internal/adapter"
	"github.com/mit-27/panora-sync/internal/fieldmapping"
	"github.com/mit-27/panora-sync/internal/mapping"
	"github.com/mit-27/panora-sync/internal/models"
	"github.com/mit-27/panora-sync/internal/reconcile"
	"github.com/mit-27/panora-sync/internal/store"
	"github.com/mit-27/panora-sync/internal/unified"
	"github.com/mit-27/panora-sync/internal/webhook"
)

const defaultFetchTimeout = 2 * time.Minute

// Target is one resolved (linked user, provider) pair
type Target struct {
	ProjectID    uuid.UUID
	LinkedUserID uuid.UUID
	Provider     string
	Connection   adapter.Connection
}

type Result struct {
	ObjectType string
	Provider   string
	Fetched    int
	Persisted  int
	Created    int
	EventID    uuid.UUID
	Attempts   int
	// Skipped is set when no adapter serves the pair
	Skipped bool
}

// Job syncs one (vertical, object)
type Job interface {
	Vertical() string
	Object() string
	Sync(ctx context.Context, target Target) (Result, error)
}

// WebhookDispatcher is satisfied by *webhook.Dispatcher
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, t webhook.Trigger) []uuid.UUID
}

// Deps are shared by every job
type Deps struct {
	Store        store.Store
	Adapters     *adapter.Registry
	Fields       *fieldmapping.Service
	Reconciler   *reconcile.Reconciler
	Webhooks     WebhookDispatcher
	FetchTimeout time.Duration
	Logger       *zap.Logger
}

// ObjectSync is the generic chain for one unified type
type ObjectSync[U unified.Object] struct {
	mappers *mapping.Registry[U]
	deps    Deps
}

var _ Job = (*ObjectSync[unified.CRMCompany])(nil)

func NewObjectSync[U unified.Object](mappers *mapping.Registry[U], deps Deps) *ObjectSync[U] {
	if deps.FetchTimeout <= 0 {
		deps.FetchTimeout = defaultFetchTimeout
	}
	return &ObjectSync[U]{mappers: mappers, deps: deps}
}

func (s *ObjectSync[U]) Vertical() string { return s.mappers.Vertical() }
func (s *ObjectSync[U]) Object() string   { return s.mappers.Object() }

func (s *ObjectSync[U]) ObjectType() string {
	return s.Vertical() + "." + s.Object()
}

// Sync pulls every record the provider returns and persists it. A provider
// without an adapter for this object is skipped without error.
func (s *ObjectSync[U]) Sync(ctx context.Context, t Target) (Result, error) {
	objectType := s.ObjectType()
	res := Result{ObjectType: objectType, Provider: t.Provider}
	logger := s.deps.Logger.With(
		zap.String("object_type", objectType),
		zap.String("provider", t.Provider),
		zap.String("linked_user_id", t.LinkedUserID.String()),
	)

	mappings, err := s.deps.Fields.CustomFieldMappings(ctx, t.Provider, t.LinkedUserID, objectType)
	if err != nil {
		return res, fmt.Errorf("failed to load custom field mappings: %w", err)
	}

	a, ok := s.deps.Adapters.Resolve(s.Vertical(), s.Object(), t.Provider)
	if !ok {
		logger.Debug("No adapter registered, skipping")
		res.Skipped = true
		return res, nil
	}

	raw, err := s.fetch(ctx, a, t.Connection, fieldmapping.RemoteFieldNames(mappings))
	if err != nil {
		s.recordFailure(ctx, t, objectType+".pulled", models.DirectionPull, err)
		return res, err
	}
	res.Fetched = len(raw)

	records, err := s.mappers.Unify(ctx, raw, mapping.UnifyInput{
		Provider:     t.Provider,
		LinkedUserID: t.LinkedUserID,
		CustomFields: mappings,
	})
	if err != nil {
		s.recordFailure(ctx, t, objectType+".pulled", models.DirectionPull, err)
		return res, fmt.Errorf("failed to unify records: %w", err)
	}

	persisted, err := s.persist(ctx, t, records, raw)
	if err != nil {
		s.recordFailure(ctx, t, objectType+".pulled", models.DirectionPull, err)
		return res, err
	}
	res.Persisted = len(persisted)
	for _, p := range persisted {
		if p.Created {
			res.Created++
		}
	}

	res.EventID, res.Attempts, err = s.emit(ctx, t, objectType+".pulled", models.DirectionPull, persisted)
	if err != nil {
		return res, err
	}

	logger.Info("Sync completed",
		zap.Int("fetched", res.Fetched),
		zap.Int("persisted", res.Persisted),
		zap.Int("created", res.Created),
	)
	return res, nil
}

// Create pushes one record to the provider and stores what the provider returned
func (s *ObjectSync[U]) Create(ctx context.Context, t Target, record U) (reconcile.PersistedRecord, error) {
	objectType := s.ObjectType()

	mappings, err := s.deps.Fields.CustomFieldMappings(ctx, t.Provider, t.LinkedUserID, objectType)
	if err != nil {
		return reconcile.PersistedRecord{}, fmt.Errorf("failed to load custom field mappings: %w", err)
	}

	a, ok := s.deps.Adapters.Resolve(s.Vertical(), s.Object(), t.Provider)
	if !ok {
		return reconcile.PersistedRecord{}, fmt.Errorf("no %s adapter for provider %q", objectType, t.Provider)
	}
	creator, ok := a.(adapter.Creator)
	if !ok {
		return reconcile.PersistedRecord{}, fmt.Errorf("%s adapter for provider %q cannot create", objectType, t.Provider)
	}

	payload, err := s.mappers.Desunify(ctx, record, mapping.DesunifyInput{
		Provider:     t.Provider,
		LinkedUserID: t.LinkedUserID,
		CustomFields: mappings,
	})
	if err != nil {
		return reconcile.PersistedRecord{}, err
	}

	created, err := creator.CreateRemote(ctx, t.Connection, payload)
	if err != nil {
		s.recordFailure(ctx, t, objectType+".created", models.DirectionPush, err)
		return reconcile.PersistedRecord{}, fmt.Errorf("failed to create remote %s: %w", objectType, err)
	}

	raw := []unified.RawRecord{created}
	records, err := s.mappers.Unify(ctx, raw, mapping.UnifyInput{
		Provider:     t.Provider,
		LinkedUserID: t.LinkedUserID,
		CustomFields: mappings,
	})
	if err != nil {
		return reconcile.PersistedRecord{}, fmt.Errorf("failed to unify created record: %w", err)
	}

	persisted, err := s.persist(ctx, t, records, raw)
	if err != nil {
		return reconcile.PersistedRecord{}, err
	}
	if len(persisted) != 1 {
		return reconcile.PersistedRecord{}, fmt.Errorf("provider returned %d records for one create", len(persisted))
	}

	if _, _, err := s.emit(ctx, t, objectType+".created", models.DirectionPush, persisted); err != nil {
		return persisted[0], err
	}
	return persisted[0], nil
}

func (s *ObjectSync[U]) persist(ctx context.Context, t Target, records []U, raw []unified.RawRecord) ([]reconcile.PersistedRecord, error) {
	objects := make([]unified.Object, len(records))
	for i := range records {
		objects[i] = records[i]
	}
	if len(raw) != len(records) {
		s.deps.Logger.Warn("Mapper output does not line up with raw payloads, skipping remote data",
			zap.String("provider", t.Provider),
			zap.Int("raw", len(raw)),
			zap.Int("records", len(records)),
		)
		raw = nil
	}

	persisted, err := s.deps.Reconciler.Upsert(ctx, reconcile.UpsertInput{
		ObjectType:   s.ObjectType(),
		ProjectID:    t.ProjectID,
		LinkedUserID: t.LinkedUserID,
		Origin:       t.Provider,
		Records:      objects,
		Raw:          raw,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to persist records: %w", err)
	}
	return persisted, nil
}

// fetch bounds the adapter call even when the adapter ignores its context
func (s *ObjectSync[U]) fetch(ctx context.Context, a adapter.Adapter, conn adapter.Connection, fields []string) ([]unified.RawRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deps.FetchTimeout)
	defer cancel()

	type fetchResult struct {
		records []unified.RawRecord
		err     error
	}
	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("adapter panicked: %v", r)}
			}
		}()
		records, err := a.FetchRemote(ctx, conn, fields)
		done <- fetchResult{records: records, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("failed to fetch remote records: %w", r.err)
		}
		return r.records, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch from %s timed out after %s: %w", conn.Provider, s.deps.FetchTimeout, ctx.Err())
	}
}

func (s *ObjectSync[U]) emit(ctx context.Context, t Target, eventType, direction string, persisted []reconcile.PersistedRecord) (uuid.UUID, int, error) {
	data := make([]map[string]any, len(persisted))
	for i, p := range persisted {
		data[i] = p.Unified()
	}

	event := &models.Event{
		ID:           uuid.New(),
		ProjectID:    t.ProjectID,
		LinkedUserID: t.LinkedUserID,
		Type:         eventType,
		Provider:     t.Provider,
		Direction:    direction,
		Status:       models.EventStatusSuccess,
		RecordCount:  len(persisted),
		Timestamp:    time.Now().UTC(),
	}
	if err := s.deps.Store.CreateEvent(ctx, event); err != nil {
		return uuid.Nil, 0, fmt.Errorf("failed to record %s event: %w", eventType, err)
	}

	var attempts int
	if s.deps.Webhooks != nil {
		attempts = len(s.deps.Webhooks.Dispatch(ctx, webhook.Trigger{
			ProjectID: t.ProjectID,
			EventID:   event.ID,
			EventType: eventType,
			Data:      data,
			Mode:      webhook.ModeQueued,
		}))
	}
	return event.ID, attempts, nil
}

// recordFailure stores a failed audit event; its own errors are only logged
func (s *ObjectSync[U]) recordFailure(ctx context.Context, t Target, eventType, direction string, cause error) {
	payload, _ := json.Marshal(map[string]string{"error": cause.Error()})
	event := &models.Event{
		ID:           uuid.New(),
		ProjectID:    t.ProjectID,
		LinkedUserID: t.LinkedUserID,
		Type:         eventType,
		Provider:     t.Provider,
		Direction:    direction,
		Status:       models.EventStatusFailed,
		Payload:      datatypes.JSON(payload),
		Timestamp:    time.Now().UTC(),
	}
	if err := s.deps.Store.CreateEvent(context.WithoutCancel(ctx), event); err != nil {
		s.deps.Logger.Warn("Failed to record failure event",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
