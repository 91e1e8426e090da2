package store

import (
	"bytes"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mit-27/panora-sync/internal/models"
)

type memoryState struct {
	projects    map[uuid.UUID]models.Project
	linkedUsers map[uuid.UUID]models.LinkedUser
	connections map[uuid.UUID]models.Connection
	records     map[uuid.UUID]models.UnifiedRecord
	recordKeys  map[RecordKey]uuid.UUID
	remoteData  map[uuid.UUID]models.RemoteData
	attributes  map[uuid.UUID]models.Attribute
	entities    map[uuid.UUID]models.Entity
	values      map[uuid.UUID]models.Value
	events      []models.Event
	endpoints   map[uuid.UUID]models.WebhookEndpoint
	payloads    map[uuid.UUID]models.WebhookPayload
	attempts    map[uuid.UUID]models.WebhookDeliveryAttempt
	logs        []models.WebhookDeliveryLog
	nextLogID   int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		projects:    map[uuid.UUID]models.Project{},
		linkedUsers: map[uuid.UUID]models.LinkedUser{},
		connections: map[uuid.UUID]models.Connection{},
		records:     map[uuid.UUID]models.UnifiedRecord{},
		recordKeys:  map[RecordKey]uuid.UUID{},
		remoteData:  map[uuid.UUID]models.RemoteData{},
		attributes:  map[uuid.UUID]models.Attribute{},
		entities:    map[uuid.UUID]models.Entity{},
		values:      map[uuid.UUID]models.Value{},
		endpoints:   map[uuid.UUID]models.WebhookEndpoint{},
		payloads:    map[uuid.UUID]models.WebhookPayload{},
		attempts:    map[uuid.UUID]models.WebhookDeliveryAttempt{},
	}
}

// clone copies every table. Rows are values and JSON columns are replaced, never mutated, so a shallow row copy is enough.
func (s *memoryState) clone() *memoryState {
	return &memoryState{
		projects:    maps.Clone(s.projects),
		linkedUsers: maps.Clone(s.linkedUsers),
		connections: maps.Clone(s.connections),
		records:     maps.Clone(s.records),
		recordKeys:  maps.Clone(s.recordKeys),
		remoteData:  maps.Clone(s.remoteData),
		attributes:  maps.Clone(s.attributes),
		entities:    maps.Clone(s.entities),
		values:      maps.Clone(s.values),
		events:      slices.Clone(s.events),
		endpoints:   maps.Clone(s.endpoints),
		payloads:    maps.Clone(s.payloads),
		attempts:    maps.Clone(s.attempts),
		logs:        slices.Clone(s.logs),
		nextLogID:   s.nextLogID,
	}
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*GormStore)(nil)
)

// MemoryStore keeps everything in process memory. Used by tests and the memory backend.
type MemoryStore struct {
	// mu is nil on transactional views, which are only reachable while the parent holds its write lock
	mu    *sync.RWMutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mu: &sync.RWMutex{}, state: newMemoryState()}
}

func (s *MemoryStore) read() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *MemoryStore) write() func() {
	if s.mu == nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Transaction serializes with every other access and commits the working copy only when fn succeeds
func (s *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.mu == nil {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	view := &MemoryStore{state: s.state.clone()}
	if err := fn(view); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = view.state
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

func found[T any](row T, ok bool) (*T, error) {
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func now() time.Time {
	return time.Now().UTC()
}

// Records

func (s *MemoryStore) FindRecord(_ context.Context, key RecordKey) (*models.UnifiedRecord, error) {
	defer s.read()()
	id, ok := s.state.recordKeys[key]
	if !ok {
		return nil, ErrNotFound
	}
	return found(s.state.records[id], true)
}

func (s *MemoryStore) GetRecord(_ context.Context, id uuid.UUID) (*models.UnifiedRecord, error) {
	defer s.read()()
	row, ok := s.state.records[id]
	return found(row, ok)
}

func (s *MemoryStore) ListRecords(_ context.Context, filter RecordFilter) ([]models.UnifiedRecord, error) {
	defer s.read()()
	var out []models.UnifiedRecord
	for _, record := range s.state.records {
		if filter.ObjectType != "" && record.ObjectType != filter.ObjectType {
			continue
		}
		if filter.LinkedUserID != uuid.Nil && record.LinkedUserID != filter.LinkedUserID {
			continue
		}
		out = append(out, record)
	}
	slices.SortFunc(out, func(a, b models.UnifiedRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) CreateRecord(_ context.Context, record *models.UnifiedRecord) error {
	defer s.write()()
	ensureID(&record.ID)
	key := RecordKey{
		ObjectType:     record.ObjectType,
		RemoteID:       record.RemoteID,
		OriginPlatform: record.OriginPlatform,
		LinkedUserID:   record.LinkedUserID,
	}
	if _, exists := s.state.recordKeys[key]; exists {
		return &DuplicateKeyError{Table: "unified_records"}
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now()
	}
	if record.ModifiedAt.IsZero() {
		record.ModifiedAt = record.CreatedAt
	}
	s.state.records[record.ID] = *record
	s.state.recordKeys[key] = record.ID
	return nil
}

func (s *MemoryStore) UpdateRecord(_ context.Context, record *models.UnifiedRecord) error {
	defer s.write()()
	existing, ok := s.state.records[record.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Data = record.Data
	existing.ModifiedAt = record.ModifiedAt
	s.state.records[record.ID] = existing
	return nil
}

func (s *MemoryStore) UpsertRemoteData(_ context.Context, data *models.RemoteData) error {
	defer s.write()()
	if existing, ok := s.state.remoteData[data.RecordID]; ok {
		data.ID = existing.ID
		data.CreatedAt = existing.CreatedAt
	} else {
		ensureID(&data.ID)
		data.CreatedAt = now()
	}
	data.UpdatedAt = now()
	s.state.remoteData[data.RecordID] = *data
	return nil
}

func (s *MemoryStore) GetRemoteData(_ context.Context, recordID uuid.UUID) (*models.RemoteData, error) {
	defer s.read()()
	row, ok := s.state.remoteData[recordID]
	return found(row, ok)
}

// Custom fields

func (s *MemoryStore) CreateAttribute(_ context.Context, attr *models.Attribute) error {
	defer s.write()()
	ensureID(&attr.ID)
	if attr.CreatedAt.IsZero() {
		attr.CreatedAt = now()
	}
	s.state.attributes[attr.ID] = *attr
	return nil
}

func (s *MemoryStore) ListAttributes(_ context.Context, filter AttributeFilter) ([]models.Attribute, error) {
	defer s.read()()
	return s.matchAttributes(filter, ""), nil
}

func (s *MemoryStore) FindAttribute(_ context.Context, filter AttributeFilter, slug string) (*models.Attribute, error) {
	defer s.read()()
	attrs := s.matchAttributes(filter, slug)
	if len(attrs) == 0 {
		return nil, ErrNotFound
	}
	return &attrs[0], nil
}

func (s *MemoryStore) matchAttributes(filter AttributeFilter, slug string) []models.Attribute {
	var out []models.Attribute
	for _, attr := range s.state.attributes {
		if attr.ProjectID != filter.ProjectID || attr.ObjectType != filter.ObjectType || attr.Source != filter.Source {
			continue
		}
		if slug != "" && attr.Slug != slug {
			continue
		}
		out = append(out, attr)
	}
	slices.SortFunc(out, func(a, b models.Attribute) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return out
}

func (s *MemoryStore) FindEntityByOwner(_ context.Context, ownerID uuid.UUID) (*models.Entity, error) {
	defer s.read()()
	var match *models.Entity
	for _, entity := range s.state.entities {
		if entity.OwnerID != ownerID {
			continue
		}
		if match == nil || entity.CreatedAt.Before(match.CreatedAt) {
			e := entity
			match = &e
		}
	}
	if match == nil {
		return nil, ErrNotFound
	}
	return match, nil
}

func (s *MemoryStore) CreateEntity(_ context.Context, entity *models.Entity) error {
	defer s.write()()
	ensureID(&entity.ID)
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = now()
	}
	s.state.entities[entity.ID] = *entity
	return nil
}

func (s *MemoryStore) FindValue(_ context.Context, entityID, attributeID uuid.UUID) (*models.Value, error) {
	defer s.read()()
	for _, value := range s.state.values {
		if value.EntityID == entityID && value.AttributeID == attributeID {
			return found(value, true)
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateValue(_ context.Context, value *models.Value) error {
	defer s.write()()
	ensureID(&value.ID)
	if value.CreatedAt.IsZero() {
		value.CreatedAt = now()
	}
	value.UpdatedAt = value.CreatedAt
	s.state.values[value.ID] = *value
	return nil
}

func (s *MemoryStore) UpdateValue(_ context.Context, value *models.Value) error {
	defer s.write()()
	existing, ok := s.state.values[value.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Data = value.Data
	existing.UpdatedAt = value.UpdatedAt
	s.state.values[value.ID] = existing
	return nil
}

func (s *MemoryStore) ListValues(_ context.Context, ownerID uuid.UUID) ([]models.Value, error) {
	defer s.read()()
	var out []models.Value
	for _, value := range s.state.values {
		entity, ok := s.state.entities[value.EntityID]
		if ok && entity.OwnerID == ownerID {
			out = append(out, value)
		}
	}
	slices.SortFunc(out, func(a, b models.Value) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return out, nil
}

// Tenancy

func (s *MemoryStore) CreateProject(_ context.Context, project *models.Project) error {
	defer s.write()()
	ensureID(&project.ID)
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now()
	}
	s.state.projects[project.ID] = *project
	return nil
}

func (s *MemoryStore) CreateLinkedUser(_ context.Context, user *models.LinkedUser) error {
	defer s.write()()
	ensureID(&user.ID)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now()
	}
	s.state.linkedUsers[user.ID] = *user
	return nil
}

func (s *MemoryStore) ListLinkedUsers(_ context.Context, projectID *uuid.UUID) ([]models.LinkedUser, error) {
	defer s.read()()
	var out []models.LinkedUser
	for _, user := range s.state.linkedUsers {
		if projectID != nil && user.ProjectID != *projectID {
			continue
		}
		out = append(out, user)
	}
	slices.SortFunc(out, func(a, b models.LinkedUser) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) GetLinkedUser(_ context.Context, id uuid.UUID) (*models.LinkedUser, error) {
	defer s.read()()
	row, ok := s.state.linkedUsers[id]
	return found(row, ok)
}

func (s *MemoryStore) FindConnection(_ context.Context, linkedUserID uuid.UUID, provider, vertical string) (*models.Connection, error) {
	defer s.read()()
	row, ok := s.findConnection(linkedUserID, provider, vertical)
	return found(row, ok)
}

func (s *MemoryStore) findConnection(linkedUserID uuid.UUID, provider, vertical string) (models.Connection, bool) {
	for _, conn := range s.state.connections {
		if conn.LinkedUserID == linkedUserID && conn.ProviderSlug == provider && conn.Vertical == vertical && !conn.DeletedAt.Valid {
			return conn, true
		}
	}
	return models.Connection{}, false
}

func (s *MemoryStore) SaveConnection(_ context.Context, conn *models.Connection) error {
	defer s.write()()
	if existing, ok := s.findConnection(conn.LinkedUserID, conn.ProviderSlug, conn.Vertical); ok {
		conn.ID = existing.ID
		conn.CreatedAt = existing.CreatedAt
	} else {
		ensureID(&conn.ID)
		if conn.CreatedAt.IsZero() {
			conn.CreatedAt = now()
		}
	}
	conn.UpdatedAt = now()
	s.state.connections[conn.ID] = *conn
	return nil
}

// Events

func (s *MemoryStore) CreateEvent(_ context.Context, event *models.Event) error {
	defer s.write()()
	ensureID(&event.ID)
	if event.Timestamp.IsZero() {
		event.Timestamp = now()
	}
	s.state.events = append(s.state.events, *event)
	return nil
}

func (s *MemoryStore) ListEvents(_ context.Context, projectID uuid.UUID) ([]models.Event, error) {
	defer s.read()()
	var out []models.Event
	for _, event := range s.state.events {
		if event.ProjectID == projectID {
			out = append(out, event)
		}
	}
	return out, nil
}

// Webhooks

func (s *MemoryStore) CreateEndpoint(_ context.Context, endpoint *models.WebhookEndpoint) error {
	defer s.write()()
	ensureID(&endpoint.ID)
	if endpoint.CreatedAt.IsZero() {
		endpoint.CreatedAt = now()
	}
	s.state.endpoints[endpoint.ID] = *endpoint
	return nil
}

func (s *MemoryStore) ListActiveEndpoints(_ context.Context, projectID uuid.UUID) ([]models.WebhookEndpoint, error) {
	defer s.read()()
	var out []models.WebhookEndpoint
	for _, endpoint := range s.state.endpoints {
		if endpoint.ProjectID == projectID && endpoint.Active {
			out = append(out, endpoint)
		}
	}
	slices.SortFunc(out, func(a, b models.WebhookEndpoint) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return out, nil
}

func (s *MemoryStore) GetEndpoint(_ context.Context, id uuid.UUID) (*models.WebhookEndpoint, error) {
	defer s.read()()
	row, ok := s.state.endpoints[id]
	return found(row, ok)
}

func (s *MemoryStore) CreateDelivery(_ context.Context, payload *models.WebhookPayload, attempt *models.WebhookDeliveryAttempt) error {
	defer s.write()()
	ensureID(&payload.ID)
	ensureID(&attempt.ID)
	if payload.CreatedAt.IsZero() {
		payload.CreatedAt = now()
	}
	attempt.PayloadID = payload.ID
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = now()
	}
	attempt.UpdatedAt = attempt.Timestamp
	s.state.payloads[payload.ID] = *payload
	s.state.attempts[attempt.ID] = *attempt
	return nil
}

func (s *MemoryStore) GetPayload(_ context.Context, id uuid.UUID) (*models.WebhookPayload, error) {
	defer s.read()()
	row, ok := s.state.payloads[id]
	return found(row, ok)
}

func (s *MemoryStore) GetAttempt(_ context.Context, id uuid.UUID) (*models.WebhookDeliveryAttempt, error) {
	defer s.read()()
	row, ok := s.state.attempts[id]
	return found(row, ok)
}

func (s *MemoryStore) ClaimAttempt(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	defer s.write()()
	attempt, ok := s.state.attempts[id]
	if !ok || !claimable(attempt, at) {
		return false, nil
	}
	attempt.Status = models.DeliveryStatusProcessed
	attempt.UpdatedAt = now()
	s.state.attempts[id] = attempt
	return true, nil
}

func (s *MemoryStore) UpdateAttempt(_ context.Context, attempt *models.WebhookDeliveryAttempt) error {
	defer s.write()()
	existing, ok := s.state.attempts[attempt.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Status = attempt.Status
	existing.AttemptCount = attempt.AttemptCount
	existing.NextRetry = attempt.NextRetry
	existing.LastError = attempt.LastError
	existing.ResponseStatus = attempt.ResponseStatus
	existing.ResponseBody = attempt.ResponseBody
	existing.UpdatedAt = now()
	s.state.attempts[attempt.ID] = existing
	return nil
}

func (s *MemoryStore) ListAttempts(_ context.Context, filter AttemptFilter) ([]models.WebhookDeliveryAttempt, error) {
	defer s.read()()
	var out []models.WebhookDeliveryAttempt
	for _, attempt := range s.state.attempts {
		if attempt.ProjectID == filter.ProjectID {
			out = append(out, attempt)
		}
	}
	slices.SortFunc(out, func(a, b models.WebhookDeliveryAttempt) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return paginate(out, filter.Offset, filter.Limit), nil
}

func (s *MemoryStore) ListDueAttempts(_ context.Context, cutoff time.Time, limit int) ([]models.WebhookDeliveryAttempt, error) {
	defer s.read()()
	var out []models.WebhookDeliveryAttempt
	for _, attempt := range s.state.attempts {
		if due, ok := dueAt(attempt); ok && !due.After(cutoff) {
			out = append(out, attempt)
		}
	}
	slices.SortFunc(out, func(a, b models.WebhookDeliveryAttempt) int {
		da, _ := dueAt(a)
		db, _ := dueAt(b)
		return da.Compare(db)
	})
	return paginate(out, 0, limit), nil
}

// dueAt is next_retry for failed attempts and the creation time for queued ones
func dueAt(attempt models.WebhookDeliveryAttempt) (time.Time, bool) {
	switch attempt.Status {
	case models.DeliveryStatusFailed:
		if attempt.NextRetry == nil {
			return time.Time{}, false
		}
		return *attempt.NextRetry, true
	case models.DeliveryStatusQueued:
		return attempt.Timestamp, true
	default:
		return time.Time{}, false
	}
}

func (s *MemoryStore) CreateDeliveryLog(_ context.Context, log *models.WebhookDeliveryLog) error {
	defer s.write()()
	s.state.nextLogID++
	log.ID = s.state.nextLogID
	if log.CreatedAt.IsZero() {
		log.CreatedAt = now()
	}
	s.state.logs = append(s.state.logs, *log)
	return nil
}

func (s *MemoryStore) ListDeliveryLogs(_ context.Context, attemptID uuid.UUID) ([]models.WebhookDeliveryLog, error) {
	defer s.read()()
	var out []models.WebhookDeliveryLog
	for _, log := range s.state.logs {
		if log.AttemptID == attemptID {
			out = append(out, log)
		}
	}
	return out, nil
}

func claimable(attempt models.WebhookDeliveryAttempt, at time.Time) bool {
	switch attempt.Status {
	case models.DeliveryStatusQueued:
		return true
	case models.DeliveryStatusFailed:
		return attempt.NextRetry == nil || !attempt.NextRetry.After(at)
	default:
		return false
	}
}

func compareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}

func paginate[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
