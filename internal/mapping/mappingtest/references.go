// Package mappingtest provides in-memory collaborators for mapper tests.
package mappingtest

import (
	"context"

	"github.com/google/uuid"
)

// References is a fixed two-way table of (object type, remote id) <-> internal id
type References struct {
	internal map[string]string
	remote   map[string]string
}

func NewReferences() *References {
	return &References{internal: map[string]string{}, remote: map[string]string{}}
}

func (r *References) Add(objectType, remoteID, internalID string) *References {
	r.internal[objectType+"/"+remoteID] = internalID
	r.remote[internalID] = remoteID
	return r
}

func (r *References) InternalID(_ context.Context, objectType, remoteID, _ string, _ uuid.UUID) (string, bool) {
	id, ok := r.internal[objectType+"/"+remoteID]
	return id, ok
}

func (r *References) RemoteID(_ context.Context, internalID string) (string, bool) {
	id, ok := r.remote[internalID]
	return id, ok
}
