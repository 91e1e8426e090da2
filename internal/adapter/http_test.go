package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFetchRemoteFollowsCursorAndRequestsFields(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/crm/v3/objects/companies", r.URL.Path)
		seen = append(seen, r.URL.Query().Get("properties"))
		assert.Equal(t, "false", r.URL.Query().Get("archived"))

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("after") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"results": []any{map[string]any{"id": "1"}},
				"paging":  map[string]any{"next": map[string]any{"after": "cursor-2"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []any{map[string]any{"id": "2"}},
		})
	}))
	defer server.Close()

	a := NewHTTPAdapter(HTTPConfig{
		ListPath:    "/crm/v3/objects/companies",
		Query:       map[string]string{"archived": "false"},
		ItemsKey:    "results",
		FieldsParam: "properties",
		BaseFields:  []string{"name", "industry"},
		CursorKey:   "paging.next.after",
		CursorParam: "after",
	}, server.Client(), zap.NewNop())

	records, err := a.FetchRemote(context.Background(), Connection{Provider: "hubspot", BaseURL: server.URL, AccessToken: "tok"}, []string{"custom_1", "name"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[0]["id"])
	assert.Equal(t, "2", records[1]["id"])
	assert.Equal(t, []string{"name,industry,custom_1", "name,industry,custom_1"}, seen)
}

func TestFetchRemoteBareArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":1},{"id":2},{"id":3}]`))
	}))
	defer server.Close()

	a := NewHTTPAdapter(HTTPConfig{ListPath: "jobs"}, server.Client(), zap.NewNop())
	records, err := a.FetchRemote(context.Background(), Connection{Provider: "ashby", BaseURL: server.URL + "/"}, nil)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestFetchRemoteNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"expired"}`))
	}))
	defer server.Close()

	a := NewHTTPAdapter(HTTPConfig{ListPath: "/x", ItemsKey: "data"}, server.Client(), zap.NewNop())
	_, err := a.FetchRemote(context.Background(), Connection{Provider: "zoho", BaseURL: server.URL}, nil)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "expired")
}

func TestCreateRemoteWrapsAndUnwraps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		ticket := body["ticket"]
		ticket["id"] = 77
		_ = json.NewEncoder(w).Encode(map[string]any{"ticket": ticket})
	}))
	defer server.Close()

	a := NewHTTPAdapter(HTTPConfig{CreatePath: "/api/v2/tickets.json", CreateWrapKey: "ticket"}, server.Client(), zap.NewNop())
	created, err := a.CreateRemote(context.Background(), Connection{Provider: "zendesk", BaseURL: server.URL}, map[string]any{"subject": "Help"})
	require.NoError(t, err)
	assert.Equal(t, "Help", created["subject"])
	assert.Equal(t, float64(77), created["id"])
}

func TestCreateRemoteUnsupported(t *testing.T) {
	a := NewHTTPAdapter(HTTPConfig{ListPath: "/jobs"}, nil, zap.NewNop())
	_, err := a.CreateRemote(context.Background(), Connection{Provider: "ashby", BaseURL: "http://example.invalid"}, map[string]any{})
	assert.Error(t, err)
}

func TestRegistryMissIsNotAnError(t *testing.T) {
	reg := NewRegistry()
	reg.Register(Key{Vertical: "crm", Object: "company", Provider: "hubspot"}, NewHTTPAdapter(HTTPConfig{}, nil, zap.NewNop()))

	_, ok := reg.Resolve("crm", "company", "hubspot")
	assert.True(t, ok)
	_, ok = reg.Resolve("crm", "deal", "zoho")
	assert.False(t, ok)
	assert.Len(t, reg.Keys(), 1)
}
