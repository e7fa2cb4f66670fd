package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"recmirror/internal/config"
	"recmirror/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *Client {
	logger := zerolog.Nop()
	return NewClient(config.SourceConfig{
		BaseURL: serverURL,
		APIKey:  "test-key",
		RPS:     100,
		Burst:   100,
		Timeout: 5,
	}, &logger)
}

func TestFetchStructure(t *testing.T) {
	var gotPath, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"structure":{"fields":["id","name"]},"dependents":["items","invoices"]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	group := &models.Group{SourceRef: "team-a"}

	got, err := client.FetchStructure(context.Background(), group, "orders")
	require.NoError(t, err)

	assert.Equal(t, "/v1/groups/team-a/records/orders/structure", gotPath)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.JSONEq(t, `{"fields":["id","name"]}`, string(got.Structure))
	assert.Equal(t, []string{"items", "invoices"}, got.Dependents)
}

func TestFetchStructureHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "record not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchStructure(context.Background(), &models.Group{SourceRef: "team-a"}, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "record not found")
}

func TestFetchStructureEmptyStructure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dependents":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchStructure(context.Background(), &models.Group{SourceRef: "team-a"}, "orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty structure")
}

func TestFetchStructureBadJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.FetchStructure(context.Background(), &models.Group{SourceRef: "team-a"}, "orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode structure")
}

func TestFetchStructureContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchStructure(ctx, &models.Group{SourceRef: "team-a"}, "orders")
	assert.Error(t, err)
}
