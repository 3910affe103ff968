package twenty_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncer/src/clients/twenty"
	"syncer/src/schemas"
	requests "syncer/src/utils/requests"
)

func newTestClient(server *httptest.Server, batchSize int) *twenty.TwentyServiceClient {
	return &twenty.TwentyServiceClient{
		API:       requests.NewExternalAPIService(server.Client(), 0),
		BaseURL:   server.URL,
		APIKey:    "test-key",
		BatchSize: batchSize,
	}
}

func TestTwentyServiceClientFetchAll(t *testing.T) {
	ctx := context.Background()

	t.Run("PagesWithCursorsAndDropsMalformedRecords", func(t *testing.T) {
		var authHeader string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/rest/companies", r.URL.Path)
			authHeader = r.Header.Get("Authorization")

			switch r.URL.Query().Get("starting_after") {
			case "":
				fmt.Fprint(w, `{
					"data": {"companies": [
						{"id": "c1", "updatedAt": "2024-05-01T10:00:00Z", "name": "Acme"},
						{"id": "c2", "updatedAt": "2024-05-01T11:00:00Z", "name": "Globex"},
						{"id": "broken", "name": "No Timestamp"}
					]},
					"pageInfo": {"hasNextPage": true, "endCursor": "cur-1"}
				}`)
			case "cur-1":
				fmt.Fprint(w, `{
					"data": {"companies": [
						{"id": "c3", "updatedAt": "2024-05-01T12:00:00Z", "name": "Initech"}
					]},
					"pageInfo": {"hasNextPage": false}
				}`)
			default:
				t.Errorf("unexpected cursor %q", r.URL.Query().Get("starting_after"))
			}
		}))
		defer server.Close()

		records, err := newTestClient(server, 60).FetchAll(ctx, "companies")

		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "c1", records[0].ID())
		assert.Equal(t, "c3", records[2].ID())
		assert.Equal(t, "Bearer test-key", authHeader)
	})

	t.Run("EmptyStoreReturnsNoRecords", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data": {"companies": []}, "pageInfo": {"hasNextPage": false}}`)
		}))
		defer server.Close()

		records, err := newTestClient(server, 60).FetchAll(ctx, "companies")

		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("ServerErrorSurfacesAfterRetries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusBadRequest)
		}))
		defer server.Close()

		_, err := newTestClient(server, 60).FetchAll(ctx, "companies")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "companies")
	})
}

func TestTwentyServiceClientBatches(t *testing.T) {
	ctx := context.Background()

	t.Run("ChunksBySizeAndReportsPerRecord", func(t *testing.T) {
		var chunkSizes []int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/rest/batch/companies", r.URL.Path)
			require.Equal(t, http.MethodPost, r.Method)

			var chunk []schemas.Record
			require.NoError(t, json.NewDecoder(r.Body).Decode(&chunk))
			chunkSizes = append(chunkSizes, len(chunk))

			created := make([]schemas.Record, 0, len(chunk))
			for i, rec := range chunk {
				rec.SetID(fmt.Sprintf("gen-%d-%d", len(chunkSizes), i))
				rec["updatedAt"] = "2024-05-01T12:00:00Z"
				created = append(created, rec)
			}
			payload, _ := json.Marshal(map[string]interface{}{
				"data": map[string]interface{}{"createCompanies": created},
			})
			w.Write(payload)
		}))
		defer server.Close()

		records := []schemas.Record{
			{"name": "One"}, {"name": "Two"}, {"name": "Three"},
		}
		results := newTestClient(server, 2).BatchCreate(ctx, "companies", records)

		assert.Equal(t, []int{2, 1}, chunkSizes)
		require.Len(t, results, 3)
		for i, result := range results {
			assert.Equal(t, i, result.Index)
			require.NoError(t, result.Err)
			assert.NotEmpty(t, result.Record.ID())
		}
	})

	t.Run("FailedChunkFailsOnlyItsRecords", func(t *testing.T) {
		var calls int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls == 1 {
				http.Error(w, `{"error": "validation failed"}`, http.StatusBadRequest)
				return
			}
			fmt.Fprint(w, `{"data": {"createCompanies": [
				{"id": "gen-3", "updatedAt": "2024-05-01T12:00:00Z", "name": "Three"}
			]}}`)
		}))
		defer server.Close()

		records := []schemas.Record{
			{"name": "One"}, {"name": "Two"}, {"name": "Three"},
		}
		results := newTestClient(server, 2).BatchCreate(ctx, "companies", records)

		require.Len(t, results, 3)
		assert.Error(t, results[0].Err)
		assert.Error(t, results[1].Err)
		require.NoError(t, results[2].Err)
		assert.Equal(t, 2, results[2].Index)
		assert.Equal(t, "gen-3", results[2].Record.ID())
	})

	t.Run("MissingReturnedRecordsAreErrors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPatch, r.Method)
			fmt.Fprint(w, `{"data": {"updateCompanies": [
				{"id": "c1", "updatedAt": "2024-05-01T12:00:00Z"}
			]}}`)
		}))
		defer server.Close()

		records := []schemas.Record{
			{"id": "c1", "name": "One"}, {"id": "c2", "name": "Two"},
		}
		results := newTestClient(server, 10).BatchUpdate(ctx, "companies", records)

		require.Len(t, results, 2)
		assert.NoError(t, results[0].Err)
		assert.Error(t, results[1].Err)
	})
}

func TestTwentyServiceClientSingleRecordOps(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateRecordUnwrapsTheOperationKey", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/rest/companies", r.URL.Path)
			fmt.Fprint(w, `{"data": {"createCompany":
				{"id": "c9", "updatedAt": "2024-05-01T12:00:00Z", "name": "Acme"}
			}}`)
		}))
		defer server.Close()

		created, err := newTestClient(server, 10).CreateRecord(ctx, "companies", schemas.Record{"name": "Acme"})

		require.NoError(t, err)
		assert.Equal(t, "c9", created.ID())
	})

	t.Run("DeleteRecordHitsTheRecordURL", func(t *testing.T) {
		var path, method string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path, method = r.URL.Path, r.Method
			fmt.Fprint(w, `{}`)
		}))
		defer server.Close()

		err := newTestClient(server, 10).DeleteRecord(ctx, "companies", "c1")

		require.NoError(t, err)
		assert.Equal(t, "/rest/companies/c1", path)
		assert.Equal(t, http.MethodDelete, method)
	})
}

func TestTwentyServiceClientHealth(t *testing.T) {
	t.Run("HealthyServer", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/healthz", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		assert.True(t, newTestClient(server, 10).Health(context.Background()))
	})

	t.Run("UnreachableServer", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		assert.False(t, newTestClient(server, 10).Health(context.Background()))
	})
}
