package requests_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"syncer/src/utils"
	requests "syncer/src/utils/requests"
)

func TestExternalAPIServiceDo(t *testing.T) {
	ctx := context.Background()

	t.Run("RetriesOnServerErrorsUntilSuccess", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts < 3 {
				http.Error(w, "try again", http.StatusInternalServerError)
				return
			}
			fmt.Fprint(w, `{"ok": true}`)
		}))
		defer server.Close()

		api := requests.NewExternalAPIService(server.Client(), 0)
		body, err := api.Get(ctx, server.URL, "", nil, nil)

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.JSONEq(t, `{"ok": true}`, string(body))
	})

	t.Run("RetriesOnThrottling", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts == 1 {
				w.Header().Set("Retry-After", "0")
				http.Error(w, "slow down", http.StatusTooManyRequests)
				return
			}
			fmt.Fprint(w, `{}`)
		}))
		defer server.Close()

		api := requests.NewExternalAPIService(server.Client(), 0)
		_, err := api.Get(ctx, server.URL, "", nil, nil)

		require.NoError(t, err)
		assert.Equal(t, 2, attempts)
	})

	t.Run("ClientErrorsAreTerminal", func(t *testing.T) {
		var attempts int
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			http.Error(w, "missing", http.StatusNotFound)
		}))
		defer server.Close()

		api := requests.NewExternalAPIService(server.Client(), 0)
		_, err := api.Get(ctx, server.URL, "", nil, nil)

		require.Error(t, err)
		assert.Equal(t, 1, attempts)
		assert.True(t, utils.IsNotFound(err))
	})

	t.Run("SendsAuthAndCustomHeaders", func(t *testing.T) {
		var auth, version string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth = r.Header.Get("Authorization")
			version = r.Header.Get("Linkedin-Version")
			fmt.Fprint(w, `{}`)
		}))
		defer server.Close()

		api := requests.NewExternalAPIService(server.Client(), 0)
		_, err := api.Get(ctx, server.URL, "secret", nil, map[string]string{"Linkedin-Version": "202312"})

		require.NoError(t, err)
		assert.Equal(t, "Bearer secret", auth)
		assert.Equal(t, "202312", version)
	})

	t.Run("MarshalsTheRequestBody", func(t *testing.T) {
		var received string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			received = string(body)
			fmt.Fprint(w, `{}`)
		}))
		defer server.Close()

		api := requests.NewExternalAPIService(server.Client(), 0)
		_, err := api.Post(ctx, server.URL, "", map[string]string{"name": "Acme"}, nil)

		require.NoError(t, err)
		assert.JSONEq(t, `{"name": "Acme"}`, received)
	})
}
