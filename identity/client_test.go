package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUserID = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

// Test helper to create a fake GoTrue server
func createMockProvider(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Config{URL: server.URL + "/", APIKey: "anon-key", HTTPTimeout: 2 * time.Second}), server
}

func TestClient_GetUser(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		client, _ := createMockProvider(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/auth/v1/user", r.URL.Path)
			assert.Equal(t, "Bearer good-token", r.Header.Get("Authorization"))
			assert.Equal(t, "anon-key", r.Header.Get("apikey"))

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"id": testUserID, "email": "ana@example.com"})
		})

		id, err := client.GetUser(context.Background(), "good-token")
		require.NoError(t, err)
		assert.Equal(t, testUserID, id.UserID.String())
		assert.Equal(t, "ana@example.com", id.Email)
		assert.Equal(t, "good-token", id.AccessToken)
	})

	t.Run("rejected token", func(t *testing.T) {
		client, _ := createMockProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := client.GetUser(context.Background(), "bad-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("provider down", func(t *testing.T) {
		client, _ := createMockProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		_, err := client.GetUser(context.Background(), "token")
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	})

	t.Run("malformed body", func(t *testing.T) {
		client, _ := createMockProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"not-a-uuid"}`))
		})

		_, err := client.GetUser(context.Background(), "token")
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})

	t.Run("empty token never hits provider", func(t *testing.T) {
		var calls int32
		client, _ := createMockProvider(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
		})

		_, err := client.GetUser(context.Background(), "")
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()
		client := NewClient(Config{URL: server.URL, HTTPTimeout: 20 * time.Millisecond})

		_, err := client.GetUser(context.Background(), "token")
		assert.ErrorIs(t, err, ErrProviderUnavailable)
	})

	t.Run("not configured", func(t *testing.T) {
		client := NewClient(Config{})

		_, err := client.GetUser(context.Background(), "token")
		assert.ErrorIs(t, err, ErrNotConfigured)
	})
}

func TestClient_RefreshToken(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		client, _ := createMockProvider(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/auth/v1/token", r.URL.Path)
			assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "rt-1", body["refresh_token"])

			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "at-2",
				"refresh_token": "rt-2",
				"expires_in":    1800,
				"token_type":    "bearer",
			})
		})

		pair, err := client.RefreshToken(context.Background(), "rt-1")
		require.NoError(t, err)
		assert.Equal(t, "at-2", pair.AccessToken)
		assert.Equal(t, "rt-2", pair.RefreshToken)
		assert.Equal(t, 30*time.Minute, pair.AccessTTL())
	})

	t.Run("revoked refresh token", func(t *testing.T) {
		client, _ := createMockProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		})

		_, err := client.RefreshToken(context.Background(), "rt-old")
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})

	t.Run("incomplete pair", func(t *testing.T) {
		client, _ := createMockProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"access_token":"at-2"}`))
		})

		_, err := client.RefreshToken(context.Background(), "rt-1")
		assert.ErrorIs(t, err, ErrMalformedResponse)
	})
}

func TestClient_SignInWithPassword(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		client, _ := createMockProvider(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "password", r.URL.Query().Get("grant_type"))

			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "ana@example.com", body["email"])
			assert.Equal(t, "hunter22", body["password"])

			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "at-1",
				"refresh_token": "rt-1",
				"user":          map[string]string{"id": testUserID, "email": "ana@example.com"},
			})
		})

		pair, id, err := client.SignInWithPassword(context.Background(), "ana@example.com", "hunter22")
		require.NoError(t, err)
		assert.Equal(t, "at-1", pair.AccessToken)
		assert.Equal(t, time.Hour, pair.AccessTTL())
		assert.Equal(t, testUserID, id.UserID.String())
		assert.Equal(t, "at-1", id.AccessToken)
	})

	t.Run("bad credentials", func(t *testing.T) {
		client, _ := createMockProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		_, _, err := client.SignInWithPassword(context.Background(), "ana@example.com", "wrong")
		assert.ErrorIs(t, err, ErrInvalidGrant)
	})
}

func TestClient_SignOut(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"no content", http.StatusNoContent, false},
		{"already signed out", http.StatusUnauthorized, false},
		{"provider error", http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := createMockProvider(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/auth/v1/logout", r.URL.Path)
				assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
			})

			err := client.SignOut(context.Background(), "at-1")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrProviderUnavailable)
				return
			}
			assert.NoError(t, err)
		})
	}

	t.Run("empty token", func(t *testing.T) {
		client := NewClient(Config{})
		assert.NoError(t, client.SignOut(context.Background(), ""))
	})
}
