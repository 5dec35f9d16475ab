package presage_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"pulse-gateway/internal/models"
	"pulse-gateway/internal/presage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(srv *httptest.Server) *presage.Client {
	return presage.NewClient(srv.URL+"/api/v1", srv.URL+"/alt/v1", "test-key", 85, zap.NewNop())
}

func testFrame() models.Frame {
	return models.Frame{Image: image.NewRGBA(image.Rect(0, 0, 8, 8)), TimestampMS: 1700000000000}
}

func TestClient_Start_FirstCandidateWins(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// auth headers derived from the single api key
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/sessions", r.URL.Path)

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"session_id":"sess-1"}`))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	id, err := client.Start(context.Background(), "continuous")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", id)
	assert.Equal(t, "sess-1", client.SessionID())

	assert.Equal(t, "continuous", gotBody["mode"])
	assert.Equal(t, "vitals", gotBody["measurement_type"])
}

func TestClient_Start_FallsBackAcrossCandidates(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/api/v1/sessions":
			w.WriteHeader(http.StatusNotFound)
		case "/api/v1/measurements":
			// 200 without a usable id is not a session
			w.Write([]byte(`{"note":"accepted"}`))
		case "/alt/v1/sessions":
			w.Write([]byte(`{"id":"abc"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)
	id, err := client.Start(context.Background(), "spot")
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
	assert.Equal(t, []string{"/api/v1/sessions", "/api/v1/measurements", "/alt/v1/sessions"}, paths)
}

func TestClient_Start_NumericID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":123}`))
	}))
	defer srv.Close()

	client := newTestClient(srv)
	id, err := client.Start(context.Background(), "continuous")
	require.NoError(t, err)
	assert.Equal(t, "123", id)
}

func TestClient_Start_AllCandidatesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(srv)
	_, err := client.Start(context.Background(), "continuous")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote measurement service unavailable")
	assert.Empty(t, client.SessionID())
}

func TestClient_SendFrame_PostsJPEGPayload(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sessions":
			w.Write([]byte(`{"id":"s1"}`))
		case "/api/v1/sessions/s1/frames":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
			w.Write([]byte(`{"pulse":{"bpm":72.4}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)
	_, err := client.Start(context.Background(), "continuous")
	require.NoError(t, err)

	record, ok := client.SendFrame(context.Background(), testFrame())
	require.True(t, ok)
	assert.Contains(t, record, "pulse")

	assert.Equal(t, "jpg", gotBody["format"])
	assert.Equal(t, float64(1700000000000), gotBody["timestamp"])

	// frame field must hold a base64 JPEG (FF D8 magic)
	raw, err := base64.StdEncoding.DecodeString(gotBody["frame"].(string))
	require.NoError(t, err)
	require.Greater(t, len(raw), 2)
	assert.Equal(t, byte(0xFF), raw[0])
	assert.Equal(t, byte(0xD8), raw[1])
}

func TestClient_SendFrame_FallsBackToVideoEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sessions":
			w.Write([]byte(`{"id":"s1"}`))
		case "/api/v1/sessions/s1/frames":
			w.WriteHeader(http.StatusNotFound)
		case "/api/v1/sessions/s1/video":
			w.Write([]byte(`{"pulse":70}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)
	_, err := client.Start(context.Background(), "continuous")
	require.NoError(t, err)

	record, ok := client.SendFrame(context.Background(), testFrame())
	require.True(t, ok)
	assert.Equal(t, float64(70), record["pulse"])
}

func TestClient_SendFrame_WithoutSession(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	client := newTestClient(srv)
	_, ok := client.SendFrame(context.Background(), testFrame())
	assert.False(t, ok)
	assert.Zero(t, atomic.LoadInt32(&calls), "no HTTP traffic without a session")
}

func TestClient_SendFrame_BadJSONOn200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sessions":
			w.Write([]byte(`{"id":"s1"}`))
		case "/api/v1/sessions/s1/frames":
			w.Write([]byte(`not json`))
		default:
			t.Errorf("unexpected fallback to %s after a 200 response", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)
	_, err := client.Start(context.Background(), "continuous")
	require.NoError(t, err)

	_, ok := client.SendFrame(context.Background(), testFrame())
	assert.False(t, ok)
}

func TestClient_GetMetrics_FallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/sessions":
			w.Write([]byte(`{"id":"s1"}`))
		case "/api/v1/sessions/s1/metrics":
			w.WriteHeader(http.StatusInternalServerError)
		case "/api/v1/measurements/s1":
			require.Equal(t, http.MethodGet, r.Method)
			w.Write([]byte(`{"breathing":{"value":15.2}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)
	_, err := client.Start(context.Background(), "continuous")
	require.NoError(t, err)

	record, ok := client.GetMetrics(context.Background())
	require.True(t, ok)
	assert.Contains(t, record, "breathing")
}

func TestClient_Stop_DeletesSessionAndClearsID(t *testing.T) {
	var deletedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/sessions":
			w.Write([]byte(`{"id":"s1"}`))
		case r.Method == http.MethodDelete:
			deletedPath = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(srv)
	_, err := client.Start(context.Background(), "continuous")
	require.NoError(t, err)

	client.Stop(context.Background())
	assert.Equal(t, "/api/v1/sessions/s1", deletedPath)
	assert.Empty(t, client.SessionID())

	// second stop is a no-op
	deletedPath = ""
	client.Stop(context.Background())
	assert.Empty(t, deletedPath)
}

func TestClient_Stop_SwallowsTransportErrors(t *testing.T) {
	// a server that immediately went away: every candidate fails
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"s1"}`))
	}))
	client := newTestClient(srv)
	_, err := client.Start(context.Background(), "continuous")
	require.NoError(t, err)
	srv.Close()

	client.Stop(context.Background())
	assert.Empty(t, client.SessionID(), "session id cleared even when teardown never lands")
}
