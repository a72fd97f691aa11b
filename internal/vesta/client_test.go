package vesta

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(server.URL+"/", "alice", "secret", quietLogger())
	client.retryWait = time.Millisecond
	return server, client
}

func TestClientLogsInBeforeFirstRequest(t *testing.T) {
	var loginCalls, dataCalls atomic.Int32
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login.php":
			loginCalls.Add(1)
			assert.Equal(t, "alice", r.URL.Query().Get("login"))
			assert.Equal(t, "secret", r.URL.Query().Get("password"))
			w.Write([]byte("tok-123\n"))
		case "/getBuildingList.php":
			dataCalls.Add(1)
			assert.Equal(t, "tok-123", r.URL.Query().Get("token"))
			w.Write([]byte(`[{"id":"bat-1","name":"Maison A"}]`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	body, err := client.Get("getBuildingList.php", nil)
	require.NoError(t, err)
	assert.Contains(t, string(body), "bat-1")

	// The token is reused on subsequent calls.
	_, err = client.Get("getBuildingList.php", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), loginCalls.Load())
	assert.Equal(t, int32(2), dataCalls.Load())
}

func TestClientRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login.php" {
			w.Write([]byte("tok"))
			return
		}
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("42"))
	})

	body, err := client.Get("getSensorHistorySize.php", url.Values{"building": {"bat-1"}})
	require.NoError(t, err)
	assert.Equal(t, "42", string(body))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClientSurfacesClientErrors(t *testing.T) {
	var attempts atomic.Int32
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login.php" {
			w.Write([]byte("tok"))
			return
		}
		attempts.Add(1)
		http.Error(w, "no such building", http.StatusNotFound)
	})

	_, err := client.Get("getStatus.php", nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, int32(1), attempts.Load(), "4xx responses are not retried")
}

func TestClientEmptyTokenIsAnError(t *testing.T) {
	_, client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  "))
	})

	_, err := client.Get("getBuildingList.php", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty token")
}
