package harness

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusHandler() http.Handler {
	return httphelpers.HandlerWithJSONResponse(map[string]interface{}{
		"name":         "fake service",
		"capabilities": []string{"log-sink", "hidden-store"},
		"handlerQueue": "new",
	}, nil)
}

func withHarness(t *testing.T, serviceHandler http.Handler, action func(*TestHarness, *httptest.Server)) {
	httphelpers.WithServer(serviceHandler, func(server *httptest.Server) {
		h, err := NewTestHarness(server.URL, "localhost", 0, time.Second, nil, io.Discard)
		require.NoError(t, err)
		defer h.Close()
		action(h, server)
	})
}

func TestHarnessReadsServiceStatus(t *testing.T) {
	withHarness(t, statusHandler(), func(h *TestHarness, _ *httptest.Server) {
		info := h.TestServiceInfo()
		assert.Equal(t, "fake service", info.Name)
		assert.True(t, info.Capabilities.Has("hidden-store"))
		assert.Contains(t, string(info.FullData), `"handlerQueue":"new"`)
	})
}

func TestHarnessFailsOnErrorStatus(t *testing.T) {
	httphelpers.WithServer(httphelpers.HandlerWithStatus(503), func(server *httptest.Server) {
		_, err := NewTestHarness(server.URL, "localhost", 0, time.Second, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "503")
	})
}

func TestHarnessTimesOutIfServiceIsUnreachable(t *testing.T) {
	server := httptest.NewServer(statusHandler())
	url := server.URL
	server.Close()

	_, err := NewTestHarness(url, "localhost", 0, time.Millisecond*200, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestHarnessTimesOutIfServiceNeverAnswers(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()
	var conns []net.Conn
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()
	accepted := make(chan net.Conn, 10)
	go func() {
		for {
			c, err := listener.Accept()
			if err != nil {
				return
			}
			accepted <- c
		}
	}()

	start := time.Now()
	_, err = NewTestHarness("http://"+listener.Addr().String(), "localhost", 0, time.Millisecond*300, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, int64(time.Since(start)), int64(time.Second*5))

	for len(accepted) > 0 {
		conns = append(conns, <-accepted)
	}
}

func TestEntityLifecycle(t *testing.T) {
	entityHandler, entityRequests := httphelpers.RecordingHandler(
		httphelpers.HandlerWithJSONResponse(map[string]interface{}{"exists": true}, nil),
	)
	createHandler, createRequests := httphelpers.RecordingHandler(
		httphelpers.HandlerWithResponse(http.StatusCreated, http.Header{"Location": []string{"/scopes/1"}}, nil),
	)
	mux := http.NewServeMux()
	mux.Handle("/scopes/1", entityHandler)
	mux.Handle("/", httphelpers.HandlerForMethod(http.MethodPost, createHandler, statusHandler()))

	withHarness(t, mux, func(h *TestHarness, server *httptest.Server) {
		e, err := h.NewTestServiceEntity(map[string]string{"tag": "x"}, "scope", nil)
		require.NoError(t, err)
		assert.Equal(t, server.URL+"/scopes/1", e.ResourceURL())

		created := <-createRequests
		assert.JSONEq(t, `{"tag":"x"}`, string(created.Body))

		var out struct {
			Exists bool `json:"exists"`
		}
		require.NoError(t, e.SendCommand("inspectUpload", nil, &out))
		assert.True(t, out.Exists)
		cmd := <-entityRequests
		assert.Equal(t, http.MethodPost, cmd.Request.Method)
		assert.JSONEq(t, `{"command":"inspectUpload"}`, string(cmd.Body))

		require.NoError(t, e.Close())
		closed := <-entityRequests
		assert.Equal(t, http.MethodDelete, closed.Request.Method)
	})
}

func TestEntityCreationRequiresLocation(t *testing.T) {
	mux := httphelpers.HandlerForMethod(http.MethodPost, httphelpers.HandlerWithStatus(http.StatusCreated), statusHandler())
	withHarness(t, mux, func(h *TestHarness, _ *httptest.Server) {
		_, err := h.NewTestServiceEntity(map[string]string{}, "scope", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Location")
	})
}

func TestMockEndpointRoutesSubpaths(t *testing.T) {
	withHarness(t, statusHandler(), func(h *TestHarness, _ *httptest.Server) {
		handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(http.StatusAccepted))
		e := h.NewMockEndpoint(handler, nil)

		resp, err := http.Post(e.BaseURL()+"/7", "application/json", bytes.NewBufferString(`{"a":1}`))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		r := <-requests
		assert.Equal(t, "/7", r.Request.URL.Path)
		assert.Equal(t, `{"a":1}`, string(r.Body))

		e.Close()
		resp, err = http.Post(e.BaseURL()+"/8", "application/json", bytes.NewBufferString(`{}`))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
