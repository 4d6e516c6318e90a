package harness

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/handlerqueue/multipart-contract-tests/framework"
)

const endpointPathPrefix = "/endpoints/"
const httpListenerTimeout = time.Second * 10

// TestHarness manages communication with the test service, and the HTTP listener that receives
// requests from the test service on behalf of mock endpoints.
type TestHarness struct {
	testServiceBaseURL         string
	testHarnessExternalBaseURL string
	testServiceInfo            TestServiceInfo
	endpoints                  map[string]*MockEndpoint
	lastEndpointID             int
	server                     *http.Server
	logger                     framework.Logger
	lock                       sync.Mutex
}

// NewTestHarness creates a TestHarness instance, and verifies that the test service
// is responding by querying its status resource. It also starts an HTTP listener on the specified
// port to receive callback requests. If the port is zero, any free port is used.
func NewTestHarness(
	testServiceBaseURL string,
	testHarnessExternalHostname string,
	testHarnessPort int,
	statusQueryTimeout time.Duration,
	debugLogger framework.Logger,
	startupOutput io.Writer,
) (*TestHarness, error) {
	if debugLogger == nil {
		debugLogger = framework.NullLogger()
	}

	h := &TestHarness{
		testServiceBaseURL: strings.TrimSuffix(testServiceBaseURL, "/"),
		endpoints:          make(map[string]*MockEndpoint),
		logger:             debugLogger,
	}

	testServiceInfo, err := queryTestServiceInfo(testServiceBaseURL, statusQueryTimeout, startupOutput)
	if err != nil {
		return nil, err
	}
	h.testServiceInfo = testServiceInfo

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", testHarnessPort))
	if err != nil {
		return nil, err
	}
	actualPort := listener.Addr().(*net.TCPAddr).Port
	h.testHarnessExternalBaseURL = fmt.Sprintf("http://%s:%d", testHarnessExternalHostname, actualPort)

	server, err := startServer(listener, actualPort, http.HandlerFunc(h.serveHTTP))
	if err != nil {
		return nil, err
	}
	h.server = server

	return h, nil
}

// TestServiceInfo returns the status information that the test service reported at startup.
func (h *TestHarness) TestServiceInfo() TestServiceInfo {
	return h.testServiceInfo
}

// TestServiceBaseURL returns the root URL of the test service, without a trailing slash.
func (h *TestHarness) TestServiceBaseURL() string {
	return h.testServiceBaseURL
}

// Close shuts down the harness's own HTTP listener.
func (h *TestHarness) Close() error {
	if h.server == nil {
		return nil
	}
	return h.server.Close()
}

func (h *TestHarness) serveHTTP(w http.ResponseWriter, req *http.Request) {
	if !strings.HasPrefix(req.URL.Path, endpointPathPrefix) {
		h.logger.Printf("Received request for unrecognized URL path %s", req.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		return
	}
	path := strings.TrimPrefix(req.URL.Path, endpointPathPrefix)
	var endpointID string
	slashPos := strings.Index(path, "/")
	if slashPos >= 0 {
		endpointID = path[0:slashPos]
		path = path[slashPos:]
	} else {
		endpointID = path
		path = ""
	}

	h.lock.Lock()
	e := h.endpoints[endpointID]
	h.lock.Unlock()
	if e == nil {
		h.logger.Printf("Received request for unrecognized endpoint %s", req.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var body []byte
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		_ = req.Body.Close()
		if err != nil {
			h.logger.Printf("Unexpected error trying to read request body: %s", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		body = data
	}

	e.lock.Lock()
	if e.closed {
		e.lock.Unlock()
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ctx, canceller := context.WithCancel(req.Context())
	cancellerPtr := &canceller
	e.cancels = append(e.cancels, cancellerPtr)
	e.lock.Unlock()

	transformedReq := req.WithContext(ctx)
	url := *req.URL
	url.Path = path
	transformedReq.URL = &url
	if body != nil {
		transformedReq.Body = io.NopCloser(bytes.NewBuffer(body))
	}

	e.handler.ServeHTTP(w, transformedReq)

	e.lock.Lock()
	for i, c := range e.cancels {
		if c == cancellerPtr { // can't compare functions with ==, but can compare pointers
			e.cancels = append(e.cancels[:i], e.cancels[i+1:]...)
			break
		}
	}
	e.lock.Unlock()
	canceller()
}

func startServer(listener net.Listener, port int, handler http.Handler) (*http.Server, error) {
	server := &http.Server{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead {
				w.WriteHeader(http.StatusOK) // we use this to test whether our own listener is active yet
				return
			}
			handler.ServeHTTP(w, r)
		}),
	}
	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	// Wait till the server is definitely listening for requests before we run any tests
	deadline := time.NewTimer(httpListenerTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(time.Millisecond * 10)
	defer ticker.Stop()
	for {
		select {
		case <-deadline.C:
			return nil, fmt.Errorf("could not detect own listener at port %d", port)
		case <-ticker.C:
			resp, err := http.DefaultClient.Head(fmt.Sprintf("http://localhost:%d", port))
			if err == nil {
				_ = resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return server, nil
				}
			}
		}
	}
}
