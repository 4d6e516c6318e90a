package harness

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/handlerqueue/multipart-contract-tests/framework"
)

// MockEndpoint represents an endpoint that can receive requests.
type MockEndpoint struct {
	owner    *TestHarness
	id       string
	basePath string
	handler  http.Handler
	cancels  []*context.CancelFunc
	logger   framework.Logger
	closed   bool
	lock     sync.Mutex
	closing  sync.Once
}

// NewMockEndpoint adds a new endpoint that can receive requests.
//
// The specified handler will be called for all incoming requests to the endpoint's
// base URL or any subpath of it. For instance, if the generated base URL (as reported
// by MockEndpoint.BaseURL()) is http://localhost:8111/endpoints/3, then it can also
// receive requests to http://localhost:8111/endpoints/3/some/subpath.
//
// When the handler is called, the test harness rewrites the request URL first so that
// the handler sees only the subpath. It also attaches a Context to the request whose
// Done channel will be closed if Close is called on the endpoint.
func (h *TestHarness) NewMockEndpoint(
	handler http.Handler,
	logger framework.Logger,
) *MockEndpoint {
	if logger == nil {
		logger = h.logger
	}
	e := &MockEndpoint{
		owner:   h,
		handler: handler,
		logger:  logger,
	}
	h.lock.Lock()
	h.lastEndpointID++
	e.id = strconv.Itoa(h.lastEndpointID)
	e.basePath = endpointPathPrefix + e.id
	h.endpoints[e.id] = e
	h.lock.Unlock()

	logger.Printf("Started mock endpoint %s", e.BaseURL())
	return e
}

// BaseURL returns the base path of the mock endpoint.
func (e *MockEndpoint) BaseURL() string {
	return e.owner.testHarnessExternalBaseURL + e.basePath
}

// Close unregisters the endpoint. Any subsequent requests to it will receive 404 errors.
// It also cancels the Context for every active request to that endpoint.
func (e *MockEndpoint) Close() {
	e.closing.Do(func() {
		e.owner.lock.Lock()
		delete(e.owner.endpoints, e.id)
		e.owner.lock.Unlock()

		e.lock.Lock()
		cancellers := e.cancels
		e.cancels = nil
		e.closed = true
		e.lock.Unlock()

		for _, cancel := range cancellers {
			(*cancel)()
		}
		e.logger.Printf("Closed mock endpoint %s", e.BaseURL())
	})
}
