package testservice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/handlerqueue/multipart-contract-tests/servicedef"
)

const logCallbackTimeout = time.Second * 5

// scope is a window opened by the test harness for one test. While it is open, log output is
// forwarded to the harness and any faults it injected are active.
type scope struct {
	id          string
	tag         string
	callbackURL string
	counter     int
	closed      bool
	lock        sync.Mutex
}

type scopeRegistry struct {
	scopes map[string]*scope
	faults *faultSet
	client *http.Client
	lock   sync.Mutex
}

func newScopeRegistry(faults *faultSet) *scopeRegistry {
	return &scopeRegistry{
		scopes: make(map[string]*scope),
		faults: faults,
		client: &http.Client{Timeout: logCallbackTimeout},
	}
}

func (r *scopeRegistry) open(params servicedef.CreateScopeParams) *scope {
	s := &scope{
		id:          uuid.NewString(),
		tag:         params.Tag,
		callbackURL: strings.TrimSuffix(params.LogCallbackURL, "/"),
	}
	r.lock.Lock()
	r.scopes[s.id] = s
	r.lock.Unlock()
	return s
}

func (r *scopeRegistry) get(id string) *scope {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.scopes[id]
}

func (r *scopeRegistry) close(id string) bool {
	r.lock.Lock()
	s := r.scopes[id]
	delete(r.scopes, id)
	r.lock.Unlock()
	if s == nil {
		return false
	}
	s.lock.Lock()
	s.closed = true
	s.lock.Unlock()
	r.faults.clear(id)
	return true
}

func (r *scopeRegistry) closeAll() {
	r.lock.Lock()
	ids := make([]string, 0, len(r.scopes))
	for id := range r.scopes {
		ids = append(ids, id)
	}
	r.lock.Unlock()
	for _, id := range ids {
		r.close(id)
	}
}

// forward delivers a log message to every open scope that has a callback URL. Each delivery
// is made on its own goroutine, so messages may arrive out of order; the counter in the path
// lets the receiver restore the order.
func (r *scopeRegistry) forward(message servicedef.LogMessage) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	r.lock.Lock()
	targets := make([]*scope, 0, len(r.scopes))
	for _, s := range r.scopes {
		targets = append(targets, s)
	}
	r.lock.Unlock()

	for _, s := range targets {
		s.lock.Lock()
		if s.closed || s.callbackURL == "" {
			s.lock.Unlock()
			continue
		}
		s.counter++
		url := fmt.Sprintf("%s/%d", s.callbackURL, s.counter)
		s.lock.Unlock()

		go func() {
			resp, err := r.client.Post(url, "application/json", bytes.NewReader(data))
			if err == nil {
				_ = resp.Body.Close()
			}
		}()
	}
}

// scopeLogHook is a logrus hook that forwards every log entry to the open scopes.
type scopeLogHook struct {
	registry *scopeRegistry
}

func (h *scopeLogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *scopeLogHook) Fire(entry *logrus.Entry) error {
	h.registry.forward(servicedef.LogMessage{
		Level:   strings.ToUpper(entry.Level.String()),
		Message: entry.Message,
		Time:    entry.Time,
	})
	return nil
}
