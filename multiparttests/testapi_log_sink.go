package multiparttests

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/handlerqueue/multipart-contract-tests/framework"
	"github.com/handlerqueue/multipart-contract-tests/framework/harness"
	"github.com/handlerqueue/multipart-contract-tests/framework/ldtest"
	"github.com/handlerqueue/multipart-contract-tests/servicedef"

	"github.com/stretchr/testify/require"
)

const awaitLogLineTimeout = time.Second * 2

// LogSink receives the log output that the test service forwards while a scope is open.
type LogSink struct {
	endpoint *harness.MockEndpoint
	queue    *harness.MessageSortingQueue
	lines    []string
	changed  chan struct{}
	logger   framework.Logger
	lock     sync.Mutex
}

func newLogSink(h *harness.TestHarness, logger framework.Logger) *LogSink {
	s := &LogSink{
		queue:   harness.NewMessageSortingQueue(100),
		changed: make(chan struct{}, 1),
		logger:  logger,
	}
	s.endpoint = h.NewMockEndpoint(s, logger)
	go s.consumeMessages()
	return s
}

func (s *LogSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	counter, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, "/"))
	if err != nil {
		s.logger.Printf("Log callback request had invalid path %q", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.queue.Accept(counter, data)
	w.WriteHeader(http.StatusAccepted)
}

func (s *LogSink) consumeMessages() {
	for data := range s.queue.C {
		var message servicedef.LogMessage
		if err := json.Unmarshal(data, &message); err != nil {
			s.logger.Printf("Malformed log message from test service: %s", string(data))
			continue
		}
		line := message.Level + " " + message.Message
		s.logger.Printf("Received: %s", line)
		s.lock.Lock()
		s.lines = append(s.lines, line)
		s.lock.Unlock()
		select {
		case s.changed <- struct{}{}:
		default:
		}
	}
}

// Close stops receiving log output.
func (s *LogSink) Close() {
	s.endpoint.Close()
	s.queue.Close()
}

// Lines returns the log lines received so far, each formatted as "LEVEL message".
func (s *LogSink) Lines() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]string(nil), s.lines...)
}

func (s *LogSink) find(substrings []string) (string, bool) {
	for _, line := range s.Lines() {
		if containsAll(line, substrings) {
			return line, true
		}
	}
	return "", false
}

// RequireLogLine waits for a log line that contains every one of the substrings. The test
// fails and exits if none arrives in time.
func (s *LogSink) RequireLogLine(t *ldtest.T, substrings ...string) string {
	deadline := time.NewTimer(awaitLogLineTimeout)
	defer deadline.Stop()
	for {
		if line, ok := s.find(substrings); ok {
			return line
		}
		select {
		case <-s.changed:
		case <-deadline.C:
			if line, ok := s.find(substrings); ok {
				return line
			}
			require.Fail(t, fmt.Sprintf("timed out waiting for a log line containing %q", substrings),
				"log output was:\n%s", strings.Join(s.Lines(), "\n"))
			return ""
		}
	}
}

func containsAll(s string, substrings []string) bool {
	for _, sub := range substrings {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
