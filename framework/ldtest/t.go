package ldtest

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/handlerqueue/multipart-contract-tests/framework"
)

// TestConfiguration holds the settings that apply to a whole test run.
type TestConfiguration struct {
	// Filter decides whether each test is run. If nil, every test runs.
	Filter Filter

	// TestLogger receives notifications about test progress. If nil, nothing is reported.
	TestLogger TestLogger

	// Context is an arbitrary value made available to every test through T.Context().
	Context interface{}

	// Capabilities are the optional features that the test service supports.
	Capabilities framework.Capabilities
}

type environment struct {
	config  TestConfiguration
	results Results
}

// T represents a test or subtest.
//
// It implements the same basic functionality as Go's testing.T, but in an environment that is outside
// of the Go test runner, and with some extra features such as debug logging that are convenient for
// our use case. T implements require.TestingT, so the assert and require packages can be used
// with it directly.
type T struct {
	env         *environment
	id          TestID
	debugLogger framework.CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	errors      []error
	cleanups    []func()
}

// Run starts a test run. The action is called with a top-level T whose ID is empty; it should
// call T.Run for each group of tests.
func Run(config TestConfiguration, action func(*T)) Results {
	if config.TestLogger == nil {
		config.TestLogger = nullTestLogger{}
	}
	env := &environment{config: config}
	t := &T{env: env}
	t.run(action)
	return env.results
}

func (t *T) run(action func(*T)) {
	defer func() {
		if r := recover(); r != nil {
			if !t.skipped {
				t.failed = true
				var addError error
				if _, ok := r.(*T); ok {
					if len(t.errors) == 0 {
						addError = errors.New("test failed with no failure message")
					}
				} else {
					addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
				}
				if addError != nil {
					t.errors = append(t.errors, addError)
					t.env.config.TestLogger.TestError(t.id, addError)
				}
			}
		}
		t.runCleanups()
		if len(t.id.Path) == 0 {
			return
		}
		result := TestResult{TestID: t.id, Errors: t.errors, Skipped: t.skipped}
		t.env.results.Tests = append(t.env.results.Tests, result)
		if t.failed {
			t.env.results.Failures = append(t.env.results.Failures, result)
		}
	}()

	action(t)
}

func (t *T) runCleanups() {
	for len(t.cleanups) > 0 {
		last := len(t.cleanups) - 1
		f := t.cleanups[last]
		t.cleanups = t.cleanups[:last]
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.debugLogger.Printf("panic in deferred cleanup: %+v", r)
				}
			}()
			f()
		}()
	}
}

// ID returns the unique identifier of this test.
func (t *T) ID() TestID {
	return t.id
}

// Run runs a subtest. This is equivalent to the Run method of testing.T.
func (t *T) Run(name string, action func(*T)) {
	id := t.id.Plus(name)

	logger := t.env.config.TestLogger
	logger.TestStarted(id)
	if t.env.config.Filter != nil && !t.env.config.Filter(id) {
		logger.TestSkipped(id, "excluded by filter parameters")
		t.env.results.Tests = append(t.env.results.Tests, TestResult{TestID: id, Skipped: true})
		return
	}
	t1 := &T{
		id:  id,
		env: t.env,
	}
	t1.run(action)
	if t1.skipped {
		logger.TestSkipped(id, t1.skipReason)
	} else {
		logger.TestFinished(id, t1.failed, t1.debugLogger.Output())
	}
}

// Errorf is called by assertions to log a test failure. It does not cause an immediate exit.
func (t *T) Errorf(format string, args ...interface{}) {
	t.failed = true
	err := fmt.Errorf(format, args...)
	t.errors = append(t.errors, err)
	t.env.config.TestLogger.TestError(t.id, err)
}

// FailNow is called by assertions when a test should fail and immediately exit. The methods in
// the require package call FailNow.
func (t *T) FailNow() {
	panic(t)
}

// Failed returns true if the test has failed so far.
func (t *T) Failed() bool {
	return t.failed
}

// Skip marks the test as skipped and exits it immediately.
func (t *T) Skip() {
	t.skipped = true
	panic(t)
}

// SkipWithReason is the same as Skip, but records an explanation for the test logger.
func (t *T) SkipWithReason(reason string) {
	t.skipReason = reason
	t.Skip()
}

// RequireCapability skips this test if the test service did not declare that it supports the
// specified capability.
func (t *T) RequireCapability(capability string) {
	if !t.Capabilities().Has(capability) {
		t.SkipWithReason(fmt.Sprintf("test service does not have capability %q", capability))
	}
}

// Capabilities returns the capabilities reported by the test service.
func (t *T) Capabilities() framework.Capabilities {
	return t.env.config.Capabilities
}

// Context returns the value that was passed in TestConfiguration.Context.
func (t *T) Context() interface{} {
	return t.env.config.Context
}

// Debug logs some debug output for the test. The output will be passed to the test logger at
// the end of the test.
func (t *T) Debug(message string, args ...interface{}) {
	t.debugLogger.Printf(message, args...)
}

// DebugLogger returns a Logger that writes to this test's debug output.
func (t *T) DebugLogger() framework.Logger {
	return &t.debugLogger
}

// Defer schedules a function to be called when the test ends, whether it passed or failed.
// Deferred functions run in reverse order.
func (t *T) Defer(cleanup func()) {
	t.cleanups = append(t.cleanups, cleanup)
}
