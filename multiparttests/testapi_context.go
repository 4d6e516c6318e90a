package multiparttests

import (
	"github.com/handlerqueue/multipart-contract-tests/framework/harness"
	"github.com/handlerqueue/multipart-contract-tests/framework/ldtest"
	"github.com/handlerqueue/multipart-contract-tests/servicedef"
)

type MultipartTestContext struct {
	harness *harness.TestHarness
	status  servicedef.StatusRep
	appURL  string
	options SuiteOptions
}

func requireContext(t *ldtest.T) MultipartTestContext {
	if c, ok := t.Context().(MultipartTestContext); ok {
		return c
	}
	panic("MultipartTestContext was not included in the global test configuration!" +
		" This is a basic mistake in the initialization logic.")
}

// NewScopeAndClient opens a service scope and an application client for the current test.
// Both are closed automatically when the test ends.
func NewScopeAndClient(t *ldtest.T) (*ServiceScope, *AppClient) {
	return NewServiceScope(t), NewAppClient(t)
}
