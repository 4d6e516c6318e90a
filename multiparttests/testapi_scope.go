package multiparttests

import (
	"github.com/handlerqueue/multipart-contract-tests/framework"
	"github.com/handlerqueue/multipart-contract-tests/framework/harness"
	"github.com/handlerqueue/multipart-contract-tests/framework/ldtest"
	"github.com/handlerqueue/multipart-contract-tests/servicedef"

	"github.com/stretchr/testify/require"
)

// ServiceScope is a per-test window in the test service. While it is open, the service's log
// output is delivered to the scope's log sink, and any faults injected through it are active.
//
// Opening a scope also removes any file left behind by an earlier upload.
type ServiceScope struct {
	entity *harness.TestServiceEntity
	logs   *LogSink
}

// NewServiceScope opens a scope for the current test. If the test service supports log
// forwarding, a log sink is started to receive it.
func NewServiceScope(t *ldtest.T) *ServiceScope {
	h := requireContext(t).harness
	s := &ServiceScope{}
	params := servicedef.CreateScopeParams{Tag: t.ID().String()}
	if t.Capabilities().Has(servicedef.CapabilityLogSink) {
		s.logs = newLogSink(h, framework.LoggerWithPrefix(t.DebugLogger(), "[log sink] "))
		t.Defer(s.logs.Close)
		params.LogCallbackURL = s.logs.endpoint.BaseURL()
	}

	entity, err := h.NewTestServiceEntity(params, "scope", t.DebugLogger())
	require.NoError(t, err)
	s.entity = entity
	t.Defer(func() {
		if err := entity.Close(); err != nil {
			t.Debug("error closing scope: %s", err)
		}
	})

	require.NoError(t, entity.SendCommand(servicedef.CommandResetUploads, t.DebugLogger(), nil))
	return s
}

// InjectFault tells the test service to simulate a failure until the scope is closed.
func (s *ServiceScope) InjectFault(t *ldtest.T, fault string) {
	t.RequireCapability(servicedef.CapabilityFaultInjection)
	params := servicedef.CommandParams{Command: servicedef.CommandInjectFault, Fault: fault}
	require.NoError(t, s.entity.SendCommandWithParams(params, t.DebugLogger(), nil))
}

// InspectUpload asks the test service whether the Upload action saved a file.
func (s *ServiceScope) InspectUpload(t *ldtest.T) servicedef.UploadRep {
	t.RequireCapability(servicedef.CapabilityUploadInspection)
	var rep servicedef.UploadRep
	require.NoError(t, s.entity.SendCommand(servicedef.CommandInspectUpload, t.DebugLogger(), &rep))
	return rep
}

// Logs returns the scope's log sink. The test is skipped if the test service cannot forward
// its log output.
func (s *ServiceScope) Logs(t *ldtest.T) *LogSink {
	t.RequireCapability(servicedef.CapabilityLogSink)
	return s.logs
}
