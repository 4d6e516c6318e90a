package multiparttests

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/handlerqueue/multipart-contract-tests/framework/harness"
	"github.com/handlerqueue/multipart-contract-tests/framework/ldtest"
	"github.com/handlerqueue/multipart-contract-tests/servicedef"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	DefaultHiddenStoreKey = "1234567890123456"
	DefaultHiddenStoreIV  = "9876543210987654"
)

var AllCapabilities = []string{
	servicedef.CapabilityFaultInjection,
	servicedef.CapabilityHiddenStore,
	servicedef.CapabilityLogSink,
	servicedef.CapabilityUploadInspection,
}

// SuiteOptions contains settings that the test service cannot report about itself.
type SuiteOptions struct {
	// HiddenStoreKey is the AES key the application uses to encrypt the hidden store. An empty
	// value means DefaultHiddenStoreKey.
	HiddenStoreKey string

	// HiddenStoreIV is the AES initialization vector. If it is not defined, DefaultHiddenStoreIV
	// is used; if it is defined but empty, the application is expected to use a random IV
	// prepended to the ciphertext.
	HiddenStoreIV ldvalue.OptionalString
}

// RunTestSuite runs every test against the application behind the test service.
func RunTestSuite(
	h *harness.TestHarness,
	filter ldtest.Filter,
	testLogger ldtest.TestLogger,
	options SuiteOptions,
) (ldtest.Results, error) {
	var status servicedef.StatusRep
	if err := json.Unmarshal(h.TestServiceInfo().FullData, &status); err != nil {
		return ldtest.Results{}, fmt.Errorf("malformed status response from test service: %w", err)
	}
	if options.HiddenStoreKey == "" {
		options.HiddenStoreKey = DefaultHiddenStoreKey
	}
	if !options.HiddenStoreIV.IsDefined() {
		options.HiddenStoreIV = ldvalue.NewOptionalString(DefaultHiddenStoreIV)
	}

	config := ldtest.TestConfiguration{
		Filter:     filter,
		TestLogger: testLogger,
		Context: MultipartTestContext{
			harness: h,
			status:  status,
			appURL:  resolveAppURL(h.TestServiceBaseURL(), status.AppPath),
			options: options,
		},
		Capabilities: h.TestServiceInfo().Capabilities,
	}
	return ldtest.Run(config, func(t *ldtest.T) {
		t.Run("multipart", DoMultipartTests)
		t.Run("hidden store", DoHiddenStoreTests)
	}), nil
}

func resolveAppURL(serviceURL, appPath string) string {
	if strings.HasPrefix(appPath, "http:") || strings.HasPrefix(appPath, "https:") {
		return strings.TrimSuffix(appPath, "/") + "/"
	}
	base := strings.TrimSuffix(serviceURL, "/") + "/"
	if path := strings.Trim(appPath, "/"); path != "" {
		return base + path + "/"
	}
	return base
}
