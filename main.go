package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/handlerqueue/multipart-contract-tests/framework"
	"github.com/handlerqueue/multipart-contract-tests/framework/harness"
	"github.com/handlerqueue/multipart-contract-tests/framework/ldtest"
	"github.com/handlerqueue/multipart-contract-tests/multiparttests"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const defaultPort = 8111
const defaultStatusQueryTimeout = time.Second * 10

func main() {
	var params commandParams
	if !params.Read(os.Args) {
		os.Exit(1)
	}

	mainDebugLogger := framework.NullLogger()
	if params.debugAll {
		mainDebugLogger = log.New(os.Stdout, "", log.LstdFlags)
	}

	h, err := harness.NewTestHarness(
		params.serviceURL,
		params.host,
		params.port,
		params.statusTimeout,
		mainDebugLogger,
		os.Stdout,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Test service error: %s\n", err)
		os.Exit(1)
	}

	fmt.Println()
	ldtest.PrintFilterDescription(params.filters, multiparttests.AllCapabilities, h.TestServiceInfo().Capabilities)

	fmt.Println("Running test suite")

	testLogger := &ConsoleTestLogger{
		DebugOutputOnFailure: params.debug || params.debugAll,
		DebugOutputOnSuccess: params.debugAll,
	}

	results, err := multiparttests.RunTestSuite(h, params.filters.AsFilter, testLogger, multiparttests.SuiteOptions{
		HiddenStoreKey: params.hiddenStoreKey,
		HiddenStoreIV:  ldvalue.NewOptionalString(params.hiddenStoreIV),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Test service error: %s\n", err)
		os.Exit(1)
	}

	fmt.Println()
	ldtest.PrintResults(results)

	if params.stopServiceAtEnd {
		fmt.Println("Stopping test service")
		if err := h.StopService(); err != nil {
			fmt.Fprintf(os.Stderr, "Error stopping test service: %s\n", err)
		}
	}
	_ = h.Close()

	if !results.OK() {
		fmt.Println()
		fmt.Println("To run only the failed tests again:")
		fmt.Println("  " + params.rerunCommand(os.Args[0], results.Failures))
		os.Exit(1)
	}
}
