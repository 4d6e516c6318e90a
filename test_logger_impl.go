package main

import (
	"os"
	"strings"

	"github.com/handlerqueue/multipart-contract-tests/framework"
	"github.com/handlerqueue/multipart-contract-tests/framework/ldtest"

	"github.com/fatih/color"
)

var (
	consoleTestStartedColor = color.New(color.Bold)
	consoleTestErrorColor   = color.New(color.FgYellow)
	consoleTestFailedColor  = color.New(color.FgRed)
	consoleTestSkippedColor = color.New(color.Faint)
)

type ConsoleTestLogger struct {
	DebugOutputOnFailure bool
	DebugOutputOnSuccess bool
}

func (c *ConsoleTestLogger) TestStarted(id ldtest.TestID) {
	_, _ = consoleTestStartedColor.Printf("[%s]\n", id)
}

func (c *ConsoleTestLogger) TestError(id ldtest.TestID, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		_, _ = consoleTestErrorColor.Printf("  %s\n", line)
	}
}

func (c *ConsoleTestLogger) TestFinished(id ldtest.TestID, failed bool, debugOutput framework.CapturedOutput) {
	if failed {
		_, _ = consoleTestFailedColor.Printf("  FAILED: %s\n", id)
	}
	if len(debugOutput) > 0 &&
		((failed && c.DebugOutputOnFailure) || (!failed && c.DebugOutputOnSuccess)) {
		debugOutput.Dump(os.Stdout, "    DEBUG ")
	}
}

func (c *ConsoleTestLogger) TestSkipped(id ldtest.TestID, reason string) {
	if reason == "" {
		_, _ = consoleTestSkippedColor.Printf("  SKIPPED: %s\n", id)
	} else {
		_, _ = consoleTestSkippedColor.Printf("  SKIPPED: %s (%s)\n", id, reason)
	}
}
