package main

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/handlerqueue/multipart-contract-tests/framework/ldtest"
	"github.com/handlerqueue/multipart-contract-tests/multiparttests"

	"github.com/alessio/shellescape"
)

type commandParams struct {
	serviceURL       string
	port             int
	host             string
	filters          ldtest.RegexFilters
	stopServiceAtEnd bool
	debug            bool
	debugAll         bool
	statusTimeout    time.Duration
	hiddenStoreKey   string
	hiddenStoreIV    string
}

func (c *commandParams) Read(args []string) bool {
	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.StringVar(&c.serviceURL, "url", "", "test service URL")
	fs.StringVar(&c.host, "host", "localhost", "external hostname of the test harness")
	fs.IntVar(&c.port, "port", defaultPort, "port that the test harness will listen on")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select tests to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select tests not to run")
	fs.BoolVar(&c.stopServiceAtEnd, "stop-service-at-end", false, "tell test service to exit after the test run")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging for failed tests")
	fs.BoolVar(&c.debugAll, "debug-all", false, "enable debug logging for all tests")
	fs.DurationVar(&c.statusTimeout, "status-timeout", defaultStatusQueryTimeout, "how long to wait for the test service to start")
	fs.StringVar(&c.hiddenStoreKey, "hidden-store-key", multiparttests.DefaultHiddenStoreKey,
		"AES key the application uses to encrypt the hidden store")
	fs.StringVar(&c.hiddenStoreIV, "hidden-store-iv", multiparttests.DefaultHiddenStoreIV,
		"AES initialization vector the application uses for the hidden store (empty for a random IV per value)")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}
	if c.serviceURL == "" {
		fmt.Fprintln(os.Stderr, "-url is required")
		fs.Usage()
		return false
	}
	return true
}

// rerunCommand returns a command line that runs only the specified tests again.
func (c *commandParams) rerunCommand(program string, failures []ldtest.TestResult) string {
	var b commandBuilder
	b.add(program, "-url", c.serviceURL)
	if c.host != "localhost" {
		b.add("-host", c.host)
	}
	if c.port != defaultPort {
		b.add("-port", fmt.Sprint(c.port))
	}
	if c.hiddenStoreKey != multiparttests.DefaultHiddenStoreKey {
		b.add("-hidden-store-key", c.hiddenStoreKey)
	}
	if c.hiddenStoreIV != multiparttests.DefaultHiddenStoreIV {
		b.add("-hidden-store-iv", c.hiddenStoreIV)
	}
	for _, pattern := range c.filters.MustNotMatch.Patterns() {
		b.add("-skip", pattern)
	}
	seen := make(map[string]bool)
	for _, f := range failures {
		// Every ancestor has to match too, or the test would never be reached.
		path := f.TestID.Path
		for i := range path {
			pattern := "^" + regexpQuotePath(path[:i+1]) + "$"
			if !seen[pattern] {
				seen[pattern] = true
				b.add("-run", pattern)
			}
		}
	}
	b.add("-debug")
	return b.String()
}

func regexpQuotePath(path []string) string {
	quoted := make([]string, 0, len(path))
	for _, p := range path {
		quoted = append(quoted, regexp.QuoteMeta(p))
	}
	return strings.Join(quoted, "/")
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}
