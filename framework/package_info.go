// Package framework contains the low-level implementation of test harness infrastructure.
// The base package contains shared types such as Logger; other components are in the
// subpackages harness and ldtest.
//
// The general model is:
//
// 1. The test harness communicates with a test service, which fronts the web application
// under test. The test service exposes a root endpoint for querying its status (GET) or
// opening a test scope (POST), and the application's own endpoints under a separate path.
//
// 2. The test harness can expose any number of mock endpoints to receive requests from
// the test service, such as forwarded log output.
//
// 3. There is a general notion of a test context which is similar to Go's testing.T,
// allowing pieces of test logic to be associated with a test identifier and to accumulate
// success/failure results.
//
// The domain-specific code that knows what is being tested is responsible for building the
// requests sent to the application, the HTTP handlers for mock endpoints, and domain-specific
// test APIs on top of the test context.
package framework
