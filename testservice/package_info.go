// Package testservice is a reference implementation of the test service: a small web
// application whose handler queue is assembled from a deployment descriptor, exposed together
// with the control API that the test harness uses.
//
// It serves two purposes. It lets the contract tests be run and checked without a deployed
// application server, and it documents the behavior that a real test service must provide.
package testservice
