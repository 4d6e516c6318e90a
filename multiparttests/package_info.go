// Package multiparttests contains the multipart contract tests themselves and their supporting API.
//
// Test harness infrastructure that is not specific to multipart handling, such as the ability
// to communicate with the test service and to receive requests on mock endpoints, is in
// the lower-level framework packages.
package multiparttests
