// Package harness contains the part of the test framework that communicates with the test
// service: querying its status, creating entities, sending commands, and hosting mock
// endpoints that the test service can call back to.
package harness
