// Package servicedef contains the JSON representations used in the protocol between the
// test harness and the test service.
package servicedef
