package servicedef

import (
	"time"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

const (
	CapabilityHiddenStore      = "hidden-store"
	CapabilityFaultInjection   = "fault-injection"
	CapabilityLogSink          = "log-sink"
	CapabilityUploadInspection = "upload-inspection"
)

const (
	CommandResetUploads  = "resetUploads"
	CommandInjectFault   = "injectFault"
	CommandInspectUpload = "inspectUpload"
)

const FaultPartWriteFailure = "partWriteFailure"

const (
	HandlerQueueOld = "old"
	HandlerQueueNew = "new"
)

// StatusRep is the response to a GET request on the test service's root URL.
type StatusRep struct {
	Name         string   `json:"name"`
	HandlerQueue string   `json:"handlerQueue"`
	Capabilities []string `json:"capabilities"`

	// AppPath is the base path of the application under test, relative to the test service
	// URL if it does not start with a scheme.
	AppPath        string              `json:"appPath"`
	MaxUploadBytes ldvalue.OptionalInt `json:"maxUploadBytes,omitempty"`
}

// CreateScopeParams is the body of a POST request on the test service's root URL.
type CreateScopeParams struct {
	Tag            string `json:"tag"`
	LogCallbackURL string `json:"logCallbackUrl,omitempty"`
}

type CommandParams struct {
	Command string `json:"command"`
	Fault   string `json:"fault,omitempty"`
}

// UploadRep is the response to an inspectUpload command.
type UploadRep struct {
	Name   string              `json:"name"`
	Exists bool                `json:"exists"`
	Size   ldvalue.OptionalInt `json:"size,omitempty"`
}

// LogMessage is the body of a request that the test service makes to a scope's log callback
// URL. The request path is "/" followed by a sequence counter starting at 1.
type LogMessage struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}
