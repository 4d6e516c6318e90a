package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/handlerqueue/multipart-contract-tests/framework"
)

// TestServiceInfo is status information returned by the test service from the initial status query.
type TestServiceInfo struct {
	Name         string                 `json:"name"`
	Capabilities framework.Capabilities `json:"capabilities"`

	// FullData is the complete JSON status response, for domain-specific properties that
	// this package does not know about.
	FullData []byte `json:"-"`
}

// TestServiceEntity represents some kind of entity that we have asked the test service to create,
// which the test harness will interact with.
type TestServiceEntity struct {
	resourceURL string
	logger      framework.Logger
}

// minStatusQueryTimeout bounds a single status request once the overall deadline is near.
const minStatusQueryTimeout = time.Millisecond * 100

type commandRequestParams struct {
	Command string `json:"command"`
}

func queryTestServiceInfo(url string, timeout time.Duration, output io.Writer) (TestServiceInfo, error) {
	if output == nil {
		output = io.Discard
	}
	fmt.Fprintf(output, "Connecting to test service at %s", url)

	deadline := time.Now().Add(timeout)
	for {
		fmt.Fprintf(output, ".")
		remaining := time.Until(deadline)
		if remaining < minStatusQueryTimeout {
			remaining = minStatusQueryTimeout
		}
		client := http.Client{Timeout: remaining}
		resp, err := client.Get(url)
		if err == nil {
			fmt.Fprintln(output)
			respData, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return TestServiceInfo{}, fmt.Errorf("test service returned status code %d", resp.StatusCode)
			}
			if err != nil {
				return TestServiceInfo{}, err
			}
			if len(respData) == 0 {
				fmt.Fprintf(output, "Status query successful, but service provided no metadata\n")
				return TestServiceInfo{}, nil
			}
			fmt.Fprintf(output, "Status query returned metadata: %s\n", string(respData))
			var info TestServiceInfo
			if err := json.Unmarshal(respData, &info); err != nil {
				return TestServiceInfo{}, fmt.Errorf("malformed status response from test service: %s", string(respData))
			}
			info.FullData = respData
			return info, nil
		}
		if !time.Now().Before(deadline) {
			return TestServiceInfo{}, fmt.Errorf("timed out, result of last query was: %w", err)
		}
		time.Sleep(time.Millisecond * 100)
	}
}

// StopService tells the test service that it should exit.
func (h *TestHarness) StopService() error {
	req, _ := http.NewRequest(http.MethodDelete, h.testServiceBaseURL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err == nil {
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("service returned HTTP %d", resp.StatusCode)
		}
	}
	// It's normal for the request to return an I/O error if the service immediately quit before sending a response
	return nil
}

// NewTestServiceEntity tells the test service to create a new instance of whatever kind of entity
// it manages, based on the parameters we provide. The test harness can interact with it via the
// returned TestServiceEntity. The entity is assumed to remain active inside the test service
// until we explicitly close it.
//
// The format of entityParams is defined by the test harness; this low-level method simply calls
// json.Marshal to convert whatever it is to JSON.
func (h *TestHarness) NewTestServiceEntity(
	entityParams interface{},
	description string,
	logger framework.Logger,
) (*TestServiceEntity, error) {
	if logger == nil {
		logger = framework.NullLogger()
	}

	data, err := json.Marshal(entityParams)
	if err != nil {
		return nil, err
	}

	logger.Printf("Creating test service entity (%s) with parameters: %s", description, string(data))
	req, err := http.NewRequest(http.MethodPost, h.testServiceBaseURL, bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	respData, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var message string
		if len(respData) > 0 {
			message = ": " + string(respData)
		}
		return nil, fmt.Errorf("unexpected response status %d from test service%s", resp.StatusCode, message)
	}
	resourceURL := resp.Header.Get("Location")
	if resourceURL == "" {
		return nil, errors.New("test service did not return a Location header with a resource URL")
	}
	if !strings.HasPrefix(resourceURL, "http:") && !strings.HasPrefix(resourceURL, "https:") {
		resourceURL = h.testServiceBaseURL + resourceURL
	}

	e := &TestServiceEntity{
		resourceURL: resourceURL,
		logger:      logger,
	}

	return e, nil
}

// ResourceURL returns the URL that identifies this entity within the test service.
func (e *TestServiceEntity) ResourceURL() string {
	return e.resourceURL
}

// Close tells the test service to dispose of this entity.
func (e *TestServiceEntity) Close() error {
	req, err := http.NewRequest(http.MethodDelete, e.resourceURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("DELETE request to test service returned HTTP status %d", resp.StatusCode)
	}
	return nil
}

// SendCommand sends a command with no parameters to the test service entity.
func (e *TestServiceEntity) SendCommand(command string, logger framework.Logger, responseOut interface{}) error {
	return e.SendCommandWithParams(commandRequestParams{Command: command}, logger, responseOut)
}

// SendCommandWithParams sends a command to the test service entity. The params value is
// converted to JSON. If responseOut is non-nil, the response body is parsed as JSON into it.
func (e *TestServiceEntity) SendCommandWithParams(params interface{}, logger framework.Logger, responseOut interface{}) error {
	if logger == nil {
		logger = e.logger
	}
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	logger.Printf("Sending command: %s", string(data))
	resp, err := http.DefaultClient.Post(e.resourceURL, "application/json", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	respData, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("command returned HTTP status %d", resp.StatusCode)
	}
	if responseOut != nil {
		logger.Printf("Command response: %s", string(respData))
		if err := json.Unmarshal(respData, responseOut); err != nil {
			return fmt.Errorf("malformed command response from test service: %w", err)
		}
	}
	return nil
}
