package testservice

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/launchdarkly/go-test-helpers/v2/httphelpers"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/handlerqueue/multipart-contract-tests/formdata"
	"github.com/handlerqueue/multipart-contract-tests/hiddenstore"
	"github.com/handlerqueue/multipart-contract-tests/servicedef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceFixture struct {
	service   *Service
	server    *httptest.Server
	uploadDir string
	logs      *logtest.Hook
	client    *http.Client
}

func newServiceFixture(t *testing.T, handlerQueue string) *serviceFixture {
	descriptor, err := BuiltinDescriptor(handlerQueue)
	require.NoError(t, err)

	logger, hook := logtest.NewNullLogger()
	uploadDir := t.TempDir()
	s, err := New(Config{Descriptor: descriptor, UploadDir: uploadDir, Logger: logger})
	require.NoError(t, err)
	server := httptest.NewServer(s)
	t.Cleanup(func() {
		server.Close()
		s.Close()
	})
	jar, _ := cookiejar.New(nil)
	return &serviceFixture{
		service:   s,
		server:    server,
		uploadDir: uploadDir,
		logs:      hook,
		client:    &http.Client{Jar: jar},
	}
}

func (f *serviceFixture) appURL(action string) string {
	return f.server.URL + DefaultAppPath + "action/MultipartAction/" + action
}

func (f *serviceFixture) post(t *testing.T, action string, content *formdata.Content) (int, string) {
	data, err := content.Bytes()
	require.NoError(t, err)
	resp, err := f.client.Post(f.appURL(action), content.ContentType(), bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func (f *serviceFixture) hasLog(level logrus.Level, substring string) bool {
	for _, e := range f.logs.AllEntries() {
		if e.Level == level && strings.Contains(e.Message, substring) {
			return true
		}
	}
	return false
}

func uploadContent(size int, options ...formdata.Option) *formdata.Content {
	return formdata.New(options...).Add(
		formdata.Field("key", "value"),
		formdata.Part{
			Name:        "uploadFile",
			FileName:    "multipart.txt",
			ContentType: "application/octet-stream",
			Content:     bytes.Repeat([]byte("t"), size),
		},
	)
}

func TestStatus(t *testing.T) {
	for _, queue := range []string{"old", "new"} {
		t.Run(queue, func(t *testing.T) {
			f := newServiceFixture(t, queue)
			resp, err := http.Get(f.server.URL)
			require.NoError(t, err)
			defer resp.Body.Close()
			var status servicedef.StatusRep
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
			assert.Equal(t, queue, status.HandlerQueue)
			assert.Equal(t, queue+"-handler-queue", status.Name)
			assert.Equal(t, DefaultAppPath, status.AppPath)
			assert.Equal(t, 10240, status.MaxUploadBytes.OrElse(0))
			assert.Contains(t, status.Capabilities, servicedef.CapabilityLogSink)
			if queue == "new" {
				assert.Contains(t, status.Capabilities, servicedef.CapabilityHiddenStore)
			} else {
				assert.NotContains(t, status.Capabilities, servicedef.CapabilityHiddenStore)
			}
		})
	}
}

func TestUploadSucceeds(t *testing.T) {
	f := newServiceFixture(t, "old")
	status, body := f.post(t, "Upload", uploadContent(12))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "SUCCESS", body)

	data, err := os.ReadFile(filepath.Join(f.uploadDir, UploadFileName))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("t", 12), string(data))
	assert.True(t, f.hasLog(logrus.InfoLevel,
		"name='uploadFile', fileName='multipart.txt', contentType='application/octet-stream'"))

	leftovers, err := os.ReadDir(filepath.Join(f.uploadDir, "multipart-parts"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestUploadWithoutFilePartIsBadRequest(t *testing.T) {
	f := newServiceFixture(t, "old")
	status, _ := f.post(t, "Upload", formdata.New().Add(formdata.Field("key", "value")))
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestMissingBoundaryIsBadRequest(t *testing.T) {
	for _, queue := range []string{"old", "new"} {
		t.Run(queue, func(t *testing.T) {
			f := newServiceFixture(t, queue)
			status, _ := f.post(t, "Upload", uploadContent(1, formdata.WithoutBoundaryParameter()))
			assert.Equal(t, http.StatusBadRequest, status)
			assert.True(t, f.hasLog(logrus.InfoLevel, "[400 BadRequest]"))
		})
	}
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	f := newServiceFixture(t, "old")
	resp, err := f.client.Post(f.appURL("Upload"), "multipart/form-data; boundary=abc",
		strings.NewReader("this is not multipart"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTooLargeUpload(t *testing.T) {
	t.Run("declared length", func(t *testing.T) {
		f := newServiceFixture(t, "old")
		status, _ := f.post(t, "Upload", uploadContent(40000))
		assert.Equal(t, http.StatusRequestEntityTooLarge, status)
		_, err := os.Stat(filepath.Join(f.uploadDir, UploadFileName))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("chunked body", func(t *testing.T) {
		f := newServiceFixture(t, "new")
		content := uploadContent(40000)
		data, err := content.Bytes()
		require.NoError(t, err)
		req, _ := http.NewRequest(http.MethodPost, f.appURL("Upload"), io.MultiReader(bytes.NewReader(data)))
		req.Header.Set("Content-Type", content.ContentType())
		resp, err := f.client.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}

func TestInjectedWriteFailure(t *testing.T) {
	f := newServiceFixture(t, "new")
	sc := f.service.scopes.open(servicedef.CreateScopeParams{Tag: "x"})
	f.service.faults.inject(sc.id, servicedef.FaultPartWriteFailure)

	status, _ := f.post(t, "Upload", uploadContent(5))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.True(t, f.hasLog(logrus.FatalLevel, "[500 InternalError] java.io.IOException"))

	f.service.scopes.close(sc.id)
	status, _ = f.post(t, "Upload", uploadContent(5))
	assert.Equal(t, http.StatusOK, status)
}

func TestHiddenStoreRoundTrip(t *testing.T) {
	f := newServiceFixture(t, "new")
	resp, err := f.client.Get(f.appURL("PutSession"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sid string
	for _, c := range resp.Cookies() {
		if c.Name == "NABLARCH_SID" {
			sid = c.Value
			assert.Equal(t, "/", c.Path)
			assert.True(t, c.HttpOnly)
		}
	}
	require.NotEmpty(t, sid)

	cipher, err := hiddenstore.NewCipher([]byte("1234567890123456"), []byte("9876543210987654"))
	require.NoError(t, err)
	codec := hiddenstore.NewCodec(cipher)

	field, err := codec.Encode(sid, []hiddenstore.Entry{hiddenstore.StringEntry("key", "value")})
	require.NoError(t, err)
	status, body := f.post(t, "GetSession", uploadContent(0).Add(formdata.Field("_HIDDEN_STORE_", field)))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "value", body)

	t.Run("store for another session is discarded", func(t *testing.T) {
		field, err := codec.Encode("someone-else", []hiddenstore.Entry{hiddenstore.StringEntry("key", "value")})
		require.NoError(t, err)
		status, body := f.post(t, "GetSession", uploadContent(0).Add(formdata.Field("_HIDDEN_STORE_", field)))
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "", body)
		assert.True(t, f.hasLog(logrus.WarnLevel, "discarding hidden store"))
	})
}

func TestOldQueueHasNoSession(t *testing.T) {
	f := newServiceFixture(t, "old")
	resp, err := f.client.Get(f.appURL("PutSession"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Empty(t, resp.Cookies())
}

func TestUnknownActionIsNotFound(t *testing.T) {
	f := newServiceFixture(t, "old")
	resp, err := f.client.Get(f.appURL("Nothing"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScopeCommandsAndLogForwarding(t *testing.T) {
	f := newServiceFixture(t, "old")

	handler, requests := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(http.StatusAccepted))
	httphelpers.WithServer(handler, func(sink *httptest.Server) {
		params, _ := json.Marshal(servicedef.CreateScopeParams{Tag: "t1", LogCallbackURL: sink.URL + "/"})
		resp, err := http.Post(f.server.URL, "application/json", bytes.NewReader(params))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		scopeURL := f.server.URL + resp.Header.Get("Location")

		command := func(params servicedef.CommandParams) *http.Response {
			data, _ := json.Marshal(params)
			resp, err := http.Post(scopeURL, "application/json", bytes.NewReader(data))
			require.NoError(t, err)
			return resp
		}
		inspect := func() servicedef.UploadRep {
			resp := command(servicedef.CommandParams{Command: servicedef.CommandInspectUpload})
			defer resp.Body.Close()
			var rep servicedef.UploadRep
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
			return rep
		}

		assert.False(t, inspect().Exists)
		status, _ := f.post(t, "Upload", uploadContent(3))
		require.Equal(t, http.StatusOK, status)
		rep := inspect()
		assert.True(t, rep.Exists)
		assert.Equal(t, 3, rep.Size.OrElse(-1))

		resp = command(servicedef.CommandParams{Command: servicedef.CommandResetUploads})
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.False(t, inspect().Exists)

		resp = command(servicedef.CommandParams{Command: servicedef.CommandInjectFault, Fault: "bogus"})
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		// The upload produced a log line, which must have been forwarded with a counter path.
		seen := false
		deadline := time.After(time.Second * 2)
		for !seen {
			select {
			case r := <-requests:
				assert.Regexp(t, `^/\d+$`, r.Request.URL.Path)
				var m servicedef.LogMessage
				require.NoError(t, json.Unmarshal(r.Body, &m))
				if strings.Contains(m.Message, "fileName='multipart.txt'") {
					assert.Equal(t, "INFO", m.Level)
					seen = true
				}
			case <-deadline:
				require.Fail(t, "timed out waiting for forwarded log line")
			}
		}

		req, _ := http.NewRequest(http.MethodDelete, scopeURL, nil)
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = command(servicedef.CommandParams{Command: servicedef.CommandResetUploads})
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestStopRequest(t *testing.T) {
	descriptor, err := BuiltinDescriptor("old")
	require.NoError(t, err)
	stopped := make(chan struct{})
	s, err := New(Config{
		Descriptor: descriptor,
		UploadDir:  t.TempDir(),
		Logger:     logrus.New(),
		OnStop:     func() { close(stopped) },
	})
	require.NoError(t, err)
	httphelpers.WithServer(s, func(server *httptest.Server) {
		req, _ := http.NewRequest(http.MethodDelete, server.URL, nil)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		select {
		case <-stopped:
		case <-time.After(time.Second):
			require.Fail(t, "OnStop was not called")
		}
	})
}

func TestApplicationMountedAtRoot(t *testing.T) {
	descriptor, err := BuiltinDescriptor("new")
	require.NoError(t, err)
	s, err := New(Config{Descriptor: descriptor, UploadDir: t.TempDir(), AppPath: "/", Logger: logrus.New()})
	require.NoError(t, err)
	defer s.Close()

	httphelpers.WithServer(s, func(server *httptest.Server) {
		resp, err := http.Get(server.URL)
		require.NoError(t, err)
		var status servicedef.StatusRep
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
		resp.Body.Close()
		assert.Equal(t, "/", status.AppPath)

		data, err := uploadContent(3).Bytes()
		require.NoError(t, err)
		resp, err = http.Post(server.URL+"/action/MultipartAction/Upload", uploadContent(3).ContentType(), bytes.NewReader(data))
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "SUCCESS", string(body))

		req, _ := http.NewRequest(http.MethodDelete, server.URL+"/scopes/unknown", nil)
		resp, err = http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestAppPathConflictingWithControlAPI(t *testing.T) {
	descriptor, err := BuiltinDescriptor("old")
	require.NoError(t, err)
	for _, appPath := range []string{"/scopes/", "scopes", "/scopes/app/"} {
		_, err := New(Config{Descriptor: descriptor, UploadDir: t.TempDir(), AppPath: appPath, Logger: logrus.New()})
		assert.Error(t, err, appPath)
	}
}
