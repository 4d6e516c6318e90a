package multiparttests

import (
	"fmt"
	"net/http"

	"github.com/handlerqueue/multipart-contract-tests/formdata"
	"github.com/handlerqueue/multipart-contract-tests/framework/ldtest"
	"github.com/handlerqueue/multipart-contract-tests/servicedef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func DoMultipartTests(t *ldtest.T) {
	t.Run("upload succeeds", func(t *ldtest.T) {
		scope, client := NewScopeAndClient(t)
		content := NewUploadContent(t, NewUploadFile(t, nil))

		resp := client.PostMultipart(t, "Upload", content)

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "SUCCESS", resp.Body)
		if t.Capabilities().Has(servicedef.CapabilityUploadInspection) {
			assert.True(t, scope.InspectUpload(t).Exists, "uploaded file was not saved")
		} else {
			t.Debug("not checking the uploaded file: test service cannot inspect uploads")
		}
		if t.Capabilities().Has(servicedef.CapabilityLogSink) {
			scope.Logs(t).RequireLogLine(t,
				"name='uploadFile', fileName='multipart.txt', contentType='application/octet-stream'")
		} else {
			t.Debug("not checking the log: test service cannot forward its log output")
		}
	})

	t.Run("missing boundary is rejected", func(t *ldtest.T) {
		_, client := NewScopeAndClient(t)
		content := formdata.New(formdata.WithoutBoundaryParameter()).Add(uploadPart(t, NewUploadFile(t, nil)))
		require.Equal(t, "multipart/form-data", content.ContentType())

		resp := client.PostMultipart(t, "Upload", content)

		assert.Equal(t, http.StatusBadRequest, resp.Status)
	})

	t.Run("upload over the size limit is rejected", func(t *ldtest.T) {
		if limit, ok := requireContext(t).status.MaxUploadBytes.Get(); ok && limit >= len(largeFileContent) {
			t.SkipWithReason(fmt.Sprintf("application accepts uploads of up to %d bytes", limit))
		}
		scope, client := NewScopeAndClient(t)
		content := NewUploadContent(t, NewUploadFile(t, largeFileContent))

		resp := client.PostMultipart(t, "Upload", content)

		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Status)
		if t.Capabilities().Has(servicedef.CapabilityUploadInspection) {
			assert.False(t, scope.InspectUpload(t).Exists, "rejected upload should not have been saved")
		}
	})

	t.Run("part write failure is a server error", func(t *ldtest.T) {
		t.RequireCapability(servicedef.CapabilityFaultInjection)
		t.RequireCapability(servicedef.CapabilityLogSink)
		scope, client := NewScopeAndClient(t)
		scope.InjectFault(t, servicedef.FaultPartWriteFailure)
		content := NewUploadContent(t, NewUploadFile(t, nil))

		resp := client.PostMultipart(t, "Upload", content)

		assert.Equal(t, http.StatusInternalServerError, resp.Status)
		scope.Logs(t).RequireLogLine(t, "FATAL", "[500 InternalError] java.io.IOException")
	})
}
