package multiparttests

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/handlerqueue/multipart-contract-tests/formdata"
	"github.com/handlerqueue/multipart-contract-tests/framework/ldtest"

	"github.com/stretchr/testify/require"
)

const (
	uploadPartName    = "uploadFile"
	uploadFileName    = "multipart.txt"
	uploadContentType = "application/octet-stream"
)

// largeFileContent is bigger than any upload limit the application is expected to have.
var largeFileContent = bytes.Repeat([]byte("test"), 10000)

// NewUploadFile writes a file named multipart.txt to a temporary directory that is removed
// when the test ends.
func NewUploadFile(t *ldtest.T, content []byte) string {
	dir, err := os.MkdirTemp("", "multipart-contract-tests")
	require.NoError(t, err)
	t.Defer(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, uploadFileName)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

// uploadPart reads an upload file into the uploadFile part.
func uploadPart(t *ldtest.T, path string) formdata.Part {
	part, err := formdata.File(uploadPartName, path, uploadContentType)
	require.NoError(t, err)
	return part
}

// NewUploadContent returns the body that a form with a "key" field and a file input would send.
func NewUploadContent(t *ldtest.T, path string, options ...formdata.Option) *formdata.Content {
	return formdata.New(options...).Add(
		formdata.Field("key", "value"),
		uploadPart(t, path),
	)
}
