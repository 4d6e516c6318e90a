package testservice

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinDescriptors(t *testing.T) {
	old, err := BuiltinDescriptor("old")
	require.NoError(t, err)
	assert.Equal(t, []string{HTTPErrorHandler, MultipartHandler}, old.Handlers)
	assert.False(t, old.HasHandler(SessionStoreHandler))

	newer, err := BuiltinDescriptor("new")
	require.NoError(t, err)
	assert.True(t, newer.HasHandler(SessionStoreHandler))
	assert.Equal(t, "NABLARCH_SID", newer.SessionStore.CookieName)
	assert.Equal(t, "_HIDDEN_STORE_", newer.SessionStore.HiddenStoreParameter)
	assert.Equal(t, int64(10240), newer.Multipart.MaxContentLength)

	_, err = BuiltinDescriptor("newest")
	assert.Error(t, err)
}

func TestDescriptorDefaultsAndValidation(t *testing.T) {
	d, err := ParseDescriptor([]byte(`
name: custom
handlers: [sessionStoreHandler, multipartHandler]
sessionStore:
  encryptionKey: "abcdefghijklmnop"
`))
	require.NoError(t, err)
	assert.Equal(t, "NABLARCH_SID", d.SessionStore.CookieName)
	assert.Equal(t, "_HIDDEN_STORE_", d.SessionStore.HiddenStoreParameter)

	for name, yamlText := range map[string]string{
		"no handlers":     `name: x`,
		"unknown handler": `{name: x, handlers: [mysteryHandler]}`,
		"negative limit":  `{name: x, handlers: [multipartHandler], multipart: {maxContentLength: -1}}`,
		"bad key":         `{name: x, handlers: [sessionStoreHandler], sessionStore: {encryptionKey: short}}`,
		"not yaml":        `handlers: [`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseDescriptor([]byte(yamlText))
			assert.Error(t, err)
		})
	}
}

func TestLoadDescriptor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: file\nhandlers: [multipartHandler]\n"), 0o600))
	d, err := LoadDescriptor(path)
	require.NoError(t, err)
	assert.Equal(t, "file", d.Name)

	_, err = LoadDescriptor(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
