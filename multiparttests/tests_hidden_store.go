package multiparttests

import (
	"net/http"

	"github.com/handlerqueue/multipart-contract-tests/formdata"
	"github.com/handlerqueue/multipart-contract-tests/framework/ldtest"
	"github.com/handlerqueue/multipart-contract-tests/hiddenstore"
	"github.com/handlerqueue/multipart-contract-tests/servicedef"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionCookieName = "NABLARCH_SID"

func DoHiddenStoreTests(t *ldtest.T) {
	t.RequireCapability(servicedef.CapabilityHiddenStore)

	t.Run("session value round trip", func(t *ldtest.T) {
		_, client := NewScopeAndClient(t)
		sessionID := startSession(t, client)

		field := encodeHiddenStore(t, sessionID, hiddenstore.StringEntry("key", "value"))
		content := NewUploadContent(t, NewUploadFile(t, nil)).
			Add(formdata.Field(hiddenstore.DefaultParameterName, field))

		resp := client.PostMultipart(t, "GetSession", content)

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "value", resp.Body)
	})

	t.Run("store from another session is ignored", func(t *ldtest.T) {
		_, client := NewScopeAndClient(t)
		sessionID := startSession(t, client)

		field := encodeHiddenStore(t, sessionID+"-other", hiddenstore.StringEntry("key", "value"))
		content := NewUploadContent(t, NewUploadFile(t, nil)).
			Add(formdata.Field(hiddenstore.DefaultParameterName, field))

		resp := client.PostMultipart(t, "GetSession", content)

		assert.Equal(t, http.StatusOK, resp.Status)
		assert.Equal(t, "", resp.Body)
	})
}

// startSession makes a request that causes the application to issue a session cookie, and
// returns the session ID.
func startSession(t *ldtest.T, client *AppClient) string {
	resp := client.Get(t, "PutSession")
	require.Equal(t, http.StatusOK, resp.Status)
	sessionID := client.Cookie(sessionCookieName)
	require.NotEmpty(t, sessionID, "application did not set the %s cookie", sessionCookieName)
	return sessionID
}

func encodeHiddenStore(t *ldtest.T, sessionID string, entries ...hiddenstore.Entry) string {
	options := requireContext(t).options
	cipher, err := hiddenstore.NewCipher([]byte(options.HiddenStoreKey), []byte(options.HiddenStoreIV.StringValue()))
	require.NoError(t, err)
	field, err := hiddenstore.NewCodec(cipher).Encode(sessionID, entries)
	require.NoError(t, err)
	return field
}
