package multiparttests

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/handlerqueue/multipart-contract-tests/formdata"
	"github.com/handlerqueue/multipart-contract-tests/framework"
	"github.com/handlerqueue/multipart-contract-tests/framework/ldtest"

	"github.com/stretchr/testify/require"
)

// AppClient makes requests to the application under test. It keeps cookies between requests,
// like a browser would.
type AppClient struct {
	baseURL string
	client  *http.Client
	logger  framework.Logger
}

// AppResponse is the outcome of a request to the application.
type AppResponse struct {
	Status int
	Header http.Header
	Body   string
}

func NewAppClient(t *ldtest.T) *AppClient {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}
	t.Defer(client.CloseIdleConnections)
	return &AppClient{
		baseURL: requireContext(t).appURL,
		client:  client,
		logger:  t.DebugLogger(),
	}
}

// ActionURL returns the URL of an action of the MultipartAction class.
func (c *AppClient) ActionURL(action string) string {
	return c.baseURL + "action/MultipartAction/" + action
}

// Get sends a GET request to an action.
func (c *AppClient) Get(t *ldtest.T, action string) AppResponse {
	req, err := http.NewRequest(http.MethodGet, c.ActionURL(action), nil)
	require.NoError(t, err)
	return c.do(t, req)
}

// PostMultipart sends the content to an action.
func (c *AppClient) PostMultipart(t *ldtest.T, action string, content *formdata.Content) AppResponse {
	body, length, err := content.Reader()
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, c.ActionURL(action), body)
	require.NoError(t, err)
	req.ContentLength = length
	req.Header.Set("Content-Type", content.ContentType())
	return c.do(t, req)
}

func (c *AppClient) do(t *ldtest.T, req *http.Request) AppResponse {
	c.logger.Printf("Sending %s %s (Content-Type: %q)", req.Method, req.URL, req.Header.Get("Content-Type"))
	resp, err := c.client.Do(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	c.logger.Printf("Received status %d, body: %s", resp.StatusCode, string(data))
	return AppResponse{Status: resp.StatusCode, Header: resp.Header, Body: string(data)}
}

// Cookie returns the value of a cookie that the application set, or "" if there is none.
func (c *AppClient) Cookie(name string) string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	for _, cookie := range c.client.Jar.Cookies(u) {
		if cookie.Name == name {
			return cookie.Value
		}
	}
	return ""
}
