package testservice

import (
	"errors"
	"net/http"
	"strings"
)

const (
	actionPathPrefix = "/action/MultipartAction/"

	// UploadFileName is the name that uploaded files are saved under in the upload directory.
	UploadFileName = "uploadFile"

	sessionKey   = "key"
	sessionValue = "value"
)

var errNoSessionStore = errors.New("session store handler is not configured in the handler queue")

// multipartAction is the application's business action.
type multipartAction struct {
	uploadDir string
}

func (a *multipartAction) dispatch(x *Exchange) error {
	path := x.Request.URL.Path
	if !strings.HasPrefix(path, actionPathPrefix) {
		return NewStatusError(http.StatusNotFound, "no action for path %s", path)
	}
	switch strings.TrimPrefix(path, actionPathPrefix) {
	case "Upload":
		return a.upload(x)
	case "PutSession":
		return a.putSession(x)
	case "GetSession":
		return a.getSession(x)
	default:
		return NewStatusError(http.StatusNotFound, "no action for path %s", path)
	}
}

// upload moves the uploaded file out of temporary storage.
func (a *multipartAction) upload(x *Exchange) error {
	parts := x.Parts(UploadFileName)
	if len(parts) == 0 {
		return NewStatusError(http.StatusBadRequest, "request has no %q part", UploadFileName)
	}
	if err := parts[0].MoveTo(a.uploadDir, UploadFileName); err != nil {
		return err
	}
	x.Write(http.StatusOK, "SUCCESS")
	return nil
}

func (a *multipartAction) putSession(x *Exchange) error {
	session := x.Session()
	if session == nil {
		return errNoSessionStore
	}
	session.Put(sessionKey, sessionValue)
	x.Write(http.StatusOK, "OK")
	return nil
}

// getSession writes the session value of "key".
func (a *multipartAction) getSession(x *Exchange) error {
	session := x.Session()
	if session == nil {
		return errNoSessionStore
	}
	value, _ := session.Get(sessionKey)
	x.Write(http.StatusOK, value)
	return nil
}
