package testservice

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

// HandlerFunc processes a request at one position of the handler queue.
type HandlerFunc func(x *Exchange) error

// Handler is one stage of the handler queue. It may act before and after the rest of the queue,
// which it runs by calling next.
type Handler interface {
	Handle(x *Exchange, next HandlerFunc) error
}

// Exchange carries a request through the handler queue.
type Exchange struct {
	Request *http.Request
	Logger  *logrus.Entry

	writer  http.ResponseWriter
	written bool
	form    url.Values
	parts   map[string][]*PartInfo
	session *Session
}

// FormValue returns the first value of a form field, from the parsed multipart body if there
// was one, or else from the query string and URL-encoded body.
func (x *Exchange) FormValue(name string) string {
	if x.form != nil {
		return x.form.Get(name)
	}
	return x.Request.FormValue(name)
}

// Parts returns the uploaded files with the given field name.
func (x *Exchange) Parts(name string) []*PartInfo {
	return x.parts[name]
}

// Session returns the session, or nil if the queue has no session store handler.
func (x *Exchange) Session() *Session {
	return x.session
}

// Header returns the response headers; changes must be made before the response is written.
func (x *Exchange) Header() http.Header {
	return x.writer.Header()
}

// Write sends a plain text response.
func (x *Exchange) Write(status int, body string) {
	x.writer.Header().Set("Content-Type", "text/plain; charset=utf-8")
	x.writer.WriteHeader(status)
	_, _ = x.writer.Write([]byte(body))
	x.written = true
}

// StatusError is an error that results in a specific HTTP status.
type StatusError struct {
	Status int
	Err    error
}

func NewStatusError(status int, format string, args ...interface{}) *StatusError {
	return &StatusError{Status: status, Err: fmt.Errorf(format, args...)}
}

func (e *StatusError) Error() string { return e.Err.Error() }

func (e *StatusError) Unwrap() error { return e.Err }

// Queue runs the configured handlers in order, ending with the action.
type Queue struct {
	handlers []Handler
	action   HandlerFunc
	logger   *logrus.Logger
}

func NewQueue(logger *logrus.Logger, action HandlerFunc, handlers ...Handler) *Queue {
	return &Queue{handlers: handlers, action: action, logger: logger}
}

func (q *Queue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	x := &Exchange{
		Request: r,
		Logger:  q.logger.WithField("path", r.URL.Path),
		writer:  w,
	}
	next := q.action
	for i := len(q.handlers) - 1; i >= 0; i-- {
		h, rest := q.handlers[i], next
		next = func(x *Exchange) error { return h.Handle(x, rest) }
	}
	if err := next(x); err != nil {
		// No error handler in the queue turned this into a response.
		x.Logger.Errorf("unhandled error: %s", err)
		if !x.written {
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

// httpErrorHandler converts errors from the rest of the queue into error responses and logs
// them. Server errors are logged at FATAL level as "[500 InternalError] <error>".
type httpErrorHandler struct{}

func (httpErrorHandler) Handle(x *Exchange, next HandlerFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
		if err == nil {
			return
		}
		status := http.StatusInternalServerError
		var se *StatusError
		if errors.As(err, &se) {
			status = se.Status
		}
		message := fmt.Sprintf("[%d %s] %s", status, statusLabel(status), err)
		if status >= 500 {
			x.Logger.Log(logrus.FatalLevel, message)
		} else {
			x.Logger.Info(message)
		}
		if !x.written {
			x.Write(status, http.StatusText(status))
		}
		err = nil
	}()
	return next(x)
}

func statusLabel(status int) string {
	if status == http.StatusInternalServerError {
		return "InternalError"
	}
	return strings.ReplaceAll(http.StatusText(status), " ", "")
}
