package testservice

import (
	"net/http"

	"github.com/google/uuid"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/handlerqueue/multipart-contract-tests/hiddenstore"
)

// Session holds the session attributes for one request. Attributes are loaded from the hidden
// store field the first time they are accessed, so the field may arrive in a multipart body
// that is parsed by a handler later in the queue.
type Session struct {
	ID      string
	entries map[string]ldvalue.OptionalString
	order   []string
	load    func() []hiddenstore.Entry
}

func (s *Session) ensureLoaded() {
	if s.entries != nil {
		return
	}
	s.entries = make(map[string]ldvalue.OptionalString)
	if s.load == nil {
		return
	}
	for _, e := range s.load() {
		s.set(e.Key, e.Value)
	}
}

func (s *Session) set(key string, value ldvalue.OptionalString) {
	if _, ok := s.entries[key]; !ok {
		s.order = append(s.order, key)
	}
	s.entries[key] = value
}

// Get returns the value of a session attribute. The second result is false if the attribute
// is absent or null.
func (s *Session) Get(key string) (string, bool) {
	s.ensureLoaded()
	v := s.entries[key]
	return v.StringValue(), v.IsDefined()
}

func (s *Session) Put(key, value string) {
	s.ensureLoaded()
	s.set(key, ldvalue.NewOptionalString(value))
}

// attributes returns the session entries in the order they were first set.
func (s *Session) attributes() []hiddenstore.Entry {
	s.ensureLoaded()
	ret := make([]hiddenstore.Entry, 0, len(s.order))
	for _, k := range s.order {
		ret = append(ret, hiddenstore.Entry{Key: k, Value: s.entries[k]})
	}
	return ret
}

// sessionStoreHandler identifies the session with a cookie, issuing one if the client has none,
// and restores attributes from the hidden store form field.
type sessionStoreHandler struct {
	cookieName string
	parameter  string
	codec      *hiddenstore.Codec
}

func newSessionStoreHandler(config SessionConfig) (*sessionStoreHandler, error) {
	cipher, err := hiddenstore.NewCipher([]byte(config.EncryptionKey), []byte(config.EncryptionIV))
	if err != nil {
		return nil, err
	}
	return &sessionStoreHandler{
		cookieName: config.CookieName,
		parameter:  config.HiddenStoreParameter,
		codec:      hiddenstore.NewCodec(cipher),
	}, nil
}

func (h *sessionStoreHandler) Handle(x *Exchange, next HandlerFunc) error {
	var sessionID string
	if c, err := x.Request.Cookie(h.cookieName); err == nil && c.Value != "" {
		sessionID = c.Value
	} else {
		sessionID = uuid.NewString()
		http.SetCookie(x.writer, &http.Cookie{
			Name:     h.cookieName,
			Value:    sessionID,
			Path:     "/",
			HttpOnly: true,
		})
		x.Logger.Debugf("issued session id %s", sessionID)
	}

	x.session = &Session{
		ID: sessionID,
		load: func() []hiddenstore.Entry {
			value := x.FormValue(h.parameter)
			if value == "" {
				return nil
			}
			entries, err := h.codec.DecodeFor(sessionID, value)
			if err != nil {
				x.Logger.Warnf("discarding hidden store: %s", err)
				return nil
			}
			return entries
		},
	}
	return next(x)
}
