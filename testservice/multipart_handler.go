package testservice

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
)

// maxFieldBytes caps a single non-file form field, independently of the body limit.
const maxFieldBytes = 1 << 20

// multipartHandler parses multipart/form-data bodies before the action runs. Uploaded files
// are written to the part store; form fields become available through Exchange.FormValue.
type multipartHandler struct {
	maxContentLength int64
	store            *partStore
}

func (h *multipartHandler) Handle(x *Exchange, next HandlerFunc) error {
	contentType := x.Request.Header.Get("Content-Type")
	if contentType == "" {
		return next(x)
	}
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return NewStatusError(http.StatusBadRequest, "invalid Content-Type %q: %s", contentType, err)
	}
	if mediaType != "multipart/form-data" {
		return next(x)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return NewStatusError(http.StatusBadRequest, "boundary was not specified in Content-Type %q", contentType)
	}
	if h.maxContentLength > 0 && x.Request.ContentLength > h.maxContentLength {
		return h.tooLarge(x.Request.ContentLength)
	}

	body := &limitedBody{r: x.Request.Body, remaining: h.maxContentLength, limited: h.maxContentLength > 0}
	defer h.cleanup(x)
	if err := h.parse(x, multipart.NewReader(body, boundary), body); err != nil {
		return err
	}
	return next(x)
}

func (h *multipartHandler) parse(x *Exchange, reader *multipart.Reader, body *limitedBody) error {
	x.form = make(url.Values)
	x.parts = make(map[string][]*PartInfo)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if body.exceeded {
				return h.tooLarge(-1)
			}
			return NewStatusError(http.StatusBadRequest, "malformed multipart body: %s", err)
		}
		name := part.FormName()
		if name == "" {
			_ = part.Close()
			continue
		}
		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			_ = part.Close()
			if err != nil {
				if body.exceeded {
					return h.tooLarge(-1)
				}
				return NewStatusError(http.StatusBadRequest, "malformed multipart field %q: %s", name, err)
			}
			x.form.Add(name, string(value))
			continue
		}
		info, err := h.store.Save(part)
		_ = part.Close()
		if err != nil {
			if body.exceeded {
				return h.tooLarge(-1)
			}
			var malformed *readError
			if errors.As(err, &malformed) {
				return NewStatusError(http.StatusBadRequest, "malformed multipart part %q: %s", name, malformed.err)
			}
			return err
		}
		x.Logger.Infof("received part %s", info)
		x.parts[name] = append(x.parts[name], info)
	}
}

func (h *multipartHandler) tooLarge(length int64) error {
	if length < 0 {
		return NewStatusError(http.StatusRequestEntityTooLarge,
			"request body exceeded the limit of %d bytes", h.maxContentLength)
	}
	return NewStatusError(http.StatusRequestEntityTooLarge,
		"request body of %d bytes exceeds the limit of %d bytes", length, h.maxContentLength)
}

func (h *multipartHandler) cleanup(x *Exchange) {
	for _, infos := range x.parts {
		for _, info := range infos {
			if err := info.discard(); err != nil {
				x.Logger.Warnf("could not remove temporary file for part %s: %s", info, err)
			}
		}
	}
}

var errBodyTooLarge = errors.New("request body too large")

type limitedBody struct {
	r         io.Reader
	remaining int64
	limited   bool
	exceeded  bool
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if !b.limited {
		return b.r.Read(p)
	}
	if b.remaining <= 0 {
		// Allow reading one more byte so that a body of exactly the limit is accepted.
		var one [1]byte
		n, err := b.r.Read(one[:])
		if n > 0 {
			b.exceeded = true
			return 0, errBodyTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.r.Read(p)
	b.remaining -= int64(n)
	return n, err
}
