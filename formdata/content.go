// Package formdata builds multipart/form-data request bodies.
//
// The encoder writes the same layout as common HTTP client libraries: every part starts with a
// delimiter line, a block of headers, and a blank line, followed by the part content. Content
// can optionally be sent with a Content-Type header that has no boundary parameter, so that
// servers which require one can be shown to reject the request.
package formdata

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBoundary is the delimiter used when none is specified.
const DefaultBoundary = "__END_OF_PART__"

const (
	newline   = "\r\n"
	twoDashes = "--"
)

var errNoParts = errors.New("multipart content must have at least one part")

// Part is a single part of a multipart body.
type Part struct {
	// Name is the form field name, sent in the Content-Disposition header.
	Name string

	// FileName, if not empty, is sent as the filename parameter of the Content-Disposition header.
	FileName string

	// ContentType is the media type of the part content. If empty, no Content-Type header is sent.
	ContentType string

	// Content is the part body.
	Content []byte
}

// Field returns a part for a plain form field.
func Field(name, value string) Part {
	return Part{Name: name, Content: []byte(value)}
}

// File returns a part for a file upload, read from the file system. The filename parameter
// is the base name of the path.
func File(name, path, contentType string) (Part, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Part{}, fmt.Errorf("reading upload file: %w", err)
	}
	return Part{
		Name:        name,
		FileName:    filepath.Base(path),
		ContentType: contentType,
		Content:     data,
	}, nil
}

func (p Part) disposition() string {
	d := "form-data; name=" + quote(p.Name)
	if p.FileName != "" {
		d += "; filename=" + quote(p.FileName)
	}
	return d
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func quote(s string) string {
	return `"` + quoteEscaper.Replace(s) + `"`
}

// Content is an ordered list of parts and the delimiter used to separate them.
type Content struct {
	boundary      string
	omitParameter bool
	parts         []Part
}

// Option configures a Content.
type Option func(*Content)

// WithBoundary sets the delimiter string.
func WithBoundary(boundary string) Option {
	return func(c *Content) { c.boundary = boundary }
}

// WithoutBoundaryParameter makes ContentType return "multipart/form-data" with no boundary
// parameter. The body is still delimited with the boundary.
func WithoutBoundaryParameter() Option {
	return func(c *Content) { c.omitParameter = true }
}

// New creates an empty Content.
func New(options ...Option) *Content {
	c := &Content{boundary: DefaultBoundary}
	for _, o := range options {
		o(c)
	}
	return c
}

// Add appends parts and returns the Content for chaining.
func (c *Content) Add(parts ...Part) *Content {
	c.parts = append(c.parts, parts...)
	return c
}

// Parts returns a copy of the parts added so far.
func (c *Content) Parts() []Part {
	return append([]Part(nil), c.parts...)
}

// Boundary returns the delimiter string.
func (c *Content) Boundary() string {
	return c.boundary
}

// ContentType returns the value for the request's Content-Type header.
func (c *Content) ContentType() string {
	if c.omitParameter {
		return "multipart/form-data"
	}
	return mime.FormatMediaType("multipart/form-data", map[string]string{"boundary": c.boundary})
}

// WriteTo writes the encoded body.
func (c *Content) WriteTo(w io.Writer) (int64, error) {
	if len(c.parts) == 0 {
		return 0, errNoParts
	}
	cw := &countingWriter{w: w}
	for _, p := range c.parts {
		cw.writeString(twoDashes + c.boundary + newline)
		cw.writeString("Content-Disposition: " + p.disposition() + newline)
		if p.ContentType != "" {
			cw.writeString("Content-Type: " + p.ContentType + newline)
		}
		cw.writeString("Content-Length: " + strconv.Itoa(len(p.Content)) + newline)
		cw.writeString("Content-Transfer-Encoding: binary" + newline)
		cw.writeString(newline)
		cw.write(p.Content)
		cw.writeString(newline)
	}
	cw.writeString(twoDashes + c.boundary + twoDashes + newline)
	return cw.n, cw.err
}

// Bytes returns the encoded body.
func (c *Content) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Reader returns the encoded body and its length, for use as an HTTP request body.
func (c *Content) Reader() (io.Reader, int64, error) {
	data, err := c.Bytes()
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (cw *countingWriter) write(p []byte) {
	if cw.err != nil {
		return
	}
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	cw.err = err
}

func (cw *countingWriter) writeString(s string) {
	cw.write([]byte(s))
}
