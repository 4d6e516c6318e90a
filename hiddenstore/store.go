// Package hiddenstore encodes session state for transport in a hidden form field.
//
// The field value is the base64 form of an encrypted byte sequence:
//
//	int32   session id length (big-endian)
//	[]byte  session id (UTF-8)
//	entries, each:
//	  modified-UTF-8 key (two-byte length prefix)
//	  int32   length of the encoded value, 0 for a null value
//	  modified-UTF-8 type name (omitted for a null value)
//	  []byte  encoded value: the value's Java object stream, encrypted
//
// Only string values are supported.
package hiddenstore

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// DefaultParameterName is the form field that carries the encoded session.
const DefaultParameterName = "_HIDDEN_STORE_"

var (
	ErrMalformed        = errors.New("malformed hidden store data")
	ErrUnsupportedValue = errors.New("unsupported session value type")
	ErrSessionMismatch  = errors.New("hidden store belongs to a different session")
)

// Entry is a single session attribute. An undefined Value is a null entry.
type Entry struct {
	Key   string
	Value ldvalue.OptionalString
}

// StringEntry returns an Entry with a non-null value.
func StringEntry(key, value string) Entry {
	return Entry{Key: key, Value: ldvalue.NewOptionalString(value)}
}

// Codec converts between session entries and the hidden field value.
type Codec struct {
	cipher *Cipher
}

func NewCodec(cipher *Cipher) *Codec {
	return &Codec{cipher: cipher}
}

// Encode serializes and encrypts the session and returns the field value.
func (c *Codec) Encode(sessionID string, entries []Entry) (string, error) {
	plain, err := c.serialize(sessionID, entries)
	if err != nil {
		return "", err
	}
	encrypted, err := c.cipher.Encrypt(plain)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// Decode reverses Encode. It does not check the session id; see DecodeFor.
func (c *Codec) Decode(value string) (string, []Entry, error) {
	encrypted, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	plain, err := c.cipher.Decrypt(encrypted)
	if err != nil {
		return "", nil, err
	}
	return c.deserialize(plain)
}

// DecodeFor decodes the field value and returns ErrSessionMismatch if it was not produced for
// the given session id.
func (c *Codec) DecodeFor(sessionID, value string) ([]Entry, error) {
	sid, entries, err := c.Decode(value)
	if err != nil {
		return nil, err
	}
	if sid != sessionID {
		return nil, ErrSessionMismatch
	}
	return entries, nil
}

func (c *Codec) serialize(sessionID string, entries []Entry) ([]byte, error) {
	var buf bytes.Buffer
	sid := []byte(sessionID)
	_ = binary.Write(&buf, binary.BigEndian, int32(len(sid)))
	buf.Write(sid)
	for _, e := range entries {
		if err := writeUTF(&buf, e.Key); err != nil {
			return nil, fmt.Errorf("session key %q: %w", e.Key, err)
		}
		if !e.Value.IsDefined() {
			_ = binary.Write(&buf, binary.BigEndian, int32(0))
			continue
		}
		encoded, err := c.cipher.Encrypt(encodeJavaString(e.Value.StringValue()))
		if err != nil {
			return nil, err
		}
		_ = binary.Write(&buf, binary.BigEndian, int32(len(encoded)))
		if err := writeUTF(&buf, JavaStringType); err != nil {
			return nil, err
		}
		buf.Write(encoded)
	}
	return buf.Bytes(), nil
}

func (c *Codec) deserialize(data []byte) (string, []Entry, error) {
	r := bytes.NewReader(data)
	var sidLen int32
	if err := binary.Read(r, binary.BigEndian, &sidLen); err != nil {
		return "", nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if sidLen < 0 || int(sidLen) > r.Len() {
		return "", nil, fmt.Errorf("%w: invalid session id length %d", ErrMalformed, sidLen)
	}
	sid := make([]byte, sidLen)
	_, _ = io.ReadFull(r, sid)

	var entries []Entry
	for r.Len() > 0 {
		key, err := readUTF(r)
		if err != nil {
			return "", nil, fmt.Errorf("%w: reading key: %s", ErrMalformed, err)
		}
		var valueLen int32
		if err := binary.Read(r, binary.BigEndian, &valueLen); err != nil {
			return "", nil, fmt.Errorf("%w: reading length of %q: %s", ErrMalformed, key, err)
		}
		if valueLen == 0 {
			entries = append(entries, Entry{Key: key})
			continue
		}
		typeName, err := readUTF(r)
		if err != nil {
			return "", nil, fmt.Errorf("%w: reading type of %q: %s", ErrMalformed, key, err)
		}
		if valueLen < 0 || int(valueLen) > r.Len() {
			return "", nil, fmt.Errorf("%w: invalid value length %d for %q", ErrMalformed, valueLen, key)
		}
		encoded := make([]byte, valueLen)
		_, _ = io.ReadFull(r, encoded)
		if typeName != JavaStringType {
			return "", nil, fmt.Errorf("%w: %s (key %q)", ErrUnsupportedValue, typeName, key)
		}
		stream, err := c.cipher.Decrypt(encoded)
		if err != nil {
			return "", nil, err
		}
		value, err := decodeJavaString(stream)
		if err != nil {
			return "", nil, err
		}
		entries = append(entries, StringEntry(key, value))
	}
	return string(sid), entries, nil
}
