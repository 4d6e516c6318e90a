package hiddenstore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// JavaStringType is the type name recorded for string session values.
const JavaStringType = "java.lang.String"

const (
	streamMagic   = 0xACED
	streamVersion = 5
	tcString      = 0x74
	tcLongString  = 0x7C
)

// encodeJavaString returns the Java object serialization stream for a single String object.
func encodeJavaString(s string) []byte {
	data := encodeModifiedUTF8(s)
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, uint16(streamMagic))
	_ = binary.Write(&buf, binary.BigEndian, uint16(streamVersion))
	if len(data) <= maxUTFLength {
		buf.WriteByte(tcString)
		_ = binary.Write(&buf, binary.BigEndian, uint16(len(data)))
	} else {
		buf.WriteByte(tcLongString)
		_ = binary.Write(&buf, binary.BigEndian, uint64(len(data)))
	}
	buf.Write(data)
	return buf.Bytes()
}

func decodeJavaString(stream []byte) (string, error) {
	r := bytes.NewReader(stream)
	var magic, version uint16
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if magic != streamMagic || version != streamVersion {
		return "", fmt.Errorf("%w: not an object stream (header %04x %04x)", ErrMalformed, magic, version)
	}
	tc, err := r.ReadByte()
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	var length uint64
	switch tc {
	case tcString:
		var l uint16
		err = binary.Read(r, binary.BigEndian, &l)
		length = uint64(l)
	case tcLongString:
		err = binary.Read(r, binary.BigEndian, &length)
	default:
		return "", fmt.Errorf("%w: object stream holds type code %#x, not a string", ErrUnsupportedValue, tc)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if length > uint64(r.Len()) {
		return "", fmt.Errorf("%w: string length %d exceeds stream", ErrMalformed, length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	s, err := decodeModifiedUTF8(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	return s, nil
}
