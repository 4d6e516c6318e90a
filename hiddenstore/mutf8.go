package hiddenstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"
)

const maxUTFLength = 0xFFFF

var errMalformedUTF = errors.New("malformed modified UTF-8 input")

// encodeModifiedUTF8 converts a string to the "modified UTF-8" form used by Java data streams:
// NUL is written as two bytes, and characters outside the Basic Multilingual Plane are written
// as a surrogate pair of three-byte sequences.
func encodeModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, c := range utf16.Encode([]rune(s)) {
		switch {
		case c >= 0x0001 && c <= 0x007F:
			out = append(out, byte(c))
		case c <= 0x07FF:
			out = append(out,
				byte(0xC0|(c>>6)&0x1F),
				byte(0x80|c&0x3F))
		default:
			out = append(out,
				byte(0xE0|(c>>12)&0x0F),
				byte(0x80|(c>>6)&0x3F),
				byte(0x80|c&0x3F))
		}
	}
	return out
}

func decodeModifiedUTF8(data []byte) (string, error) {
	units := make([]uint16, 0, len(data))
	for i := 0; i < len(data); {
		b := data[i]
		switch {
		case b&0x80 == 0:
			units = append(units, uint16(b))
			i++
		case b&0xE0 == 0xC0:
			if i+1 >= len(data) || data[i+1]&0xC0 != 0x80 {
				return "", errMalformedUTF
			}
			units = append(units, uint16(b&0x1F)<<6|uint16(data[i+1]&0x3F))
			i += 2
		case b&0xF0 == 0xE0:
			if i+2 >= len(data) || data[i+1]&0xC0 != 0x80 || data[i+2]&0xC0 != 0x80 {
				return "", errMalformedUTF
			}
			units = append(units, uint16(b&0x0F)<<12|uint16(data[i+1]&0x3F)<<6|uint16(data[i+2]&0x3F))
			i += 3
		default:
			return "", errMalformedUTF
		}
	}
	return string(utf16.Decode(units)), nil
}

// writeUTF writes a two-byte big-endian length followed by the modified UTF-8 bytes.
func writeUTF(w io.Writer, s string) error {
	data := encodeModifiedUTF8(s)
	if len(data) > maxUTFLength {
		return fmt.Errorf("encoded string too long: %d bytes", len(data))
	}
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(data)))
	if _, err := w.Write(length[:]); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

func readUTF(r io.Reader) (string, error) {
	var length uint16
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return "", err
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", err
	}
	return decodeModifiedUTF8(data)
}
