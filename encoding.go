package mcrecover

import (
	"bytes"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
)

// Encoding is the text encoding of filenames and comments on a card.
type Encoding uint16

const (
	EncodingANSI Encoding = 0
	EncodingSJIS Encoding = 1
)

func (e Encoding) String() string {
	if e == EncodingSJIS {
		return "Shift-JIS"
	}
	return "ANSI"
}

func (e Encoding) charset() encoding.Encoding {
	if e == EncodingSJIS {
		return japanese.ShiftJIS
	}
	return charmap.Windows1252
}

// decode converts a NUL terminated, fixed size field to a string.
func (e Encoding) decode(raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	if len(raw) == 0 {
		return ""
	}

	s, err := e.charset().NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(s)
}

// encode converts s to a NUL padded field of n bytes.
// Characters the encoding cannot represent are replaced.
func (e Encoding) encode(s string, n int) []byte {
	field := make([]byte, n)
	raw, err := encoding.ReplaceUnsupported(e.charset().NewEncoder()).Bytes([]byte(s))
	if err != nil {
		raw = []byte(s)
	}
	copy(field, raw)
	return field
}
