/*
	Package stringcodec decodes the UTF-16LE byte strings NTFS uses for file names and other on-disk text. It is
	deliberately more tolerant than a simple unicode/utf16 round-trip: INDX slack space holds overwritten filename
	entries whose tail bytes are often garbage, so decoding needs a way to ask "does this look like a plausible
	string?" without raising an error for every malformed surrogate.
*/
package stringcodec

import (
	"fmt"

	"github.com/t9t/ntfsfs/ntfserr"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var decoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

// DecodeString decodes b, which must hold an even number of bytes, as UTF-16LE. It fails with an *ntfserr.Error of
// Kind Value if b has an odd length or contains bytes the decoder cannot transform.
func DecodeString(b []byte) (string, error) {
	const op = "stringcodec.DecodeString"
	if len(b)%2 != 0 {
		return "", ntfserr.Wrap(op, ntfserr.Value, fmt.Errorf("input data must have an even number of bytes, has %d", len(b)))
	}
	out, _, err := transform.Bytes(decoder, b)
	if err != nil {
		return "", ntfserr.Wrap(op, ntfserr.Value, err)
	}
	return string(out), nil
}

// Valid reports whether b decodes as UTF-16LE without error. It is used to filter plausible-looking filename
// candidates out of INDX slack space, where most byte ranges are not valid encoded text at all.
func Valid(b []byte) bool {
	_, err := DecodeString(b)
	return err == nil
}
