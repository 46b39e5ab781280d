// Package textio detects a text file's encoding and reads its content as a
// Go string, trying candidate encodings in the order
// original_source/src/file_utils.py's detect_encoding does: a UTF-8 BOM
// check, then utf-8, latin-1, cp1252, iso-8859-1 in turn.
package textio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Encoding names returned by Detect, matching the original's Python codec
// names so log output and any persisted FileMetadata.Encoding stay legible.
const (
	EncodingUTF8BOM    = "utf-8-sig"
	EncodingUTF8       = "utf-8"
	EncodingLatin1     = "latin-1"
	EncodingCP1252     = "cp1252"
	EncodingISO88591   = "iso-8859-1"
	sniffWindow        = 1024
	utf8BOMPrefixBytes = 3
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// candidateEncodings maps an encoding name to its golang.org/x/text codec,
// tried in the order original_source tries them. latin-1 and iso-8859-1 are
// the same single-byte codec in the original (Python's "latin-1" and
// "iso-8859-1" are aliases of ISO 8859-1); utf-8 is checked strictly with
// unicode/utf8 in Detect so invalid byte sequences are actually rejected,
// where cp1252/latin-1 accept any byte.
var candidateEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{EncodingUTF8, unicode.UTF8},
	{EncodingLatin1, charmap.ISO8859_1},
	{EncodingCP1252, charmap.Windows1252},
	{EncodingISO88591, charmap.ISO8859_1},
}

// Detect inspects path's leading bytes and returns the name of the first
// encoding that can decode it, preferring a UTF-8 BOM match, then trying the
// remaining candidates in order.
func Detect(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot read file for encoding detection: %w", err)
	}
	defer f.Close()

	bomBuf := make([]byte, utf8BOMPrefixBytes)
	n, err := io.ReadFull(f, bomBuf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("cannot read file for encoding detection: %w", err)
	}
	if n == utf8BOMPrefixBytes && bytes.Equal(bomBuf, utf8BOM) {
		return EncodingUTF8BOM, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("cannot read file for encoding detection: %w", err)
	}
	sample := make([]byte, sniffWindow)
	sn, err := f.Read(sample)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("cannot read file for encoding detection: %w", err)
	}
	sample = sample[:sn]

	for _, cand := range candidateEncodings {
		if cand.name == EncodingUTF8 {
			// unicode.UTF8's decoder substitutes U+FFFD for invalid bytes
			// instead of failing, so validity is checked directly, ignoring
			// a multi-byte sequence cut off by a full sample window.
			check := sample
			for i := 0; i < utf8.UTFMax-1 && sn == sniffWindow && len(check) > 0; i++ {
				if r, size := utf8.DecodeLastRune(check); r != utf8.RuneError || size > 1 {
					break
				}
				check = check[:len(check)-1]
			}
			if utf8.Valid(check) {
				return cand.name, nil
			}
			continue
		}
		if _, err := cand.enc.NewDecoder().Bytes(sample); err == nil {
			return cand.name, nil
		}
	}

	return "", fmt.Errorf("could not detect encoding")
}

// Read decodes path as encodingName (auto-detecting when encodingName is
// empty) and returns its full content as a string.
func Read(path, encodingName string) (string, string, error) {
	if encodingName == "" {
		detected, err := Detect(path)
		if err != nil {
			return "", "", fmt.Errorf("encoding detection failed: %w", err)
		}
		encodingName = detected
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", encodingName, fmt.Errorf("cannot read file: %w", err)
	}

	dec := decoderFor(encodingName)
	if encodingName == EncodingUTF8BOM {
		raw = bytes.TrimPrefix(raw, utf8BOM)
	}
	if dec == nil {
		return string(raw), encodingName, nil
	}

	decoded, err := dec.Bytes(raw)
	if err != nil {
		return "", encodingName, fmt.Errorf("failed to read file: %w", err)
	}
	return string(decoded), encodingName, nil
}

func decoderFor(name string) *encoding.Decoder {
	switch name {
	case EncodingUTF8BOM, EncodingUTF8:
		return unicode.UTF8.NewDecoder()
	case EncodingLatin1, EncodingISO88591:
		return charmap.ISO8859_1.NewDecoder()
	case EncodingCP1252:
		return charmap.Windows1252.NewDecoder()
	default:
		return nil
	}
}
