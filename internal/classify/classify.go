// Package classify decides whether a file on disk is a candidate for
// indexing: its extension must be on the known text-file allow-list, and its
// leading bytes must not look like a binary signature or contain a null
// byte. Grounded on original_source/src/file_utils.go's is_text_file /
// _is_text_content / has_text_extension.
package classify

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// sniffWindow is how many leading bytes of a file are inspected for binary
// signatures and decodability, matching the 8KiB read in file_utils.py.
const sniffWindow = 8192

// textExtensions is the fixed allow-list of extensions considered text,
// matching original_source/src/file_utils.py's has_text_extension exactly.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".rst": true, ".log": true, ".csv": true,
	".json": true, ".xml": true, ".html": true, ".htm": true, ".css": true,
	".js": true, ".py": true, ".java": true, ".c": true, ".cpp": true,
	".h": true, ".hpp": true, ".cs": true, ".rb": true, ".go": true,
	".rs": true, ".php": true, ".sh": true, ".bat": true, ".ps1": true,
	".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".cfg": true,
	".conf": true, ".properties": true,
}

// binarySignatures are magic-number prefixes that mark a file as binary
// regardless of extension.
var binarySignatures = [][]byte{
	{0x00, 0x00, 0x00},
	{0xff, 0xfe},
	{0xfe, 0xff},
	{0xff, 0xfe, 0x00, 0x00},
	{0x00, 0x00, 0xfe, 0xff},
	{'P', 'K', 0x03, 0x04},
	{'P', 'K', 0x05, 0x06},
	{'P', 'K', 0x07, 0x08},
	{0x1f, 0x8b},
	{'B', 'Z', 'h'},
	{0x89, 'P', 'N', 'G'},
	{'G', 'I', 'F', '8', '7', 'a'},
	{'G', 'I', 'F', '8', '9', 'a'},
	{0xff, 0xd8, 0xff},
	{'I', 'D', '3'},
	{'R', 'I', 'F', 'F'},
	{0x25, 0x50, 0x44, 0x46},
}

// HasTextExtension reports whether path's extension is on the text-file
// allow-list, case-insensitively.
func HasTextExtension(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsTextFile reports whether path both has a text extension and, when
// checkContent is true, decodes as UTF-8 or Latin-1 without containing a
// binary signature or null byte in its leading sniffWindow bytes.
func IsTextFile(path string, checkContent bool) (bool, error) {
	if !HasTextExtension(path) {
		return false, nil
	}
	if !checkContent {
		return true, nil
	}

	f, err := os.Open(path)
	if err != nil {
		// A transiently unreadable file (removed mid-scan, permission
		// denied, ...) is treated as "not text", not a hard error,
		// matching is_text_file's bare except-returns-False.
		return false, nil
	}
	defer f.Close()

	buf := make([]byte, sniffWindow)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return false, nil
	}

	return isTextContent(buf[:n]), nil
}

func isTextContent(content []byte) bool {
	for _, sig := range binarySignatures {
		if bytes.HasPrefix(content, sig) {
			return false
		}
	}
	if bytes.IndexByte(content, 0x00) >= 0 {
		return false
	}
	// original_source tries utf-8 then falls back to latin-1, which maps
	// every byte value to a character and so never fails on its own; the
	// binary-signature and null-byte checks above are what actually reject
	// content here.
	return true
}
