package payroll

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var binarySignatures = []struct {
	magic []byte
	kind  string
}{
	{[]byte{'P', 'K', 0x03, 0x04}, "an Excel workbook or other zip archive"},
	{[]byte{'P', 'K', 0x05, 0x06}, "an empty zip archive"},
	{[]byte{'P', 'K', 0x07, 0x08}, "a spanned zip archive"},
	{[]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, "a legacy Excel (.xls) workbook"},
	{[]byte("%PDF-"), "a PDF document"},
}

// sniffBinary reports which container format data starts with, if any.
func sniffBinary(data []byte) (string, bool) {
	for _, sig := range binarySignatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.kind, true
		}
	}
	return "", false
}

// IsWorkbook reports whether data looks like a zip-based spreadsheet.
func IsWorkbook(data []byte) bool {
	return bytes.HasPrefix(data, binarySignatures[0].magic)
}

// decodeText converts raw upload bytes to UTF-8. A BOM selects UTF-8 or
// UTF-16; without one, invalid UTF-8 is read as Windows-1252, which is what
// spreadsheet tools on Windows write for "CSV (Comma delimited)".
func decodeText(data []byte) (string, error) {
	fallback := unicode.UTF8.NewDecoder()
	if !utf8.Valid(data) {
		fallback = charmap.Windows1252.NewDecoder()
	}
	decoded, _, err := transform.Bytes(unicode.BOMOverride(fallback), data)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func looksBinary(text string) bool {
	return strings.ContainsRune(text, 0)
}
