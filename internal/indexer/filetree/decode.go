package filetree

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode turns raw file bytes into text without ever failing. Valid UTF-8 is
// kept (minus a leading BOM); anything else is read through the Windows-1252
// code page, so binary content still becomes searchable
// text.
func Decode(data []byte) string {
	if utf8.Valid(data) {
		return string(bytes.TrimPrefix(data, utf8BOM))
	}
	// Every byte has a Windows-1252 mapping, so decoding cannot fail.
	out, _ := charmap.Windows1252.NewDecoder().Bytes(data)
	return string(out)
}
