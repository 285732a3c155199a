package domain

import (
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FilenameData carries the display filename of an item representation and an
// ASCII-only variant usable in Content-Disposition.
type FilenameData struct {
	Filename      string `json:"filename"`
	FilenameASCII string `json:"filename_ascii"`
}

// DownloadResult is the assembled response to a download request. Body must
// be closed by the consumer.
type DownloadResult struct {
	Body          io.ReadCloser
	Filename      string
	FilenameASCII string
	Caption       string
}

// ASCIIFilename folds name to ASCII: diacritics are stripped after NFD
// decomposition and any remaining non-ASCII rune is dropped. Spaces become
// underscores so the result can be used unquoted in a header.
func ASCIIFilename(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	var sb strings.Builder
	for _, r := range folded {
		switch {
		case r == ' ':
			sb.WriteByte('_')
		case r < utf8.RuneSelf && unicode.IsPrint(r) && r != '"' && r != ';':
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
