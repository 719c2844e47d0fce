// Package csvheader reads the header row of a local delimited file.
package csvheader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// ErrNoHeader is returned for a file without any rows.
var ErrNoHeader = errors.New("csvheader: file has no header row")

const utf8BOM = "\ufeff"

// Read returns the trimmed column names of the first row of path. The file
// is decoded from encoding (an HTML/WHATWG encoding label such as "UTF-8"
// or "windows-1252"); an empty encoding means UTF-8.
func Read(path, encoding, delimiter string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvheader: %w", err)
	}
	defer f.Close()

	return Parse(f, encoding, delimiter)
}

// Parse is Read over an open stream.
func Parse(r io.Reader, encoding, delimiter string) ([]string, error) {
	if encoding == "" {
		encoding = "utf-8"
	}

	enc, err := htmlindex.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("csvheader: unsupported encoding %q: %w", encoding, err)
	}

	comma := ','

	if delimiter != "" {
		r, size := utf8.DecodeRuneInString(delimiter)
		if size != len(delimiter) {
			return nil, fmt.Errorf("csvheader: delimiter %q must be a single character", delimiter)
		}

		comma = r
	}

	cr := csv.NewReader(transform.NewReader(r, enc.NewDecoder()))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	row, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoHeader
		}

		return nil, fmt.Errorf("csvheader: reading header: %w", err)
	}

	names := make([]string, len(row))
	for i, name := range row {
		names[i] = strings.TrimSpace(name)
	}

	names[0] = strings.TrimPrefix(names[0], utf8BOM)

	return names, nil
}
