// Package fetcher reads dataset content from local files or HTTP and parses
// delimited text into rows.
package fetcher

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// ParseCSV splits comma-separated text into rows of cells.
//
// A double quote toggles quoted mode wherever it appears; inside quotes a
// doubled quote is a literal quote, and commas and line breaks are kept as
// cell content. Rows end at \n, \r\n, or a lone \r. Rows whose cells are all
// blank are dropped. Input that ends without a terminator still yields its
// final row. Row arity is not checked.
func ParseCSV(content string) [][]string {
	var (
		rows     [][]string
		current  []string
		value    strings.Builder
		inQuotes bool
	)

	flushRow := func() {
		current = append(current, value.String())
		value.Reset()
		if !blankRow(current) {
			rows = append(rows, current)
		}
		current = nil
	}

	for i := 0; i < len(content); i++ {
		ch := content[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(content) && content[i+1] == '"' {
				value.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case inQuotes:
			value.WriteByte(ch)
		case ch == ',':
			current = append(current, value.String())
			value.Reset()
		case ch == '\n' || ch == '\r':
			if ch == '\r' && i+1 < len(content) && content[i+1] == '\n' {
				i++
			}
			flushRow()
		default:
			value.WriteByte(ch)
		}
	}

	if value.Len() > 0 || len(current) > 0 {
		flushRow()
	}
	return rows
}

// ReadCSV drains r and parses it with ParseCSV.
func ReadCSV(r io.Reader) ([][]string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "csv: read")
	}
	return ParseCSV(string(b)), nil
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
