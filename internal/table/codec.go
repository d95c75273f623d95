package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// WriteCSV writes a header line followed by one line per row.
func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return eris.Wrap(err, "table: write csv header")
	}
	record := make([]string, len(f.Columns))
	for _, r := range f.Rows {
		for i, c := range f.Columns {
			record[i] = String(r[c])
		}
		if err := cw.Write(record); err != nil {
			return eris.Wrap(err, "table: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "table: flush csv")
}

// CSV returns the frame encoded by WriteCSV.
func (f *Frame) CSV() (string, error) {
	var b strings.Builder
	if err := f.WriteCSV(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// ReadCSV parses CSV with a header line. Cells are kept as strings.
func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return New(), nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "table: read csv header")
	}

	f := New(header...)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "table: read csv row")
		}
		row := make(Row, len(header))
		for i, c := range header {
			if i < len(record) {
				row[c] = record[i]
			}
		}
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}

// WriteJSON writes the rows as an array of objects with keys in column order.
func (f *Frame) WriteJSON(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range f.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, c := range f.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(c)
			if err != nil {
				return eris.Wrap(err, "table: encode json key")
			}
			v, err := json.Marshal(jsonValue(r[c]))
			if err != nil {
				return eris.Wrapf(err, "table: encode column %s", c)
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	_, err := w.Write(buf.Bytes())
	return eris.Wrap(err, "table: write json")
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// WriteHTML renders the frame as an HTML table.
func (f *Frame) WriteHTML(w io.Writer) error {
	if len(f.Columns) == 0 {
		_, err := io.WriteString(w, "<table></table>\n")
		return eris.Wrap(err, "table: write html")
	}

	var src bytes.Buffer
	writeMarkdownRow(&src, f.Columns)
	src.WriteString("|")
	for range f.Columns {
		src.WriteString(" --- |")
	}
	src.WriteString("\n")
	cells := make([]string, len(f.Columns))
	for _, r := range f.Rows {
		for i, c := range f.Columns {
			cells[i] = String(r[c])
		}
		writeMarkdownRow(&src, cells)
	}

	if err := markdown.Convert(src.Bytes(), w); err != nil {
		return eris.Wrap(err, "table: render html")
	}
	return nil
}

func writeMarkdownRow(buf *bytes.Buffer, cells []string) {
	buf.WriteString("|")
	for _, c := range cells {
		buf.WriteString(" ")
		buf.WriteString(escapeMarkdown(c))
		buf.WriteString(" |")
	}
	buf.WriteString("\n")
}

// escapeMarkdown backslash-escapes ASCII punctuation so cells render as
// literal text.
func escapeMarkdown(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '\n' || r == '\r':
			b.WriteByte(' ')
		case r < 128 && strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
