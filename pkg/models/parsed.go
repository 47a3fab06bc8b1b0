package models

// Page is one page (or page-equivalent unit) of extracted text.
type Page struct {
	No   int    `json:"no"`
	Text string `json:"text"`
}

// Table is a structured table pulled from a document: a header row plus
// data rows. XLSX sheets and PDF tables both normalize to this shape.
type Table struct {
	Page    int        `json:"page"`
	Name    string     `json:"name,omitempty"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ParsedDoc is the Parser's output: text pages, tables, and file metadata.
// Text is always valid UTF-8; encoding issues never leave the parser.
type ParsedDoc struct {
	Pages    []Page            `json:"pages"`
	Tables   []Table           `json:"tables"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// FullText concatenates page text, pages separated by a blank line.
func (d *ParsedDoc) FullText() string {
	var out string
	for i, p := range d.Pages {
		if i > 0 {
			out += "\n\n"
		}
		out += p.Text
	}
	return out
}

// HeadText returns the text of the first n pages.
func (d *ParsedDoc) HeadText(n int) string {
	var out string
	for i, p := range d.Pages {
		if i >= n {
			break
		}
		if i > 0 {
			out += "\n\n"
		}
		out += p.Text
	}
	return out
}
