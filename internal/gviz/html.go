package gviz

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// maxColspan caps the merge width taken from the HTML export. No tab has
// anywhere near this many slot columns.
const maxColspan = 64

// ParseHTML converts the tqx=out:html export of a tab into a Grid. Merged
// cells keep their colspan attribute as Span, the same way the JSON
// export reports it in the cell property bag.
func ParseHTML(body []byte) (*Grid, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, errors.New("no table in html export"))
	}

	g := &Grid{Status: "ok"}
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var row Row
		tr.ChildrenFiltered("td,th").Each(func(_ int, td *goquery.Selection) {
			text := strings.TrimSpace(td.Text())
			span := 0
			if v, ok := td.Attr("colspan"); ok {
				if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 1 {
					span = min(n, maxColspan)
				}
			}
			var cell *Cell
			if text != "" {
				cell = &Cell{V: text, Span: span}
			}
			row.C = append(row.C, cell)
			// The HTML export does not emit the covered cells of a merge,
			// pad them so column positions match the JSON layout.
			for i := 1; i < span; i++ {
				row.C = append(row.C, nil)
			}
		})
		g.Table.Rows = append(g.Table.Rows, row)
	})

	return g, nil
}
