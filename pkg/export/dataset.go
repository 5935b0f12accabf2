package export

import "fmt"

// Column describes one dataset column. Weight sizes the column relative to
// the others in paginated formats; zero means 1.
type Column struct {
	Header string
	Align  string
	Weight float64
}

// Dataset defines tabular export content. Every row holds one cell per column.
type Dataset struct {
	Title   string
	Columns []Column
	Rows    [][]string
	Footer  string
}

func (d Dataset) validate(format string) error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("%s requires at least one column", format)
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("%s row %d has %d cells, want %d", format, i, len(row), len(d.Columns))
		}
	}
	return nil
}

// Headers returns the column headers in order.
func (d Dataset) Headers() []string {
	headers := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		headers[i] = col.Header
	}
	return headers
}

// Exporter renders a dataset into a downloadable document.
type Exporter interface {
	Render(data Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}
