// Package table holds CSV datasets as string-typed dataframes. Values are
// never type-converted on load; callers parse the columns they need.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/nexusdrive/delivery-etl/internal/domain"
)

// ErrNoHeader is returned when a CSV input has no header row.
var ErrNoHeader = errors.New("csv has no header row")

// nullTokens are cell values loaded as missing.
var nullTokens = []string{"", "NA", "N/A", "NaN", "nan", "NaT", "null", "NULL", "None", "<nil>"}

// Table is an immutable string table. Operations that change shape or names
// return a new Table.
type Table struct {
	df      dataframe.DataFrame
	columns []string
	rows    int
}

// ReadCSV loads a comma-separated table with a header row.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoHeader
	}
	return New(records[0], records[1:])
}

// New builds a table from a header and data rows. Rows are copied; short
// rows are padded with missing values and long rows are truncated. Header
// names are made unique first (see uniqueNames).
func New(header []string, rows [][]string) (*Table, error) {
	columns := uniqueNames(header)
	if len(rows) == 0 {
		return &Table{columns: columns}, nil
	}

	records := make([][]string, 0, len(rows)+1)
	records = append(records, columns)
	for _, row := range rows {
		rec := make([]string, len(columns))
		copy(rec, row)
		records = append(records, rec)
	}

	df := dataframe.LoadRecords(records,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nullTokens),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("load table: %w", df.Err)
	}
	return &Table{df: df, columns: columns, rows: df.Nrow()}, nil
}

// Empty returns a table with the given header and no rows.
func Empty(header []string) *Table {
	return &Table{columns: uniqueNames(header)}
}

// uniqueNames returns header with every name distinct and non-blank. The
// first occurrence of a name keeps it; later ones get the lowest free
// numeric suffix ("a", "a_1", "a_2"). Blank names become "unnamed_<index>".
// gota would otherwise rename duplicates itself, including the first one.
func uniqueNames(header []string) []string {
	out := make([]string, len(header))
	used := make(map[string]bool, len(header))
	for i, name := range header {
		if strings.TrimSpace(name) == "" {
			name = fmt.Sprintf("unnamed_%d", i)
		}
		out[i] = name
	}
	for i, name := range out {
		if !used[name] {
			used[name] = true
			continue
		}
		for k := 1; ; k++ {
			candidate := fmt.Sprintf("%s_%d", name, k)
			if !used[candidate] && !slices.Contains(out[i+1:], candidate) {
				out[i] = candidate
				used[candidate] = true
				break
			}
		}
	}
	return out
}

// Len returns the number of data rows.
func (t *Table) Len() int { return t.rows }

// Columns returns a copy of the header.
func (t *Table) Columns() []string { return slices.Clone(t.columns) }

// Has reports whether the header contains col.
func (t *Table) Has(col string) bool { return slices.Contains(t.columns, col) }

// Column returns the cell text of col with missing values as "". It returns
// nil when the column does not exist.
func (t *Table) Column(col string) []string {
	if !t.Has(col) {
		return nil
	}
	out := make([]string, t.rows)
	if t.rows == 0 {
		return out
	}
	s := t.df.Col(col)
	nan := s.IsNaN()
	for i, v := range s.Records() {
		if !nan[i] {
			out[i] = v
		}
	}
	return out
}

// Rows returns the data rows with missing values as "".
func (t *Table) Rows() [][]string {
	out := make([][]string, t.rows)
	for i := range out {
		out[i] = make([]string, len(t.columns))
	}
	for j, col := range t.columns {
		for i, v := range t.Column(col) {
			out[i][j] = v
		}
	}
	return out
}

// Head returns a table holding at most the first n rows. n <= 0 keeps all rows.
func (t *Table) Head(n int) (*Table, error) {
	rows := t.Rows()
	if n > 0 && n < len(rows) {
		rows = rows[:n]
	}
	return New(t.columns, rows)
}

// Normalize returns a copy of t with every column name normalized. Columns
// that collide after normalization keep the first occurrence's name and get
// a numeric suffix.
func (t *Table) Normalize() (*Table, error) {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = domain.NormalizeColumnName(c)
	}
	return New(names, t.Rows())
}

// WriteCSV writes the header and rows. Missing values are written as empty cells.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	if err := cw.WriteAll(t.Rows()); err != nil {
		return fmt.Errorf("write csv rows: %w", err)
	}
	return nil
}

// Concat stacks tables vertically. The result's header is the union of all
// headers in first-seen order; cells for columns a table lacks are missing.
func Concat(tables ...*Table) (*Table, error) {
	var header []string
	index := map[string]int{}
	total := 0
	for _, t := range tables {
		for _, c := range t.columns {
			if _, ok := index[c]; !ok {
				index[c] = len(header)
				header = append(header, c)
			}
		}
		total += t.rows
	}

	rows := make([][]string, 0, total)
	for _, t := range tables {
		for _, src := range t.Rows() {
			row := make([]string, len(header))
			for j, c := range t.columns {
				row[index[c]] = src[j]
			}
			rows = append(rows, row)
		}
	}
	return New(header, rows)
}

// IsMissing reports whether a cell value should be treated as missing after
// trimming surrounding whitespace.
func IsMissing(v string) bool {
	return slices.Contains(nullTokens, strings.TrimSpace(v))
}
