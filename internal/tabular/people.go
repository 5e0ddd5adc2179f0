// Package tabular reads person rosters from CSV or XLSX and writes match
// results back out.
package tabular

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/charmap"

	"github.com/sells-group/profile-finder/internal/model"
)

// Format is a tabular file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// FormatFromName picks a format from a file name's extension.
func FormatFromName(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", eris.Errorf("tabular: unsupported file type %q", filepath.Ext(name))
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Accepted header spellings, compared after lowercasing and dropping
// spaces, underscores and dashes.
var headerAliases = map[string]string{
	"firstname":      "first",
	"first":          "first",
	"givenname":      "first",
	"lastname":       "last",
	"last":           "last",
	"surname":        "last",
	"familyname":     "last",
	"university":     "affiliation",
	"affiliation":    "affiliation",
	"school":         "affiliation",
	"college":        "affiliation",
	"graduationyear": "year",
	"gradyear":       "year",
	"classyear":      "year",
	"year":           "year",
}

// ReadPeopleFile reads a roster from a .csv or .xlsx file.
func ReadPeopleFile(path string) ([]model.PersonQuery, error) {
	format, err := FormatFromName(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: open roster")
	}
	defer f.Close() //nolint:errcheck
	return ReadPeople(f, format)
}

// ReadPeople reads a roster in the given format. The first row is the
// header; First Name, Last Name and University (or Affiliation) columns are
// required, Graduation Year is optional. Rows without a name are skipped.
func ReadPeople(r io.Reader, format Format) ([]model.PersonQuery, error) {
	var (
		rows [][]string
		err  error
	)
	switch format {
	case FormatCSV:
		rows, err = readCSVRows(r)
	case FormatXLSX:
		rows, err = readXLSXRows(r)
	default:
		return nil, eris.Errorf("tabular: cannot read people from %q", format)
	}
	if err != nil {
		return nil, err
	}
	return peopleFromRows(rows)
}

func readCSVRows(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: read csv")
	}
	data, err = DecodeText(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "tabular: parse csv")
	}
	return rows, nil
}

// DecodeText returns data as UTF-8. A UTF-8 byte order mark is stripped and
// input that is not valid UTF-8 is decoded as Windows-1252.
func DecodeText(data []byte) ([]byte, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data, nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: decode windows-1252")
	}
	return out, nil
}

func readXLSXRows(r io.Reader) ([][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: read xlsx")
	}
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("tabular: xlsx has no sheets")
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func peopleFromRows(rows [][]string) ([]model.PersonQuery, error) {
	if len(rows) == 0 {
		return nil, eris.New("tabular: roster is empty")
	}

	colIdx := make(map[string]int)
	for i, col := range rows[0] {
		key := headerKey(col)
		if canon, ok := headerAliases[key]; ok {
			if _, dup := colIdx[canon]; !dup {
				colIdx[canon] = i
			}
		}
	}
	for _, req := range []string{"first", "last", "affiliation"} {
		if _, ok := colIdx[req]; !ok {
			return nil, eris.Errorf("tabular: missing required column %q (header: %v)", req, rows[0])
		}
	}

	people := make([]model.PersonQuery, 0, len(rows)-1)
	for _, row := range rows[1:] {
		q := model.PersonQuery{
			FirstName:      getCol(row, colIdx, "first"),
			LastName:       getCol(row, colIdx, "last"),
			Affiliation:    getCol(row, colIdx, "affiliation"),
			GraduationYear: normalizeYear(getCol(row, colIdx, "year")),
		}
		if q.FullName() == "" {
			continue
		}
		people = append(people, q)
	}
	return people, nil
}

func headerKey(col string) string {
	col = strings.ToLower(strings.TrimSpace(col))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(col)
}

func getCol(row []string, colIdx map[string]int, name string) string {
	i, ok := colIdx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// normalizeYear drops the ".0" spreadsheets add to numeric years.
func normalizeYear(y string) string {
	return strings.TrimSuffix(y, ".0")
}
