package tabular

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/profile-finder/internal/estimate"
	"github.com/sells-group/profile-finder/internal/model"
)

// ResultColumns is the ordered header of exported results.
var ResultColumns = []string{
	"First Name",
	"Last Name",
	"Affiliation",
	"Graduation Year",
	"Matched Title",
	"Profile URL",
	"Confidence",
	"Estimated Location",
	"Estimated Income",
	"Status",
}

// ResultRow renders r in ResultColumns order.
func ResultRow(r model.MatchResult) []string {
	income := ""
	if r.EstimatedIncome != nil {
		income = estimate.FormatIncome(*r.EstimatedIncome)
	}
	return []string{
		r.FirstName,
		r.LastName,
		r.Affiliation,
		r.GraduationYear,
		r.MatchedTitle,
		r.ProfileURL,
		strconv.Itoa(r.ConfidencePercent),
		r.EstimatedLocation,
		income,
		string(r.Status),
	}
}

// WriteResults writes results to w in format.
func WriteResults(w io.Writer, format Format, results []model.MatchResult) error {
	switch format {
	case FormatCSV:
		return WriteResultsCSV(w, results)
	case FormatXLSX:
		return WriteResultsXLSX(w, results)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(results), "tabular: encode json")
	}
	return eris.Errorf("tabular: cannot write results as %q", format)
}

// WriteResultsFile writes results to path, choosing the format from the
// extension.
func WriteResultsFile(path string, results []model.MatchResult) error {
	format, err := FormatFromName(path)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "tabular: create output")
	}
	if err := WriteResults(f, format, results); err != nil {
		_ = f.Close()
		return err
	}
	return eris.Wrap(f.Close(), "tabular: close output")
}

// WriteResultsCSV writes a header row and one row per result.
func WriteResultsCSV(w io.Writer, results []model.MatchResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultColumns); err != nil {
		return eris.Wrap(err, "tabular: write header")
	}
	for _, r := range results {
		if err := cw.Write(ResultRow(r)); err != nil {
			return eris.Wrap(err, "tabular: write row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "tabular: flush csv")
}

// WriteResultsXLSX writes a single "Results" sheet. Confidence and income
// are numeric cells.
func WriteResultsXLSX(w io.Writer, results []model.MatchResult) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Results")
	if err != nil {
		return eris.Wrap(err, "tabular: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range ResultColumns {
		header.AddCell().SetString(col)
	}
	for _, r := range results {
		row := sheet.AddRow()
		row.AddCell().SetString(r.FirstName)
		row.AddCell().SetString(r.LastName)
		row.AddCell().SetString(r.Affiliation)
		row.AddCell().SetString(r.GraduationYear)
		row.AddCell().SetString(r.MatchedTitle)
		row.AddCell().SetString(r.ProfileURL)
		row.AddCell().SetInt(r.ConfidencePercent)
		row.AddCell().SetString(r.EstimatedLocation)
		income := row.AddCell()
		if r.EstimatedIncome != nil {
			income.SetInt(*r.EstimatedIncome)
		}
		row.AddCell().SetString(string(r.Status))
	}

	return eris.Wrap(f.Write(w), "tabular: write xlsx")
}
