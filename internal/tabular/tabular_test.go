package tabular

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/profile-finder/internal/model"
)

func TestReadPeople_CSV(t *testing.T) {
	t.Parallel()

	input := "First Name,Last Name,University,Graduation Year\n" +
		"Alice,Smith,Example University,2015\n" +
		" Bob , Jones ,MIT,\n" +
		",,,\n"

	people, err := ReadPeople(strings.NewReader(input), FormatCSV)
	require.NoError(t, err)
	require.Len(t, people, 2)

	assert.Equal(t, model.PersonQuery{
		FirstName: "Alice", LastName: "Smith", Affiliation: "Example University", GraduationYear: "2015",
	}, people[0])
	assert.Equal(t, "Bob Jones", people[1].FullName())
	assert.Equal(t, "MIT", people[1].Affiliation)
	assert.Empty(t, people[1].GraduationYear)
}

func TestReadPeople_HeaderAliases(t *testing.T) {
	t.Parallel()

	input := "Affiliation,last_name,FIRST-NAME\nUCLA,Lee,Dana\n"
	people, err := ReadPeople(strings.NewReader(input), FormatCSV)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "Dana Lee", people[0].FullName())
	assert.Equal(t, "UCLA", people[0].Affiliation)
}

func TestReadPeople_MissingColumn(t *testing.T) {
	t.Parallel()

	_, err := ReadPeople(strings.NewReader("First Name,Last Name\nAlice,Smith\n"), FormatCSV)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "affiliation")
}

func TestReadPeople_Empty(t *testing.T) {
	t.Parallel()

	_, err := ReadPeople(strings.NewReader(""), FormatCSV)
	require.Error(t, err)
}

func TestReadPeople_BOMAndWindows1252(t *testing.T) {
	t.Parallel()

	bom := append([]byte{0xEF, 0xBB, 0xBF}, []byte("First Name,Last Name,University\nAlice,Smith,MIT\n")...)
	people, err := ReadPeople(bytes.NewReader(bom), FormatCSV)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "Alice", people[0].FirstName)

	// 0xE9 is "é" in Windows-1252 and invalid on its own in UTF-8.
	cp1252 := []byte("First Name,Last Name,University\nRen\xe9,Dubois,Universit\xe9 Laval\n")
	people, err = ReadPeople(bytes.NewReader(cp1252), FormatCSV)
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, "René", people[0].FirstName)
	assert.Equal(t, "Université Laval", people[0].Affiliation)
}

func TestReadPeople_XLSX(t *testing.T) {
	t.Parallel()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("People")
	require.NoError(t, err)
	for _, vals := range [][]string{
		{"First Name", "Last Name", "University", "Graduation Year"},
		{"Alice", "Smith", "Example University", "2015"},
		{"Carol", "White", "Stanford", ""},
	} {
		row := sheet.AddRow()
		for _, v := range vals {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	people, err := ReadPeople(&buf, FormatXLSX)
	require.NoError(t, err)
	require.Len(t, people, 2)
	assert.Equal(t, "Alice Smith", people[0].FullName())
	assert.Equal(t, "2015", people[0].GraduationYear)
	assert.Equal(t, "Stanford", people[1].Affiliation)
}

func TestReadPeopleFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(path, []byte("First Name,Last Name,University\nAlice,Smith,MIT\n"), 0o600))

	people, err := ReadPeopleFile(path)
	require.NoError(t, err)
	assert.Len(t, people, 1)

	_, err = ReadPeopleFile(filepath.Join(dir, "people.pdf"))
	require.Error(t, err)

	_, err = ReadPeopleFile(filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
}

func TestFormatFromName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		want    Format
		wantErr bool
	}{
		{"in.csv", FormatCSV, false},
		{"IN.XLSX", FormatXLSX, false},
		{"out.json", FormatJSON, false},
		{"out.xls", "", true},
		{"noext", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := FormatFromName(tt.name)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func sampleResults() []model.MatchResult {
	alice := model.PersonQuery{FirstName: "Alice", LastName: "Smith", Affiliation: "Example University", GraduationYear: "2015"}
	bob := model.PersonQuery{FirstName: "Bob", LastName: "Jones", Affiliation: "MIT"}

	match := model.NewMatch(alice, "Software Engineer", "https://www.linkedin.com/in/alicesmith", 92, "Greater Boston Area")
	match.Status = model.StatusMatchFound
	income := 120000
	match.EstimatedIncome = &income

	none := model.NewNoMatch(bob)
	none.Status = model.StatusNoMatch
	none.MatchedTitle = model.TitleNotFound
	none.EstimatedLocation = model.LocationUnknown
	return []model.MatchResult{match, none}
}

func TestWriteResultsCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteResultsCSV(&buf, sampleResults()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(ResultColumns, ","), lines[0])
	assert.Equal(t,
		`Alice,Smith,Example University,2015,Software Engineer,https://www.linkedin.com/in/alicesmith,92,Greater Boston Area,"$120,000",Match Found`,
		lines[1])
	assert.Equal(t, "Bob,Jones,MIT,,Not Found,,0,Unknown,,No Match", lines[2])
}

func TestWriteResultsXLSX(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteResultsXLSX(&buf, sampleResults()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "Results", sheet.Name)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "Matched Title", sheet.Rows[0].Cells[4].String())
	assert.Equal(t, "Software Engineer", sheet.Rows[1].Cells[4].String())
	conf, err := sheet.Rows[1].Cells[6].Int()
	require.NoError(t, err)
	assert.Equal(t, 92, conf)
	income, err := sheet.Rows[1].Cells[8].Int()
	require.NoError(t, err)
	assert.Equal(t, 120000, income)
	assert.Equal(t, "No Match", sheet.Rows[2].Cells[9].String())
}

func TestWriteResults_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, FormatJSON, sampleResults()))

	var got []model.MatchResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "https://www.linkedin.com/in/alicesmith", got[0].ProfileURL)
	assert.Nil(t, got[1].EstimatedIncome)
}

func TestWriteResultsFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	require.NoError(t, WriteResultsFile(path, sampleResults()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "First Name,Last Name"))

	require.Error(t, WriteResultsFile(filepath.Join(dir, "out.doc"), nil))
}
