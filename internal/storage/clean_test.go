package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyTable(keys ...string) Table {
	t := Table{Headers: []string{"company_name", "row"}}
	for i, k := range keys {
		t.Rows = append(t.Rows, []string{k, string(rune('0' + i))})
	}
	return t
}

func column(t Table, name string) []string {
	idx := t.Index(name)
	out := make([]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		out = append(out, r[idx])
	}
	return out
}

func TestDeduplicate(t *testing.T) {
	in := keyTable("A", "B", "A", "C", "B")

	out, report, err := Deduplicate(in, "company_name")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, column(out, "company_name"))
	assert.Equal(t, []string{"0", "1", "3"}, column(out, "row"), "first occurrence survives")
	assert.Equal(t, Report{Stage: "deduplicate:company_name", Input: 5, Output: 3, Removed: 2}, report)

	again, report2, err := Deduplicate(out, "company_name")
	require.NoError(t, err)
	assert.Equal(t, out, again, "idempotent")
	assert.Equal(t, 0, report2.Removed)
}

func TestDeduplicate_EmptyKeys(t *testing.T) {
	out, report, err := Deduplicate(keyTable("", "A", ""), "company_name")
	require.NoError(t, err)
	assert.Equal(t, []string{"", "A"}, column(out, "company_name"))
	assert.Equal(t, 1, report.Removed)
}

func TestFilter(t *testing.T) {
	in := Table{Headers: []string{"seller_country"}}
	for _, c := range []string{"JP", "US", "JP", "JP", "DE"} {
		in.Rows = append(in.Rows, []string{c})
	}

	out, report, err := Filter(in, "seller_country", "JP")
	require.NoError(t, err)
	assert.Equal(t, []string{"JP", "JP", "JP"}, column(out, "seller_country"))
	assert.Equal(t, 5, report.Input)
	assert.Equal(t, 3, report.Output)
	assert.Equal(t, 2, report.Removed)

	none, report, err := Filter(in, "seller_country", "jp")
	require.NoError(t, err)
	assert.Empty(t, none.Rows, "match is exact")
	assert.Equal(t, 5, report.Removed)
}

func TestUnknownColumn(t *testing.T) {
	_, _, err := Deduplicate(keyTable("A"), "会社名")
	assert.ErrorIs(t, err, ErrUnknownColumn)

	_, _, err = Filter(keyTable("A"), "セラー所在地", "JP")
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestClean(t *testing.T) {
	in := Table{
		Headers: []string{"company_name", "seller_country"},
		Rows: [][]string{
			{"A", "JP"}, {"B", "US"}, {"A", "JP"}, {"C", "JP"}, {"D", "DE"},
		},
	}

	out, reports, err := Clean(in, CleanOptions{KeyColumn: "company_name", FilterColumn: "seller_country", FilterValue: "JP"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, column(out, "company_name"))
	require.Len(t, reports, 2)
	assert.Equal(t, 1, reports[0].Removed)
	assert.Equal(t, 2, reports[1].Removed)

	untouched, reports, err := Clean(in, CleanOptions{})
	require.NoError(t, err)
	assert.Equal(t, in, untouched)
	assert.Empty(t, reports)
}

func TestCleanFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "sellers.csv")
	out := DerivedPath(in, "cleaned")
	assert.Equal(t, filepath.Join(dir, "sellers_cleaned.csv"), out)

	src := keyTable("A", "B", "A")
	require.NoError(t, WriteCSV(in, src))
	before, err := os.ReadFile(in)
	require.NoError(t, err)

	reports, err := CleanFile(in, out, CleanOptions{KeyColumn: "company_name"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 1, reports[0].Removed)

	cleaned, err := LoadCSV(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, column(cleaned, "company_name"))

	after, err := os.ReadFile(in)
	require.NoError(t, err)
	assert.Equal(t, before, after, "input untouched")

	_, err = CleanFile(in, filepath.Join(dir, ".", "sellers.csv"), CleanOptions{})
	assert.ErrorIs(t, err, ErrSameFile)
}
