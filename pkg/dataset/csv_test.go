package dataset_test

import (
	"strings"
	"testing"

	"github.com/leapstack-labs/veritab/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	input := strings.Join([]string{
		"Name,Amount,Approved,Submit Date,Note",
		"Alice,100,true,2024-01-01,hello",
		"Bob,,false,01/02/2024,",
		",2.5,TRUE,,world",
	}, "\n")

	ds, err := dataset.Read(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, []string{"Name", "Amount", "Approved", "Submit Date", "Note"}, ds.Columns())

	amount, ok := ds.Column("Amount")
	require.True(t, ok)
	assert.Equal(t, dataset.KindNumber, amount.Values[0].Kind)
	assert.True(t, amount.Values[1].IsMissing(), "empty cells are missing")
	assert.Equal(t, 2.5, amount.Values[2].Num)

	approved, ok := ds.Column("Approved")
	require.True(t, ok)
	assert.Equal(t, dataset.KindBool, approved.Values[0].Kind)
	assert.True(t, approved.Values[2].B)

	dates, ok := ds.Column("Submit Date")
	require.True(t, ok)
	assert.Equal(t, dataset.KindDate, dates.Values[0].Kind)
	assert.Equal(t, dataset.KindDate, dates.Values[1].Kind, "MM/DD/YYYY dates are recognised")
	assert.True(t, dates.Values[2].IsMissing())

	names, ok := ds.Column("Name")
	require.True(t, ok)
	assert.True(t, names.Values[2].IsMissing())
}

func TestReadCSVEmpty(t *testing.T) {
	_, err := dataset.Read(strings.NewReader(""))
	assert.ErrorContains(t, err, "missing header")

	// Header only: zero-row dataset, not an error
	ds, err := dataset.Read(strings.NewReader("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
}
