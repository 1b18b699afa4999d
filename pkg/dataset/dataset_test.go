package dataset_test

import (
	"testing"
	"time"

	"github.com/leapstack-labs/veritab/pkg/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueConversions(t *testing.T) {
	t.Run("numbers", func(t *testing.T) {
		f, ok := dataset.Number(42).AsNumber()
		require.True(t, ok)
		assert.Equal(t, 42.0, f)

		f, ok = dataset.String(" 3.5 ").AsNumber()
		require.True(t, ok)
		assert.Equal(t, 3.5, f)

		_, ok = dataset.String("abc").AsNumber()
		assert.False(t, ok)

		_, ok = dataset.Missing.AsNumber()
		assert.False(t, ok)
	})

	t.Run("dates", func(t *testing.T) {
		want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

		d, ok := dataset.String("2024-01-15").AsDate()
		require.True(t, ok)
		assert.Equal(t, want, d)

		d, ok = dataset.String("01/15/2024").AsDate()
		require.True(t, ok, "locale convention MM/DD/YYYY must parse")
		assert.Equal(t, want, d)

		_, ok = dataset.String("not a date").AsDate()
		assert.False(t, ok)
	})

	t.Run("strings", func(t *testing.T) {
		assert.Equal(t, "", dataset.Missing.AsString())
		assert.Equal(t, "42", dataset.Number(42).AsString())
		assert.Equal(t, "42.5", dataset.Number(42.5).AsString())
		assert.Equal(t, "TRUE", dataset.Bool(true).AsString())
		assert.Equal(t, "2024-01-15", dataset.Date(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)).AsString())
	})
}

func TestDatasetLookup(t *testing.T) {
	ds, err := dataset.New(
		dataset.Column{Name: "Amount", Values: []dataset.Value{dataset.Number(1), dataset.Number(2)}},
		dataset.Column{Name: "amount", Values: []dataset.Value{dataset.String("x"), dataset.String("y")}},
	)
	require.NoError(t, err)

	assert.Equal(t, 2, ds.Len())

	// Lookups are case-sensitive: Amount and amount are distinct.
	col, ok := ds.Column("Amount")
	require.True(t, ok)
	assert.Equal(t, dataset.KindNumber, col.Kind())

	col, ok = ds.Column("amount")
	require.True(t, ok)
	assert.Equal(t, dataset.KindString, col.Kind())

	_, ok = ds.Column("AMOUNT")
	assert.False(t, ok)
}

func TestDatasetInvariants(t *testing.T) {
	_, err := dataset.New(
		dataset.Column{Name: "a", Values: []dataset.Value{dataset.Number(1)}},
		dataset.Column{Name: "a", Values: []dataset.Value{dataset.Number(2)}},
	)
	assert.ErrorContains(t, err, "duplicate column")

	_, err = dataset.New(
		dataset.Column{Name: "a", Values: []dataset.Value{dataset.Number(1)}},
		dataset.Column{Name: "b", Values: []dataset.Value{dataset.Number(1), dataset.Number(2)}},
	)
	assert.ErrorContains(t, err, "expected 1")
}

func TestColumnKind(t *testing.T) {
	col := dataset.Column{Name: "mixed", Values: []dataset.Value{
		dataset.Number(1), dataset.Number(2), dataset.String("x"), dataset.Missing,
	}}
	assert.Equal(t, dataset.KindNumber, col.Kind())

	empty := dataset.Column{Name: "empty", Values: []dataset.Value{dataset.Missing, dataset.Missing}}
	assert.Equal(t, dataset.KindMissing, empty.Kind())
}
