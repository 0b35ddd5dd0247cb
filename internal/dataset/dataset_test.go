package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestDataset(t *testing.T) *Dataset {
	t.Helper()
	d := New("icd10_code", "age", "sex")
	require.NoError(t, d.AppendRow([]Value{Str("A00"), Num(34), Str("male")}))
	require.NoError(t, d.AppendRow([]Value{Str("B20"), Num(51), Str("female")}))
	require.NoError(t, d.AppendRow([]Value{Str("I21"), NA(), Str("male")}))
	return d
}

func TestDataset_Basics(t *testing.T) {
	t.Parallel()

	d := buildTestDataset(t)
	assert.Equal(t, 3, d.NumRows())
	assert.Equal(t, 3, d.NumCols())
	assert.Equal(t, []string{"icd10_code", "age", "sex"}, d.Columns())
	assert.Equal(t, 1, d.ColumnIndex("age"))
	assert.Equal(t, -1, d.ColumnIndex("nope"))
	assert.True(t, d.HasColumn("sex"))
	assert.False(t, d.HasColumn("region"))
}

func TestDataset_AppendRowLengthMismatch(t *testing.T) {
	t.Parallel()

	d := New("a", "b")
	err := d.AppendRow([]Value{Str("only one")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row has 1 cells, want 2")
}

func TestDataset_ValueAndSet(t *testing.T) {
	t.Parallel()

	d := buildTestDataset(t)

	v, ok := d.Value(0, "icd10_code")
	require.True(t, ok)
	assert.Equal(t, "A00", v.String())

	_, ok = d.Value(0, "missing_col")
	assert.False(t, ok)
	_, ok = d.Value(99, "age")
	assert.False(t, ok)

	d.Set(2, "age", Num(60))
	v, ok = d.Value(2, "age")
	require.True(t, ok)
	f, _ := v.Float()
	assert.InDelta(t, 60, f, 0.0001)

	// unknown column is a no-op
	d.Set(0, "nope", Num(1))
	assert.Equal(t, 3, d.NumCols())
}

func TestDataset_CloneIsDeep(t *testing.T) {
	t.Parallel()

	d := buildTestDataset(t)
	c := d.Clone()
	c.Set(0, "sex", Str("unknown"))
	c.AddColumn("extra", NA())

	v, _ := d.Value(0, "sex")
	assert.Equal(t, "male", v.String())
	assert.False(t, d.HasColumn("extra"))
	assert.True(t, c.HasColumn("extra"))
}

func TestDataset_AddColumn(t *testing.T) {
	t.Parallel()

	d := buildTestDataset(t)
	d.AddColumn("gbd_cause", NA())
	assert.Equal(t, 4, d.NumCols())
	for i := 0; i < d.NumRows(); i++ {
		v, ok := d.Value(i, "gbd_cause")
		require.True(t, ok)
		assert.True(t, v.IsMissing())
	}

	// re-adding resets cells instead of duplicating the column
	d.Set(0, "gbd_cause", Str("Cholera"))
	d.AddColumn("gbd_cause", NA())
	assert.Equal(t, 4, d.NumCols())
	v, _ := d.Value(0, "gbd_cause")
	assert.True(t, v.IsMissing())
}

func TestDataset_RenameColumns(t *testing.T) {
	t.Parallel()

	d := New("ICD10 Code", "Age Group")
	d.RenameColumns(func(s string) string { return s + "!" })
	assert.Equal(t, []string{"ICD10 Code!", "Age Group!"}, d.Columns())
}

func TestDataset_Filter(t *testing.T) {
	t.Parallel()

	d := buildTestDataset(t)
	kept := d.Filter(func(i int) bool {
		v, _ := d.Value(i, "sex")
		return v.String() == "male"
	})
	assert.Equal(t, 2, kept.NumRows())
	assert.Equal(t, 3, d.NumRows())

	v, _ := kept.Value(1, "icd10_code")
	assert.Equal(t, "I21", v.String())
}

func TestDataset_ColumnAndMissingCells(t *testing.T) {
	t.Parallel()

	d := buildTestDataset(t)
	ages := d.Column("age")
	require.Len(t, ages, 3)
	assert.True(t, ages[2].IsMissing())
	assert.Nil(t, d.Column("nope"))
	assert.Equal(t, 1, d.MissingCells())
}
