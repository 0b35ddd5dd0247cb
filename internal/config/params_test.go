package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParams_String(t *testing.T) {
	t.Parallel()

	p := Params{"column": "sex", "count": 3}

	s, err := p.String("column", "def")
	require.NoError(t, err)
	assert.Equal(t, "sex", s)

	s, err = p.String("absent", "def")
	require.NoError(t, err)
	assert.Equal(t, "def", s)

	_, err = p.String("count", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected string")
}

func TestParams_Float(t *testing.T) {
	t.Parallel()

	p := Params{
		"f64":  0.85,
		"int":  150,
		"i64":  int64(7),
		"text": "nope",
	}

	for key, want := range map[string]float64{"f64": 0.85, "int": 150, "i64": 7} {
		got, err := p.Float(key, 0)
		require.NoError(t, err, key)
		assert.InDelta(t, want, got, 0.0001, key)
	}

	got, err := p.Float("absent", 1.5)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, got, 0.0001)

	_, err = p.Float("text", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected number")
}

func TestParams_Bool(t *testing.T) {
	t.Parallel()

	p := Params{"flag": true, "num": 1}

	b, err := p.Bool("flag", false)
	require.NoError(t, err)
	assert.True(t, b)

	b, err = p.Bool("absent", true)
	require.NoError(t, err)
	assert.True(t, b)

	_, err = p.Bool("num", false)
	require.Error(t, err)
}

func TestParams_StringSlice(t *testing.T) {
	t.Parallel()

	p := Params{
		"typed": []string{"a", "b"},
		"any":   []any{"x", "y"},
		"mixed": []any{"x", 2},
		"scal":  "not a list",
	}

	got, err := p.StringSlice("typed")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)

	got, err = p.StringSlice("any")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, got)

	got, err = p.StringSlice("absent")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = p.StringSlice("mixed")
	require.Error(t, err)
	_, err = p.StringSlice("scal")
	require.Error(t, err)
}

func TestParams_StringMap(t *testing.T) {
	t.Parallel()

	p := Params{
		"typed": map[string]string{"m": "male"},
		"any":   map[string]any{"1": "male", "n": 2},
		"scal":  42,
	}

	got, err := p.StringMap("typed")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"m": "male"}, got)

	got, err = p.StringMap("any")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "male", "n": "2"}, got)

	got, err = p.StringMap("absent")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = p.StringMap("scal")
	require.Error(t, err)
}

func TestParams_Has(t *testing.T) {
	t.Parallel()

	p := Params{"min_value": 0}
	assert.True(t, p.Has("min_value"))
	assert.False(t, p.Has("max_value"))
}
