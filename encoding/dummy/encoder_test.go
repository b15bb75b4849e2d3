package dummy

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type celsius float64

func (c celsius) String() string { return "22.5C" }

func TestEncoder(t *testing.T) {
	t.Parallel()
	enc := NewEncoder()

	for _, tc := range []struct {
		in  any
		exp string
	}{
		{in: "2.0.1", exp: "2.0.1"},
		{in: []byte("raw"), exp: "raw"},
		{in: celsius(22.5), exp: "22.5C"},
		{in: errors.New("boom"), exp: "boom"},
		{in: map[string]int{"a": 1}, exp: `{"a":1}`},
		{in: nil, exp: ""},
	} {
		bs, err := enc.Marshal(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.exp, string(bs))
	}

	var s string
	require.NoError(t, enc.Unmarshal([]byte("text"), &s))
	assert.Equal(t, "text", s)

	var m map[string]int
	require.NoError(t, enc.Unmarshal([]byte(`{"b":2}`), &m))
	assert.Equal(t, 2, m["b"])
}
