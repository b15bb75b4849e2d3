package toml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToml(t *testing.T) {
	t.Parallel()

	type Report struct {
		Status string `toml:"status"`
		Report string `toml:"report"`
	}

	enc := NewEncoder()
	bs, err := enc.Marshal(Report{Status: "success", Report: "sunny"})
	require.NoError(t, err)
	assert.Equal(t, "status = \"success\"\nreport = \"sunny\"\n", string(bs))

	bs, err = enc.Marshal(42)
	require.NoError(t, err)
	assert.Equal(t, "result = 42\n", string(bs))

	bs, err = enc.Marshal([]string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "result = [\"a\", \"b\"]\n", string(bs))

	var r Report
	require.NoError(t, enc.Unmarshal([]byte("```toml\nstatus = \"error\"\n```"), &r))
	assert.Equal(t, "error", r.Status)
}
