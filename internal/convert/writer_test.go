package convert

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a3tai/protocol2bids/internal/resolve"
)

func TestOutputPaths(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		output string
		n      int
		want   []string
	}{
		{"next to input", "scans/mprage.pdf", "", 1, []string{"scans/mprage.json"}},
		{"explicit file", "in.pdf", "out/sub-01_T1w.json", 1, []string{"out/sub-01_T1w.json"}},
		{"directory", "in.pdf", "out", 1, []string{filepath.Join("out", "protocol.json")}},
		{"numbered", "in.pdf", "out/run.json", 3, []string{"out/run1.json", "out/run2.json", "out/run3.json"}},
		{"numbered in directory", "in.pdf", "out", 2, []string{
			filepath.Join("out", "protocol1.json"),
			filepath.Join("out", "protocol2.json"),
		}},
		{"nothing to write", "in.pdf", "", 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutputPaths(tt.input, tt.output, tt.n))
		})
	}
}

func TestWriteSidecars(t *testing.T) {
	dir := t.TempDir()
	first := resolve.NewSidecar()
	first.Set("Manufacturer", "Siemens")
	first.Set("EchoTime", 0.0035)
	second := resolve.NewSidecar()
	second.Set("ScanOptions", []any{})

	paths := OutputPaths("in.pdf", filepath.Join(dir, "nested", "bold.json"), 2)
	require.NoError(t, WriteSidecars(context.Background(), paths, []*resolve.Sidecar{first, second}))

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"Manufacturer\": \"Siemens\",\n    \"EchoTime\": 0.0035\n}\n", string(data))

	data, err = os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "{\n    \"ScanOptions\": []\n}\n", string(data))

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWriteSidecarsErrors(t *testing.T) {
	dir := t.TempDir()
	err := WriteSidecars(context.Background(), []string{filepath.Join(dir, "a.json")}, nil)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = WriteSidecars(ctx, []string{filepath.Join(dir, "b.json")}, []*resolve.Sidecar{resolve.NewSidecar()})
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(dir, "b.json"))
	assert.True(t, os.IsNotExist(statErr))
}
