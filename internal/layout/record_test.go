package layout

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/a3tai/protocol2bids/internal/errors"
)

func sampleRecord() *Record {
	r := NewRecord()
	snr := 1.0
	r.Header = &Header{
		Path:         `\\USER\head\t1`,
		TA:           "05:12",
		PAT:          "2",
		VoxelSize:    []float64{1, 1, 1},
		RelSNR:       &snr,
		SequenceName: "tfl",
	}
	routine := r.SetDefaultSection("Routine")
	routine.SetDefault("TE").Value = Text("3.5 ms")
	routine.SetDefault("TR")
	group := routine.SetDefaultGroup("Slice group 1")
	group.SetDefault("Slices").Value = Text("176")
	return r
}

func TestRecordLookup(t *testing.T) {
	r := sampleRecord()

	tests := []struct {
		name    string
		path    string
		want    any
		wantErr error
	}{
		{"section key", "Routine//TE", "3.5 ms", nil},
		{"group key", "Routine//Slice group 1//Slices", "176", nil},
		{"header string", "Header//TA", "05:12", nil},
		{"header PAT as int", "Header//PAT", 2, nil},
		{"header voxel size", "Header//Voxel size", []float64{1, 1, 1}, nil},
		{"header SNR", "Header//Rel. SNR", 1.0, nil},
		{"header unset field", "Header//PM", nil, perrors.ErrNotFound},
		{"pending value", "Routine//TR", nil, perrors.ErrValuePending},
		{"group is not a value", "Routine//Slice group 1", nil, perrors.ErrNotFound},
		{"missing section", "Contrast//TI", nil, perrors.ErrNotFound},
		{"missing key", "Routine//TI", nil, perrors.ErrNotFound},
		{"key is not a group", "Routine//TE//x", nil, perrors.ErrNotFound},
		{"bare section", "Routine", nil, perrors.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Lookup(tt.path)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, stderrors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeaderPATOff(t *testing.T) {
	h := &Header{PAT: "Off"}
	v, ok := h.Field("PAT")
	require.True(t, ok)
	assert.Equal(t, "Off", v)
}

func TestFieldsDeleteKeepsOrder(t *testing.T) {
	f := NewFields()
	for _, name := range []string{"a", "b", "c", "d"} {
		f.SetDefault(name)
	}
	f.Delete("b")
	f.Delete("missing")
	assert.Equal(t, []string{"a", "c", "d"}, f.Names())

	e, ok := f.Get("d")
	require.True(t, ok)
	assert.Equal(t, "d", e.Name)

	f.SetDefault("b")
	assert.Equal(t, []string{"a", "c", "d", "b"}, f.Names())
}

func TestSetDefaultGroupConvertsPendingKey(t *testing.T) {
	f := NewFields()
	f.SetDefault("first")
	f.SetDefault("Slice group 1")
	f.SetDefault("last")

	g := f.SetDefaultGroup("Slice group 1")
	g.SetDefault("Slices")

	assert.Equal(t, []string{"first", "Slice group 1", "last"}, f.Names())
	e, _ := f.Get("Slice group 1")
	assert.True(t, e.IsGroup())
	assert.Same(t, g, f.SetDefaultGroup("Slice group 1"))
}

func TestRecordMerge(t *testing.T) {
	a := NewRecord()
	a.SetDefaultSection("Routine").SetDefault("TE").Value = Text("3.5 ms")
	a.SetDefaultSection("Routine").SetDefaultGroup("Slice group 1").SetDefault("Slices").Value = Text("10")

	b := NewRecord()
	b.Header = &Header{Path: `\\USER\x`}
	b.SetDefaultSection("Routine").SetDefaultGroup("Slice group 1").SetDefault("Dist. factor").Value = Text("20 %")
	b.SetDefaultSection("Contrast").SetDefault("TI").Value = Text("900 ms")

	a.Merge(b)

	assert.Equal(t, `\\USER\x`, a.Header.Path)
	assert.Equal(t, []string{"Routine", "Contrast"}, a.Sections())
	v, err := a.Lookup("Routine//Slice group 1//Slices")
	require.NoError(t, err)
	assert.Equal(t, "10", v)
	v, err = a.Lookup("Routine//Slice group 1//Dist. factor")
	require.NoError(t, err)
	assert.Equal(t, "20 %", v)
}

func TestRecordTree(t *testing.T) {
	tree := sampleRecord().Tree()
	routine, ok := tree["Routine"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "3.5 ms", routine["TE"])
	assert.Nil(t, routine["TR"])
	assert.Equal(t, map[string]any{"Slices": "176"}, routine["Slice group 1"])
	assert.NotNil(t, tree[HeaderSection])
}
