package normalize

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BIwashi/candbc/pkg/dbc"
)

const messyDBC = `// exported by hand
VERSION "1.0"

BU_: ECU Dash

BO_ 291 Engine: 8 ECU
 SG_ Speed : 0|16@1+ (0.1,0) [0|250] "km/h" Dash
 SG_ Gear : 16|8@1+ (1,0) [0|0] "" Dash
garbage line here
BO_ 2566848512 Diag: 8 ECU
 SG_ Mode M : 0|8@1+ (1,0) [0|0] "" Dash
 SG_ A m1 : 8|8@1+ (1,0) [0|0] "" Dash
 SG_ B m2 : 8|8@1+ (1,0) [0|0] "" Dash

CM_ SG_ 291 Speed "vehicle speed";
`

const overlapDBC = `BO_ 16 Bad: 8 ECU
 SG_ A : 0|8@1+ (1,0) [0|0] "" Vector__XXX
 SG_ B : 4|8@1+ (1,0) [0|0] "" Vector__XXX
`

func write(t *testing.T, dir, name, text string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func execute(args ...string) error {
	cmd := NewCommand()
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestNormalize(t *testing.T) {
	dir := t.TempDir()
	in := write(t, dir, "vehicle.dbc", messyDBC)
	rows := filepath.Join(dir, "rows", "vehicle.csv")

	require.NoError(t, execute("--dbc-file", in, "--rows-file", rows, "--strict"))

	out := filepath.Join(dir, "vehicle_clean.dbc")
	db, issues, err := dbc.ParseFile(out)
	require.NoError(t, err)
	assert.Empty(t, issues)
	assert.Equal(t, 2, db.Len())

	m, ok := db.Lookup(0x18FF0000, true)
	require.True(t, ok)
	assert.Len(t, m.Signals, 3)
	eng, ok := db.MessageByName("Engine")
	require.True(t, ok)
	speed, ok := eng.Signal("Speed")
	require.True(t, ok)
	assert.Equal(t, "vehicle speed", speed.Comment)

	_, err = os.Stat(rows)
	assert.NoError(t, err)

	first, err := os.ReadFile(out)
	require.NoError(t, err)
	again := filepath.Join(dir, "again.dbc")
	require.NoError(t, execute("--dbc-file", out, "--output", again))
	second, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestNormalizeConflicts(t *testing.T) {
	dir := t.TempDir()
	in := write(t, dir, "bad.dbc", overlapDBC)

	require.NoError(t, execute("--dbc-file", in))

	err := execute("--dbc-file", in, "--output", filepath.Join(dir, "x.dbc"), "--fail-on-conflict")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflicts))
	_, statErr := os.Stat(filepath.Join(dir, "x.dbc"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestNormalizeMissingInput(t *testing.T) {
	err := execute("--dbc-file", filepath.Join(t.TempDir(), "none.dbc"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, dbc.ErrFileNotFound))
}
