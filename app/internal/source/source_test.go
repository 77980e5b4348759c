package source

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BIwashi/candbc/pkg/dbc"
	"github.com/BIwashi/candbc/pkg/table"
)

const sample = `VERSION ""

BU_: ECU

BO_ 291 Engine: 8 ECU
 SG_ Speed : 0|16@1+ (0.1,0) [0|6553.5] "km/h" Vector__XXX
 SG_ Overlap : 8|8@1+ (1,0) [0|0] "" Vector__XXX
BO_ oops
`

func TestLoadDBC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.dbc")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	var logs bytes.Buffer
	db, err := Load(path, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	assert.Equal(t, 1, db.Len())
	assert.Contains(t, logs.String(), "skipped input line")
}

func TestLoadRows(t *testing.T) {
	db := dbc.NewParser("in", []byte(sample)).Parse()
	path := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, table.WriteFile(path, "", table.FromDatabase(db)))

	got, err := Load(path, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	require.NoError(t, err)
	m, ok := got.Lookup(0x123, false)
	require.True(t, ok)
	assert.Len(t, m.Signals, 2)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.dbc"), slog.Default())
	require.Error(t, err)
	assert.True(t, errors.Is(err, dbc.ErrFileNotFound))
}

func TestLogConflicts(t *testing.T) {
	db := dbc.NewParser("in", []byte(sample)).Parse()
	var logs bytes.Buffer
	LogConflicts(slog.New(slog.NewTextHandler(&logs, nil)), dbc.CheckOverlaps(db))
	assert.Contains(t, logs.String(), "signal=Overlap")
	assert.Contains(t, logs.String(), "can_id=0x123")
}

func TestDerivedPath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "car_clean.dbc"), DerivedPath(filepath.Join("a", "car.dbc"), "", "_clean", ".dbc"))
	assert.Equal(t, filepath.Join("out", "car.csv"), DerivedPath("car.dbc", "out", "", ".csv"))
}

func TestIsTable(t *testing.T) {
	assert.True(t, IsTable("a.CSV"))
	assert.True(t, IsTable("a.xlsx"))
	assert.False(t, IsTable("a.dbc"))
}
