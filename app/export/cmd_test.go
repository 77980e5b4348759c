package export

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BIwashi/candbc/pkg/cli"
	"github.com/BIwashi/candbc/pkg/config"
	"github.com/BIwashi/candbc/pkg/table"
)

const vehicleDBC = `BO_ 291 Engine: 8 ECU
 SG_ Speed : 0|16@1+ (0.1,0) [0|250] "km/h" Vector__XXX
 SG_ Gear : 16|8@1+ (1,0) [0|0] "" Vector__XXX
BO_ 292 Idle: 0 ECU
`

func TestResolve(t *testing.T) {
	cfg := config.Default()
	cfg.Table.Format = "xlsx"
	input := cli.Input{Config: cfg}

	for _, tc := range []struct {
		name       string
		s          exporter
		wantFormat table.Format
		wantOutput string
	}{
		{"flag", exporter{dbcFile: "v.dbc", outputFile: "o.csv", format: "xlsx"}, table.FormatXLSX, "o.csv"},
		{"extension", exporter{dbcFile: "v.dbc", outputFile: "o.csv"}, table.FormatCSV, "o.csv"},
		{"config", exporter{dbcFile: "v.dbc", outputFile: "o.txt"}, table.FormatXLSX, "o.txt"},
		{"derived", exporter{dbcFile: filepath.Join("d", "v.dbc")}, table.FormatXLSX, filepath.Join("d", "v.xlsx")},
		{"derived from table", exporter{dbcFile: filepath.Join("d", "v.xlsx")}, table.FormatXLSX, filepath.Join("d", "v_rows.xlsx")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f, out, err := tc.s.resolve(input)
			require.NoError(t, err)
			assert.Equal(t, tc.wantFormat, f)
			assert.Equal(t, tc.wantOutput, out)
		})
	}
}

func TestResolveRefusesOverwrite(t *testing.T) {
	input := cli.Input{Config: config.Default()}
	s := exporter{dbcFile: filepath.Join("d", "sig.csv"), outputFile: filepath.Join("d", ".", "sig.csv")}
	_, _, err := s.resolve(input)
	assert.Error(t, err)
}

func TestCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "vehicle.dbc")
	require.NoError(t, os.WriteFile(in, []byte(vehicleDBC), 0o644))

	for _, out := range []string{"vehicle.csv", "vehicle.xlsx"} {
		path := filepath.Join(dir, out)
		cmd := NewCommand()
		cmd.SetErr(io.Discard)
		cmd.SetArgs([]string{"--dbc-file", in, "--output", path})
		require.NoError(t, cmd.Execute())

		rows, issues, err := table.ReadFile(path, "")
		require.NoError(t, err)
		assert.Empty(t, issues)
		require.Len(t, rows, 3)
		assert.Equal(t, "Speed", rows[0].SigName)
		assert.Equal(t, "Idle", rows[2].MsgName)
		assert.Empty(t, rows[2].SigName)
	}
}
