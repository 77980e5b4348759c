package dbc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRoundTrip(t *testing.T) {
	db, issues := parseFixture(t, fixtureDBC)
	require.Empty(t, issues)

	text := Generate(db, GenerateOptions{})
	again, issues := parseFixture(t, string(text))
	require.Empty(t, issues, string(text))

	assert.Equal(t, db.Version(), again.Version())
	assert.Equal(t, db.Nodes(), again.Nodes())
	assert.Equal(t, db.Messages(), again.Messages())
}

func TestGenerateDeterministic(t *testing.T) {
	db, _ := parseFixture(t, fixtureDBC)
	first := Generate(db, GenerateOptions{})
	assert.Equal(t, first, Generate(db, GenerateOptions{}))

	again, _ := parseFixture(t, string(first))
	assert.Equal(t, string(first), string(Generate(again, GenerateOptions{})))
}

func TestGenerateLayout(t *testing.T) {
	db, _ := parseFixture(t, fixtureDBC)
	text := string(Generate(db, GenerateOptions{}))

	assert.True(t, strings.HasPrefix(text, "VERSION \"1.0\"\n"))
	assert.Contains(t, text, "\nNS_ :\n\tNS_DESC_\n")
	assert.Contains(t, text, "\nBS_:\n")
	assert.Contains(t, text, "\nBU_: ECU1 ECU2\n")
	assert.Contains(t, text, "BO_ 291 Engine: 8 ECU1\n")
	assert.Contains(t, text, "BO_ 2566848512 Diag: 8 ECU2\n")
	assert.Contains(t, text, ` SG_ Speed : 0|16@1+ (0.01,0) [0|655.35] "km/h" ECU2`+"\n")
	assert.Contains(t, text, ` SG_ Temp : 16|8@1- (1,-40) [-40|87] "degC" Vector__XXX`+"\n")
	assert.Contains(t, text, ` SG_ Rpm : 39|16@0+ (0.25,0) [0|0] "rpm" ECU2,ECU1`+"\n")
	assert.Contains(t, text, ` SG_ Mode M : 0|8@1+ (1,0) [0|3] "" ECU1`+"\n")
	assert.Contains(t, text, ` SG_ A m1 : 8|16@1+ (1,0) [0|0] "" ECU1`+"\n")
	assert.Contains(t, text, `CM_ SG_ 291 Speed "Vehicle \"ground\" speed";`)
	assert.Contains(t, text, `VAL_ 2566848512 Mode 1 "First" 2 "Second" ;`)

	// Value tables follow every message block.
	assert.Greater(t, strings.Index(text, "VAL_ 2566848512"), strings.LastIndex(text, "BO_ "))
}

func TestGenerateHalfRange(t *testing.T) {
	s := NewSignal("Half", 0, 8, Intel)
	s.Max = Bound(100)
	b := NewBuilder()
	require.NoError(t, b.AddMessage(&Message{ID: 1, Name: "M", Length: 8, Signals: []*Signal{s}}))

	text := string(Generate(b.Build(), GenerateOptions{}))
	assert.Contains(t, text, "[0|100]")
}

func TestGenerateSanitizesNames(t *testing.T) {
	assert.Equal(t, "Engine_Speed_1", Sanitize("Engine Speed-1"))
	assert.Equal(t, "ok_Name9", Sanitize("ok_Name9"))

	b := NewBuilder().AddNode("Gate way")
	s := NewSignal("wheel.speed", 0, 8, Intel)
	s.Receivers = []string{"Gate way"}
	require.NoError(t, b.AddMessage(&Message{ID: 1, Name: "Bad Name", Length: 8, Transmitter: "Gate way", Signals: []*Signal{s}}))

	text := string(Generate(b.Build(), GenerateOptions{}))
	assert.Contains(t, text, "BU_: Gate_way\n")
	assert.Contains(t, text, "BO_ 1 Bad_Name: 8 Gate_way\n")
	assert.Contains(t, text, ` SG_ wheel_speed : 0|8@1+ (1,0) [0|0] "" Gate_way`)
}

func TestGenerateDefaultNode(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddMessage(&Message{ID: 1, Name: "M", Length: 8, Signals: []*Signal{NewSignal("S", 0, 8, Intel)}}))
	db := b.Build()

	assert.Contains(t, string(Generate(db, GenerateOptions{})), "BO_ 1 M: 8 Vector__XXX\n")
	text := string(Generate(db, GenerateOptions{DefaultNode: "GW"}))
	assert.Contains(t, text, "BO_ 1 M: 8 GW\n")
	assert.Contains(t, text, `"" GW`)
}

func TestGenerateSignalOrder(t *testing.T) {
	sel := NewSignal("Sel", 0, 8, Intel)
	sel.Mux = Selector
	z := NewSignal("Z", 16, 8, Intel)
	z.Mux = Multiplexed(2)
	a := NewSignal("A", 24, 8, Intel)
	y := NewSignal("Y", 8, 8, Intel)
	y.Mux = Multiplexed(1)
	b := NewBuilder()
	require.NoError(t, b.AddMessage(&Message{ID: 1, Name: "M", Length: 8, Signals: []*Signal{z, a, y, sel}}))
	db := b.Build()

	names := func(order SignalOrder) []string {
		var out []string
		for _, line := range strings.Split(string(Generate(db, GenerateOptions{SignalOrder: order})), "\n") {
			if f := strings.Fields(line); len(f) > 1 && f[0] == "SG_" {
				out = append(out, f[1])
			}
		}
		return out
	}
	assert.Equal(t, []string{"Z", "A", "Y", "Sel"}, names(OrderDeclared))
	assert.Equal(t, []string{"Sel", "A", "Y", "Z"}, names(OrderStartBit))
	assert.Equal(t, []string{"A", "Sel", "Y", "Z"}, names(OrderName))
}

func TestParseSignalOrder(t *testing.T) {
	for in, want := range map[string]SignalOrder{
		"":          OrderDeclared,
		"declared":  OrderDeclared,
		"start_bit": OrderStartBit,
		"Name":      OrderName,
	} {
		got, err := ParseSignalOrder(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSignalOrder("random")
	assert.Error(t, err)
}

func TestWriteFile(t *testing.T) {
	db, _ := parseFixture(t, fixtureDBC)
	path := filepath.Join(t.TempDir(), "out", "bus.dbc")
	require.NoError(t, WriteFile(path, db, GenerateOptions{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Generate(db, GenerateOptions{}), data)

	assert.Error(t, WriteFile("", db, GenerateOptions{}))
}
