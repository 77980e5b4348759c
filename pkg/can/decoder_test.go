package can

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ecan "go.einride.tech/can"

	"github.com/BIwashi/candbc/pkg/dbc"
)

func testDatabase(t *testing.T) *dbc.Database {
	t.Helper()
	b := dbc.NewBuilder()

	speed := dbc.NewSignal("Speed", 0, 16, dbc.Intel)
	speed.Scale = 0.01
	speed.Unit = "km/h"
	temp := dbc.NewSignal("Temp", 16, 8, dbc.Intel)
	temp.Signed = true
	temp.Offset = -40
	temp.Min, temp.Max = dbc.Bound(-40), dbc.Bound(87)
	require.NoError(t, b.AddMessage(&dbc.Message{ID: 0x123, Name: "Engine", Length: 8, Signals: []*dbc.Signal{speed, temp}}))

	mode := dbc.NewSignal("Mode", 0, 8, dbc.Intel)
	mode.Mux = dbc.Selector
	mode.ValueDescriptions = []dbc.ValueDescription{{Value: 1, Description: "First"}, {Value: 2, Description: "Second"}}
	a := dbc.NewSignal("A", 8, 16, dbc.Intel)
	a.Mux = dbc.Multiplexed(1)
	bSig := dbc.NewSignal("B", 8, 8, dbc.Intel)
	bSig.Mux = dbc.Multiplexed(2)
	counter := dbc.NewSignal("Counter", 56, 8, dbc.Intel)
	require.NoError(t, b.AddMessage(&dbc.Message{ID: 0x18FF0000, Extended: true, Name: "Diag", Length: 8, Signals: []*dbc.Signal{mode, a, bSig, counter}}))

	return b.Build()
}

func TestDecodeUnknownFrame(t *testing.T) {
	db := testDatabase(t)
	got, err := Decode(db, 0xDEAD, false, make([]byte, 8))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	// the extended flag is part of the lookup key
	got, err = Decode(db, 0x18FF0000, false, make([]byte, 8))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeMessage(t *testing.T) {
	db := testDatabase(t)
	got, err := Decode(db, 0x123, false, []byte{0x10, 0x27, 0x7F, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Speed": 100, "Temp": 87}, got)
}

func TestDecodeMultiplexed(t *testing.T) {
	db := testDatabase(t)

	got, err := Decode(db, 0x18FF0000, true, []byte{1, 0x34, 0x12, 0, 0, 0, 0, 9})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Mode": 1, "A": 0x1234, "Counter": 9}, got)

	got, err = Decode(db, 0x18FF0000, true, []byte{2, 0x34, 0x12, 0, 0, 0, 0, 9})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Mode": 2, "B": 0x34, "Counter": 9}, got)

	got, err = Decode(db, 0x18FF0000, true, []byte{7, 0, 0, 0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"Mode": 7, "Counter": 0}, got)
}

func TestDecodeShortPayload(t *testing.T) {
	db := testDatabase(t)
	_, err := Decode(db, 0x123, false, []byte{0x10, 0x27})
	assert.True(t, errors.Is(err, ErrDecode))

	_, err = Decode(db, 0x18FF0000, true, nil)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestDecoderDecodeFrame(t *testing.T) {
	db := testDatabase(t)
	d := NewDecoder(db)
	ts := time.Unix(1700000000, 5)

	frame := &TimedFrame{
		Frame: ecan.Frame{
			ID:         0x18FF0000,
			IsExtended: true,
			Length:     8,
			Data:       ecan.Data{2, 0xAB, 0, 0, 0, 0, 0, 3},
		},
		Timestamp: ts,
	}
	msg, err := d.DecodeFrame(frame)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "Diag", msg.MessageName)
	assert.Equal(t, uint32(0x18FF0000), msg.MessageID)
	assert.True(t, msg.Extended)
	assert.Equal(t, ts, msg.Timestamp)
	assert.Equal(t, []string{"Mode", "B", "Counter"}, msg.Order)
	assert.Equal(t, []byte{2, 0xAB, 0, 0, 0, 0, 0, 3}, msg.RawData)

	mode := msg.Signals["Mode"]
	assert.Equal(t, int64(2), mode.RawValue)
	assert.Equal(t, "Second", mode.Description)
	assert.Equal(t, 171.0, msg.Signals["B"].PhysicalValue)
}

func TestDecoderRangeFlag(t *testing.T) {
	d := NewDecoder(testDatabase(t))
	msg, err := d.DecodeFrame(&TimedFrame{Frame: ecan.Frame{ID: 0x123, Length: 8, Data: ecan.Data{0, 0, 0x80}}})
	require.NoError(t, err)
	require.NotNil(t, msg)

	temp := msg.Signals["Temp"]
	assert.Equal(t, -168.0, temp.PhysicalValue)
	assert.False(t, temp.InRange)
	assert.True(t, msg.Signals["Speed"].InRange)
}

func TestDecoderSkipsUnknownAndRemote(t *testing.T) {
	d := NewDecoder(testDatabase(t))

	msg, err := d.DecodeFrame(&TimedFrame{Frame: ecan.Frame{ID: 0x7FF, Length: 8}})
	assert.NoError(t, err)
	assert.Nil(t, msg)

	msg, err = d.DecodeFrame(&TimedFrame{Frame: ecan.Frame{ID: 0x123, IsRemote: true}})
	assert.NoError(t, err)
	assert.Nil(t, msg)

	_, err = d.DecodeFrame(&TimedFrame{Frame: ecan.Frame{ID: 0x123, Length: 2}})
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestFormatSignalValue(t *testing.T) {
	assert.Equal(t, "0", FormatSignalValue(0, ""))
	assert.Equal(t, "12.50 km/h", FormatSignalValue(12.5, "km/h"))
	assert.Equal(t, "123.4", FormatSignalValue(123.4, ""))
	assert.Equal(t, "1.500e+03 rpm", FormatSignalValue(1500, "rpm"))
}
