package jsonl

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BIwashi/candbc/pkg/can"
)

func engine() *can.DecodedMessage {
	return &can.DecodedMessage{
		MessageName: "Engine",
		MessageID:   0x123,
		RawData:     []byte{0x0A, 0xFF},
		Timestamp:   time.Unix(0, 42),
		Signals: map[string]can.SignalValue{
			"Speed": {Name: "Speed", RawValue: 10, PhysicalValue: 1, Unit: "km/h", InRange: true},
			"Gear":  {Name: "Gear", RawValue: 2, PhysicalValue: 2, Description: "D"},
		},
		Order: []string{"Speed", "Gear"},
	}
}

func TestWriteAndRead(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteMessage(engine()))
	require.NoError(t, w.WriteMessage(engine()))
	require.Error(t, w.WriteMessage(nil))
	require.NoError(t, w.Close())

	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))

	recs, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	rec := recs[0]
	assert.Equal(t, int64(42), rec.TimeStamp)
	assert.Equal(t, "Engine", rec.Message)
	assert.Equal(t, "0x123", rec.ID)
	assert.Equal(t, "0A FF", rec.Raw)
	require.Len(t, rec.Signals, 2)
	assert.Equal(t, "Speed", rec.Signals[0].Name)
	assert.Equal(t, "km/h", rec.Signals[0].Unit)
	assert.True(t, rec.Signals[0].InRange)
	assert.Equal(t, "Gear", rec.Signals[1].Name)
	assert.Equal(t, "D", rec.Signals[1].Description)
}

func TestReadAllBadLine(t *testing.T) {
	_, err := ReadAll(strings.NewReader("{\"message\":\"a\"}\n\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}
