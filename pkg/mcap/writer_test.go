package mcap

import (
	"bytes"
	"testing"
	"time"

	"github.com/foxglove/mcap/go/mcap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BIwashi/candbc/pkg/can"
)

func decoded(name string, id uint32, ext bool, speed float64) *can.DecodedMessage {
	return &can.DecodedMessage{
		MessageName: name,
		MessageID:   id,
		Extended:    ext,
		RawData:     []byte{0x01, 0x02},
		Timestamp:   time.Unix(1700000000, 0),
		Signals: map[string]can.SignalValue{
			"Speed": {Name: "Speed", RawValue: 50, PhysicalValue: speed, Unit: "km/h", InRange: true},
		},
		Order: []string{"Speed"},
	}
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "candbc-test")
	require.NoError(t, err)

	require.NoError(t, w.WriteMessage(decoded("Engine", 0x123, false, 12.5)))
	require.NoError(t, w.WriteMessage(decoded("Engine", 0x123, false, 13)))
	require.NoError(t, w.WriteMessage(decoded("Diag", 0x18FF0000, true, 1)))
	require.Error(t, w.WriteMessage(nil))
	require.NoError(t, w.Close())

	r, err := mcap.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	info, err := r.Info()
	require.NoError(t, err)

	assert.Equal(t, uint64(3), info.Statistics.MessageCount)
	require.Len(t, info.Channels, 2)
	topics := make(map[string]map[string]string)
	for _, ch := range info.Channels {
		topics[ch.Topic] = ch.Metadata
	}
	require.Contains(t, topics, "/can/Engine")
	require.Contains(t, topics, "/can/Diag")
	assert.Equal(t, "0x123", topics["/can/Engine"]["can_id"])
	assert.Equal(t, "true", topics["/can/Diag"]["is_extended"])

	require.Len(t, info.Schemas, 1)
	for _, s := range info.Schemas {
		assert.Equal(t, SchemaName, s.Name)
		assert.Equal(t, "protobuf", s.Encoding)
	}
}

func TestBody(t *testing.T) {
	s, err := Body(decoded("Engine", 0x123, false, 12.5))
	require.NoError(t, err)

	m := s.AsMap()
	assert.Equal(t, float64(0x123), m["can_id"])
	assert.Equal(t, false, m["extended"])
	assert.Equal(t, []any{float64(1), float64(2)}, m["data"])

	signals, ok := m["signals"].(map[string]any)
	require.True(t, ok)
	speed, ok := signals["Speed"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 12.5, speed["value"])
	assert.Equal(t, float64(50), speed["raw"])
	assert.Equal(t, "km/h", speed["unit"])
	assert.Equal(t, true, speed["in_range"])
	assert.NotContains(t, speed, "description")
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "/can/Engine", Topic("Engine"))
}

func TestWriterSeparatesFrameTypes(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "candbc-test")
	require.NoError(t, err)
	require.NoError(t, w.WriteMessage(decoded("Std", 0x123, false, 1)))
	require.NoError(t, w.WriteMessage(decoded("Ext", 0x123, true, 1)))
	require.NoError(t, w.WriteMessage(decoded("Std", 0x123, false, 2)))
	require.NoError(t, w.Close())

	r, err := mcap.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	info, err := r.Info()
	require.NoError(t, err)
	require.Len(t, info.Channels, 2)
	topics := make([]string, 0, 2)
	for _, ch := range info.Channels {
		topics = append(topics, ch.Topic)
	}
	assert.ElementsMatch(t, []string{"/can/Std", "/can/Ext"}, topics)
}
