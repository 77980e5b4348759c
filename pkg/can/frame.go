package can

import (
	"time"

	ecan "go.einride.tech/can"

	"github.com/BIwashi/candbc/pkg/dbc"
)

// TimedFrame wraps einride can.Frame to add capture timestamp information.
// Embedding keeps field access (ID, Length, Data, IsExtended, IsRemote, ...) identical.
type TimedFrame struct {
	ecan.Frame
	// Timestamp is the capture time reported by the source (pcapng block
	// timestamp for recorded traffic).
	Timestamp time.Time
}

// Payload returns the first Length bytes of Data.
func (f *TimedFrame) Payload() []byte {
	n := int(f.Length)
	if n > len(f.Data) {
		n = len(f.Data)
	}
	return f.Data[:n]
}

// Key returns the database lookup key of the frame.
func (f *TimedFrame) Key() uint32 {
	return dbc.Key(f.ID, f.IsExtended)
}
