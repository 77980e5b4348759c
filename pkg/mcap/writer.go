package mcap

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/foxglove/mcap/go/mcap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BIwashi/candbc/pkg/can"
	"github.com/BIwashi/candbc/pkg/dbc"
)

// SchemaName is the protobuf message type of every channel.
const SchemaName = "google.protobuf.Struct"

// Writer writes decoded CAN messages into an MCAP file.
//
// Design decisions:
//   - Single protobuf schema (google.protobuf.Struct) reused by all channels.
//   - Channel granularity = CAN message; topic /can/<MessageName>.
//   - Channel metadata includes: can_id (hex), message, is_extended.
//
// A new channel is created lazily on first occurrence of a message.
type Writer struct {
	mu         sync.Mutex
	writer     *mcap.Writer
	schemaID   uint16
	nextChanID uint16
	channels   map[uint32]uint16 // key: dbc lookup key
	sequence   map[uint16]uint32
}

// NewWriter initializes an MCAP writer with the Struct schema registered.
// The provided io.Writer should be an opened file (will not be closed here).
func NewWriter(out io.Writer, library string) (*Writer, error) {
	w, err := mcap.NewWriter(out, &mcap.WriterOptions{
		Chunked:     true,
		ChunkSize:   2 * 1024 * 1024, // 2MB chunks
		Compression: mcap.CompressionZSTD,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create MCAP writer")
	}

	if err := w.WriteHeader(&mcap.Header{
		Profile: "",
		Library: library,
	}); err != nil {
		return nil, errors.Wrap(err, "write header")
	}

	data, err := schemaData()
	if err != nil {
		return nil, err
	}

	schemaID := uint16(1)
	if err := w.WriteSchema(&mcap.Schema{
		ID:       schemaID,
		Name:     SchemaName,
		Encoding: "protobuf",
		Data:     data,
	}); err != nil {
		return nil, errors.Wrap(err, "write schema")
	}

	return &Writer{
		writer:     w,
		schemaID:   schemaID,
		nextChanID: 0,
		channels:   make(map[uint32]uint16),
		sequence:   make(map[uint16]uint32),
	}, nil
}

// schemaData returns a FileDescriptorSet holding struct.proto.
func schemaData() ([]byte, error) {
	set := &descriptorpb.FileDescriptorSet{
		File: []*descriptorpb.FileDescriptorProto{
			protodesc.ToFileDescriptorProto(structpb.File_google_protobuf_struct_proto),
		},
	}
	data, err := proto.Marshal(set)
	if err != nil {
		return nil, errors.Wrap(err, "marshal schema descriptor")
	}
	return data, nil
}

// Topic returns the channel topic of a message.
func Topic(messageName string) string {
	return "/can/" + messageName
}

// ensureChannel ensures a channel exists for a given message; returns channel ID.
func (w *Writer) ensureChannel(msg *can.DecodedMessage) (uint16, error) {
	key := dbc.Key(msg.MessageID, msg.Extended)
	if id, ok := w.channels[key]; ok {
		return id, nil
	}

	// allocate new channel id
	w.nextChanID++
	chID := w.nextChanID

	topic := Topic(msg.MessageName)
	if err := w.writer.WriteChannel(&mcap.Channel{
		ID:              chID,
		SchemaID:        w.schemaID,
		Topic:           topic,
		MessageEncoding: "protobuf",
		Metadata: map[string]string{
			"can_id":      fmt.Sprintf("0x%X", msg.MessageID),
			"message":     msg.MessageName,
			"is_extended": fmt.Sprintf("%t", msg.Extended),
		},
	}); err != nil {
		return 0, errors.Wrapf(err, "write channel (topic=%s)", topic)
	}

	w.channels[key] = chID
	return chID, nil
}

// Body renders a decoded message as a Struct:
//
//	{can_id, extended, data: [bytes], signals: {name: {value, raw, unit, description, in_range}}}
func Body(msg *can.DecodedMessage) (*structpb.Struct, error) {
	signals := make(map[string]any, len(msg.Signals))
	for name, sv := range msg.Signals {
		fields := map[string]any{
			"value":    sv.PhysicalValue,
			"raw":      sv.RawValue,
			"in_range": sv.InRange,
		}
		if sv.Unit != "" {
			fields["unit"] = sv.Unit
		}
		if sv.Description != "" {
			fields["description"] = sv.Description
		}
		signals[name] = fields
	}
	data := make([]any, len(msg.RawData))
	for i, b := range msg.RawData {
		data[i] = int64(b)
	}
	s, err := structpb.NewStruct(map[string]any{
		"can_id":   int64(msg.MessageID),
		"extended": msg.Extended,
		"data":     data,
		"signals":  signals,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "build struct for %s", msg.MessageName)
	}
	return s, nil
}

// WriteMessage writes one decoded message. LogTime/PublishTime use the
// capture timestamp, or the current time when it is zero.
func (w *Writer) WriteMessage(msg *can.DecodedMessage) error {
	if msg == nil {
		return errors.New("nil DecodedMessage")
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	body, err := Body(msg)
	if err != nil {
		return err
	}
	data, err := proto.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal message body")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	channelID, err := w.ensureChannel(msg)
	if err != nil {
		return err
	}
	seq := w.sequence[channelID]
	w.sequence[channelID] = seq + 1
	if err := w.writer.WriteMessage(&mcap.Message{
		ChannelID:   channelID,
		Sequence:    seq,
		LogTime:     uint64(ts.UnixNano()),
		PublishTime: uint64(ts.UnixNano()),
		Data:        data,
	}); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close finalizes the MCAP file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writer.Close()
}
