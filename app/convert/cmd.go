package convert

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/BIwashi/candbc/app/internal/source"
	"github.com/BIwashi/candbc/pkg/can"
	"github.com/BIwashi/candbc/pkg/cli"
	"github.com/BIwashi/candbc/pkg/dbc"
	"github.com/BIwashi/candbc/pkg/jsonl"
	"github.com/BIwashi/candbc/pkg/mcap"
	"github.com/BIwashi/candbc/pkg/pcapng"
	"github.com/BIwashi/candbc/pkg/table"
)

const (
	formatMCAP  = "mcap"
	formatJSONL = "jsonl"
)

type converter struct {
	dbcFile     string
	pcapngFile  string
	outputFile  string
	format      string
	idByteOrder string
}

// messageWriter is implemented by the mcap and jsonl writers.
type messageWriter interface {
	WriteMessage(msg *can.DecodedMessage) error
	Close() error
}

func NewCommand() *cobra.Command {
	s := &converter{
		dbcFile:     "",
		pcapngFile:  "",
		outputFile:  "",
		format:      "",
		idByteOrder: "auto",
	}

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Decode CAN data captured with pcapng into MCAP or JSON lines.",
		Long: `Decode PCAPNG files captured from a CAN bus.

This command reads CAN frames from a PCAPNG file, decodes them using a DBC
file (or a CSV/XLSX signal table) and writes the decoded messages either to
an MCAP file with a protobuf Struct schema or to a JSON lines file.`,
		Example: `  # Convert PCAPNG to MCAP
  candbc convert --dbc-file vehicle.dbc --pcapng-file capture.pcapng --output output.mcap

  # Convert PCAPNG to JSON lines
  candbc convert --dbc-file vehicle.dbc --pcapng-file capture.pcapng --output output.jsonl`,
		RunE: cli.WithContext(s.run),
	}

	cmd.Flags().StringVar(&s.dbcFile, "dbc-file", s.dbcFile, "DBC file (or CSV/XLSX signal table)")
	cmd.Flags().StringVar(&s.pcapngFile, "pcapng-file", s.pcapngFile, "PCAPNG file")
	cmd.Flags().StringVar(&s.outputFile, "output", s.outputFile, "Output file")
	cmd.Flags().StringVar(&s.format, "format", s.format, "Output format: mcap or jsonl (default: from the output extension)")
	cmd.Flags().StringVar(&s.idByteOrder, "id-byte-order", s.idByteOrder, "Byte order of the CAN id in captured frames: auto, big or little")

	cmd.MarkFlagRequired("dbc-file")
	cmd.MarkFlagRequired("pcapng-file")
	cmd.MarkFlagRequired("output")

	return cmd
}

// outputFormat resolves --format, falling back to the output extension.
func outputFormat(format, path string) (string, error) {
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jsonl", ".ndjson":
			return formatJSONL, nil
		default:
			return formatMCAP, nil
		}
	}
	switch f := strings.ToLower(format); f {
	case formatMCAP, formatJSONL:
		return f, nil
	}
	return "", errors.Newf("unknown output format %q", format)
}

func readerOptions(order string) ([]pcapng.Option, error) {
	switch strings.ToLower(order) {
	case "", "auto":
		return nil, nil
	case "big":
		return []pcapng.Option{pcapng.WithIDByteOrder(binary.BigEndian)}, nil
	case "little":
		return []pcapng.Option{pcapng.WithIDByteOrder(binary.LittleEndian)}, nil
	}
	return nil, errors.Newf("unknown id byte order %q", order)
}

func newMessageWriter(format string, out io.Writer) (messageWriter, error) {
	if format == formatJSONL {
		return jsonl.NewWriter(out), nil
	}
	return mcap.NewWriter(out, "candbc")
}

func (s *converter) run(ctx context.Context, input cli.Input) error {
	format, err := outputFormat(s.format, s.outputFile)
	if err != nil {
		return err
	}
	opts, err := readerOptions(s.idByteOrder)
	if err != nil {
		return err
	}

	input.Logger.Info("Starting PCAPNG conversion",
		"dbc_file", s.dbcFile,
		"pcapng_file", s.pcapngFile,
		"output_file", s.outputFile,
		"format", format,
	)

	db, err := source.Load(s.dbcFile, input.Logger)
	if err != nil {
		return err
	}

	pcapFile, err := os.Open(s.pcapngFile)
	if err != nil {
		return errors.Wrap(err, "failed to open PCAPNG file")
	}
	defer pcapFile.Close()

	reader, err := pcapng.NewReader(pcapFile, opts...)
	if err != nil {
		return errors.Wrap(err, "failed to create PCAPNG reader")
	}

	outFile, err := os.Create(s.outputFile)
	if err != nil {
		return errors.Wrap(err, "failed to create output file")
	}
	defer outFile.Close()

	writer, err := newMessageWriter(format, outFile)
	if err != nil {
		return errors.Wrap(err, "failed to create writer")
	}

	stats, err := convertFrames(ctx, input, db, reader, writer)
	if err != nil {
		writer.Close()
		return err
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(err, "failed to finalize output")
	}

	input.Logger.Info("Conversion completed successfully!",
		"total_frames", stats.frames,
		"decoded_messages", stats.messages,
		"unknown_frames", stats.unknown,
		"undecodable_frames", stats.failed,
		"skipped_packets", reader.Skipped(),
		"out_of_range_signals", stats.outOfRange,
		"output_file", s.outputFile,
		"duration", stats.duration,
		"rate_fps", fmt.Sprintf("%.2f", float64(stats.frames)/stats.duration.Seconds()),
	)

	if len(stats.perMessage) > 0 {
		input.Logger.Info(fmt.Sprintf("Found %d unique message types", len(stats.perMessage)))
		for key, count := range stats.perMessage {
			id, ext := dbc.SplitKey(key)
			name := ""
			if msg, ok := db.Message(key); ok {
				name = msg.Name
			}
			input.Logger.Debug("message_count", "can_id", table.FormatID(id, ext), "message", name, "count", count)
		}
	}
	return nil
}

type stats struct {
	frames     int
	messages   int
	unknown    int
	failed     int
	outOfRange int
	perMessage map[uint32]int
	duration   time.Duration
}

// frameSource is satisfied by *pcapng.Reader.
type frameSource interface {
	ReadNext() (*can.TimedFrame, error)
}

func convertFrames(ctx context.Context, input cli.Input, db *dbc.Database, reader frameSource, writer messageWriter) (stats, error) {
	st := stats{perMessage: make(map[uint32]int)}
	decoder := can.NewDecoder(db)
	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return st, errors.Wrap(ctx.Err(), "conversion cancelled")
		default:
		}

		frame, err := reader.ReadNext()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return st, errors.Wrap(err, "failed to read frame")
		}
		st.frames++

		decoded, err := decoder.DecodeFrame(frame)
		if err != nil {
			st.failed++
			input.Logger.Debug("frame_decode_failed",
				"can_id", table.FormatID(frame.ID, frame.IsExtended),
				"error", err.Error(),
			)
			continue
		}
		if decoded == nil {
			st.unknown++
			continue
		}

		// Out-of-range signals are reported, never clamped.
		for _, name := range decoded.Order {
			sv := decoded.Signals[name]
			if sv.InRange {
				continue
			}
			st.outOfRange++
			input.Logger.Debug("signal_out_of_range",
				"can_id", table.FormatID(decoded.MessageID, decoded.Extended),
				"message", decoded.MessageName,
				"signal", name,
				"value", sv.PhysicalValue,
			)
		}

		if err := writer.WriteMessage(decoded); err != nil {
			return st, errors.Wrap(err, "failed to write message")
		}
		st.messages++
		st.perMessage[frame.Key()]++

		if st.frames%10000 == 0 {
			input.Logger.Info(fmt.Sprintf("Progress: %d frames processed, %d messages decoded, %d unknown",
				st.frames, st.messages, st.unknown))
		}
	}
	st.duration = time.Since(start)
	return st, nil
}
