package pcapng

import (
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	ecan "go.einride.tech/can"

	"github.com/BIwashi/candbc/pkg/can"
)

// LinkTypeCANSocketCAN is LINKTYPE_CAN_SOCKETCAN.
// ref: https://www.tcpdump.org/linktypes.html
const LinkTypeCANSocketCAN layers.LinkType = 227

var errSkip = errors.New("not a classic CAN data frame")

// Reader reads CAN frames from PCAPNG file
type Reader struct {
	reader      *pcapgo.NgReader
	linkType    layers.LinkType
	idOrder     binary.ByteOrder
	packetCount uint64
	skipped     uint64
}

// Option configures a Reader.
type Option func(*Reader)

// WithIDByteOrder overrides the byte order of the CAN id word. SocketCAN
// link captures default to network order and Linux cooked captures to
// host (little-endian) order.
func WithIDByteOrder(order binary.ByteOrder) Option {
	return func(r *Reader) { r.idOrder = order }
}

// NewReader creates a new PCAPNG reader
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	ngReader, err := pcapgo.NewNgReader(r, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pcapng reader")
	}

	// Get link type from the first interface
	linkType := ngReader.LinkType()

	reader := &Reader{
		reader:   ngReader,
		linkType: linkType,
	}
	switch linkType {
	case layers.LinkTypeLinuxSLL:
		reader.idOrder = binary.LittleEndian
	case LinkTypeCANSocketCAN:
		reader.idOrder = binary.BigEndian
	default:
		return nil, errors.Newf("unsupported link type: %v", linkType)
	}
	for _, opt := range opts {
		opt(reader)
	}
	return reader, nil
}

// ReadNext reads the next CAN data frame, skipping remote, error and
// non-CAN packets. It returns io.EOF at the end of the capture.
func (r *Reader) ReadNext() (*can.TimedFrame, error) {
	for {
		data, ci, err := r.reader.ReadPacketData()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, errors.Wrap(err, "failed to read packet data")
		}

		r.packetCount++

		canFrame, err := r.extractCANFrame(data, ci)
		if err != nil {
			r.skipped++
			continue
		}

		return canFrame, nil
	}
}

// extractCANFrame extracts CAN frame from the packet
func (r *Reader) extractCANFrame(data []byte, ci gopacket.CaptureInfo) (*can.TimedFrame, error) {
	payload := data
	if r.linkType == layers.LinkTypeLinuxSLL {
		packet := gopacket.NewPacket(data, r.linkType, gopacket.Default)
		sllLayer := packet.Layer(layers.LayerTypeLinuxSLL)
		if sllLayer == nil {
			return nil, errSkip
		}
		payload = sllLayer.(*layers.LinuxSLL).Payload
	}
	return r.extractRawCANFrame(payload, ci)
}

const (
	idFlagExtended = 0x80000000
	idFlagRemote   = 0x40000000
	idFlagError    = 0x20000000
	idMaskExtended = 0x1fffffff
	idMaskStandard = 0x7ff

	// SocketCAN struct can_frame: id word, length, 3 padding bytes, 8 data bytes.
	canFrameHeader = 8
	maxDataLength  = 8
)

// extractRawCANFrame decodes a SocketCAN struct can_frame.
func (r *Reader) extractRawCANFrame(data []byte, ci gopacket.CaptureInfo) (*can.TimedFrame, error) {
	if len(data) < canFrameHeader {
		return nil, errors.Wrapf(errSkip, "data too short for CAN frame: %d", len(data))
	}

	var (
		// Parse CAN ID and flags
		canIDRaw = r.idOrder.Uint32(data[0:4])

		// Extract flags from CAN ID
		isExtended = (canIDRaw & idFlagExtended) != 0
		isRemote   = (canIDRaw & idFlagRemote) != 0
		isError    = (canIDRaw & idFlagError) != 0
	)
	if isError || isRemote {
		return nil, errSkip
	}

	// Extract actual CAN ID
	var canID uint32
	if isExtended {
		canID = canIDRaw & idMaskExtended
	} else {
		canID = canIDRaw & idMaskStandard
	}

	// CAN FD frames carry more than 8 bytes and are not decoded.
	dataLen := data[4]
	if dataLen > maxDataLength || len(data) < canFrameHeader+int(dataLen) {
		return nil, errSkip
	}

	var canData ecan.Data
	copy(canData[:], data[canFrameHeader:canFrameHeader+int(dataLen)])

	return &can.TimedFrame{
		Frame: ecan.Frame{
			ID:         canID,
			Length:     dataLen,
			Data:       canData,
			IsExtended: isExtended,
		},
		Timestamp: ci.Timestamp,
	}, nil
}

// PacketCount returns the number of packets read
func (r *Reader) PacketCount() uint64 {
	return r.packetCount
}

// Skipped returns the number of packets that were not CAN data frames.
func (r *Reader) Skipped() uint64 {
	return r.skipped
}

// LinkType returns the link type of the first capture interface.
func (r *Reader) LinkType() layers.LinkType {
	return r.linkType
}
