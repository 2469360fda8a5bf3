package base

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

const (
	// frameHeaderSize is shardID (8) + requestID (8) + payload length (4)
	frameHeaderSize = 20
	// maxFrameSize bounds the payload of a single frame. Documents of a whole
	// model travel in one MGet response, so the limit is generous.
	maxFrameSize = 256 << 20
)

// writeFrame writes a frame to the connection with the format:
// - 8 bytes: shardId (uint64, big endian)
// - 8 bytes: requestID (uint64, big endian)
// - 4 bytes: data length (uint32, big endian)
// - N bytes: data payload
func writeFrame(conn net.Conn, shardID uint64, requestID uint64, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("frame payload of %d bytes exceeds the limit of %d bytes", len(data), maxFrameSize)
	}

	header := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(header[:8], shardID)
	binary.BigEndian.PutUint64(header[8:16], requestID)
	binary.BigEndian.PutUint32(header[16:20], uint32(len(data)))

	// one write for header and payload
	b := net.Buffers{header, data}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads a frame from the connection. The payload is read into buf if it
// fits, otherwise a new slice is allocated. The returned data may therefore alias buf.
func readFrame(conn net.Conn, buf []byte) (shardID uint64, requestID uint64, data []byte, err error) {
	var header [frameHeaderSize]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return 0, 0, nil, err
	}

	shardID = binary.BigEndian.Uint64(header[:8])
	requestID = binary.BigEndian.Uint64(header[8:16])
	contentLength := int(binary.BigEndian.Uint32(header[16:20]))

	if contentLength > maxFrameSize {
		return 0, 0, nil, fmt.Errorf("frame payload of %d bytes exceeds the limit of %d bytes", contentLength, maxFrameSize)
	}
	if contentLength == 0 {
		return shardID, requestID, []byte{}, nil
	}

	if len(buf) < contentLength {
		buf = make([]byte, contentLength)
	}
	if _, err := io.ReadFull(conn, buf[:contentLength]); err != nil {
		return 0, 0, nil, err
	}
	return shardID, requestID, buf[:contentLength], nil
}
