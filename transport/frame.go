package transport

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
)

// headerSize is the fixed width of the ASCII decimal length header.
const headerSize = 8

// maxFrameBodySize is the largest body an 8-byte decimal header can encode:
// 99 999 999 bytes. The original spec's framing ceiling.
const maxFrameBodySize = 99_999_999

const (
	ackPositive byte = '1'
	ackNegative byte = '0'
)

// errNegativeAck is returned by sendFrame when the peer naks the length
// header; callers surface it as a fatal TransportError.
var errNegativeAck = fmt.Errorf("transport: peer rejected frame length with a negative ack")

// sendFrame writes the 8-byte length header for body, blocks for the peer's
// length ack, then writes the body. A negative ack or any I/O failure is
// fatal.
func sendFrame(rw io.ReadWriter, body []byte) error {
	if len(body) == 0 || len(body) > maxFrameBodySize {
		return fmt.Errorf("transport: frame body length %d is out of range (1..%d)", len(body), maxFrameBodySize)
	}

	if _, err := rw.Write(formatHeader(len(body))); err != nil {
		return fmt.Errorf("transport: write frame header: %w", err)
	}

	ok, err := readAck(rw)
	if err != nil {
		return fmt.Errorf("transport: read length ack: %w", err)
	}
	if !ok {
		return errNegativeAck
	}

	if _, err := rw.Write(body); err != nil {
		return fmt.Errorf("transport: write frame body: %w", err)
	}
	return nil
}

// recvFrame reads one length-prefixed frame: the 8-byte header, then sends
// the length ack (negative and an error if the header is malformed or out
// of range), then reads exactly that many body bytes.
func recvFrame(rw io.ReadWriter) ([]byte, error) {
	headerBuf := make([]byte, headerSize)
	if _, err := io.ReadFull(rw, headerBuf); err != nil {
		return nil, fmt.Errorf("transport: read frame header: %w", err)
	}

	length, parseErr := parseHeader(headerBuf)
	if parseErr != nil || length <= 0 || length > maxFrameBodySize {
		if err := writeAck(rw, false); err != nil {
			return nil, fmt.Errorf("transport: nack malformed frame header: %w", err)
		}
		if parseErr != nil {
			return nil, fmt.Errorf("transport: parse frame header: %w", parseErr)
		}
		return nil, fmt.Errorf("transport: frame header declares out-of-range length %d", length)
	}

	if err := writeAck(rw, true); err != nil {
		return nil, fmt.Errorf("transport: ack frame header: %w", err)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(rw, body); err != nil {
		return nil, fmt.Errorf("transport: read frame body: %w", err)
	}
	return body, nil
}

// sendBodyAck sends the second ack used by key frames, confirming whether
// the body itself (the decrypted/parsed key material) was acceptable.
func sendBodyAck(w io.Writer, accepted bool) error {
	return writeAck(w, accepted)
}

// recvBodyAck reads the second ack a key-frame sender waits for.
func recvBodyAck(r io.Reader) (bool, error) {
	return readAck(r)
}

func writeAck(w io.Writer, positive bool) error {
	b := ackNegative
	if positive {
		b = ackPositive
	}
	_, err := w.Write([]byte{b})
	return err
}

// readAck reads a single-byte ack and reports whether it was positive.
// Comparison is by value, not by reference, per the original spec's
// "equality on length ack" open question.
func readAck(r io.Reader) (bool, error) {
	buf := make([]byte, 1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return false, err
	}
	switch buf[0] {
	case ackPositive:
		return true, nil
	case ackNegative:
		return false, nil
	default:
		return false, fmt.Errorf("transport: unrecognized ack byte %q", buf[0])
	}
}

// formatHeader encodes n as an 8-byte ASCII decimal field, '=' padded.
func formatHeader(n int) []byte {
	digits := strconv.Itoa(n)
	header := make([]byte, headerSize)
	copy(header, digits)
	for i := len(digits); i < headerSize; i++ {
		header[i] = '='
	}
	return header
}

// parseHeader decodes an 8-byte ASCII decimal field, '=' padded, rejecting
// any digit run that would not fit the field rather than truncating it.
func parseHeader(header []byte) (int, error) {
	if len(header) != headerSize {
		return 0, fmt.Errorf("transport: frame header must be %d bytes, got %d", headerSize, len(header))
	}
	cut := bytes.IndexByte(header, '=')
	digits := header
	if cut >= 0 {
		digits = header[:cut]
	}
	if len(digits) == 0 {
		return 0, fmt.Errorf("transport: frame header has no digits")
	}
	n, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, fmt.Errorf("transport: frame header is not a decimal integer: %w", err)
	}
	return n, nil
}
