package component

import (
	"bytes"
	"fmt"
	"io"
	"sync"
)

// Sanity limits bound allocations for malformed binaries.
const (
	maxSections   = 100000
	maxItems      = 100000
	maxNameLength = 10000
	maxDepth      = 16
)

// readerPool pools bytes.Reader instances to reduce allocations
var readerPool = sync.Pool{
	New: func() interface{} {
		return &bytes.Reader{}
	},
}

// getReader gets a pooled reader initialized with data
func getReader(data []byte) *bytes.Reader {
	r := readerPool.Get().(*bytes.Reader)
	r.Reset(data)
	return r
}

// putReader returns a reader to the pool
func putReader(r *bytes.Reader) {
	r.Reset(nil)
	readerPool.Put(r)
}

func readByte(r *bytes.Reader) (byte, error) {
	b, err := r.ReadByte()
	if err == io.EOF {
		return 0, io.ErrUnexpectedEOF
	}
	return b, err
}

func expectByte(r *bytes.Reader, want byte, what string) error {
	b, err := readByte(r)
	if err != nil {
		return fmt.Errorf("read %s: %w", what, err)
	}
	if b != want {
		return fmt.Errorf("%s: expected 0x%02x, got 0x%02x", what, want, b)
	}
	return nil
}

// readLEB128 reads an unsigned 32-bit LEB128 value
func readLEB128(r *bytes.Reader) (uint32, error) {
	var result uint32
	var shift uint
	for i := 0; i < 5; i++ {
		b, err := readByte(r)
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, fmt.Errorf("LEB128 encoding exceeded maximum length")
}

// readCount reads a vector length and checks it against maxItems
func readCount(r *bytes.Reader, what string) (uint32, error) {
	n, err := readLEB128(r)
	if err != nil {
		return 0, fmt.Errorf("read %s count: %w", what, err)
	}
	if n > maxItems {
		return 0, fmt.Errorf("%s count %d exceeds maximum", what, n)
	}
	if int(n) > r.Len() {
		return 0, fmt.Errorf("%s count %d exceeds remaining %d bytes", what, n, r.Len())
	}
	return n, nil
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readLEB128(r)
	if err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	if n > maxNameLength {
		return "", fmt.Errorf("string length %d exceeds maximum", n)
	}
	if int(n) > r.Len() {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", n, r.Len())
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read string bytes: %w", err)
	}
	return string(buf), nil
}

// readExternName reads importname' / exportname'. The 0x01 form carries a
// version suffix which is not part of the name.
func readExternName(r *bytes.Reader) (string, error) {
	kind, err := readByte(r)
	if err != nil {
		return "", fmt.Errorf("read name kind: %w", err)
	}
	name, err := readString(r)
	if err != nil {
		return "", err
	}
	switch kind {
	case 0x00:
	case 0x01:
		if _, err := readString(r); err != nil {
			return "", fmt.Errorf("read version suffix: %w", err)
		}
	default:
		return "", fmt.Errorf("unknown name kind 0x%02x", kind)
	}
	return name, nil
}

// readBytes returns the next n bytes without copying.
func readBytes(data []byte, r *bytes.Reader, n uint32) ([]byte, error) {
	if int(n) > r.Len() {
		return nil, fmt.Errorf("size %d exceeds remaining %d bytes", n, r.Len())
	}
	off := len(data) - r.Len()
	if _, err := r.Seek(int64(n), io.SeekCurrent); err != nil {
		return nil, err
	}
	return data[off : off+int(n)], nil
}
