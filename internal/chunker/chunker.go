package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Range describes one chunk's byte span within a file.
type Range struct {
	Index  int
	Offset int64
	Length int64
}

// Count returns the number of fixed-size chunks needed to cover size bytes.
func Count(size, chunkSize int64) int {
	if size <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((size + chunkSize - 1) / chunkSize)
}

// Plan computes the ordered chunk ranges for a file of the given size.
// The ranges tile [0, size) exactly: no gaps, no overlaps, only the last
// chunk may be shorter than chunkSize.
func Plan(size, chunkSize int64) []Range {
	n := Count(size, chunkSize)
	ranges := make([]Range, 0, n)
	for i := 0; i < n; i++ {
		offset := int64(i) * chunkSize
		length := chunkSize
		if offset+length > size {
			length = size - offset
		}
		ranges = append(ranges, Range{Index: i, Offset: offset, Length: length})
	}
	return ranges
}

// Slice reads the bytes of one chunk range out of the source.
func Slice(src io.ReaderAt, r Range) ([]byte, error) {
	buf := make([]byte, r.Length)
	if _, err := io.ReadFull(io.NewSectionReader(src, r.Offset, r.Length), buf); err != nil {
		return nil, fmt.Errorf("reading chunk %d: %w", r.Index, err)
	}
	return buf, nil
}

// ComputeHash computes the SHA-256 hash of chunk data.
func ComputeHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyHash reports whether data matches the expected hash.
func VerifyHash(data []byte, expected string) bool {
	return ComputeHash(data) == expected
}

// Reassemble concatenates chunks in order into the original file contents.
func Reassemble(chunks [][]byte) []byte {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
