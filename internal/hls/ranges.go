package hls

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errUnsatisfiableRange = errors.New("unsatisfiable range")

// byteRange is an inclusive span of a file.
type byteRange struct {
	start, end int64
}

func (b byteRange) length() int64 {
	return b.end - b.start + 1
}

func (b byteRange) contentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", b.start, b.end, size)
}

// parseRange interprets a single-range "bytes=" header against a file of
// size bytes. A missing end means the last byte; an end past the file is
// clamped. "bytes=-N" selects the final N bytes. Multiple ranges are refused.
func parseRange(header string, size int64) (byteRange, error) {
	const prefix = "bytes="
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, prefix) {
		return byteRange{}, errUnsatisfiableRange
	}
	spec := strings.TrimSpace(header[len(prefix):])
	if strings.Contains(spec, ",") {
		return byteRange{}, errUnsatisfiableRange
	}
	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return byteRange{}, errUnsatisfiableRange
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 || size == 0 {
			return byteRange{}, errUnsatisfiableRange
		}
		if n > size {
			n = size
		}
		return byteRange{start: size - n, end: size - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return byteRange{}, errUnsatisfiableRange
	}
	end := size - 1
	if endStr != "" {
		e, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || e < start {
			return byteRange{}, errUnsatisfiableRange
		}
		if e < end {
			end = e
		}
	}
	return byteRange{start: start, end: end}, nil
}
