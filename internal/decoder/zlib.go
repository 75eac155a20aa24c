package decoder

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
)

// inflate decompresses a V2 block's zlib-compressed payload. klauspost's
// zlib is a drop-in, faster replacement for the standard library package
// with an identical io.Reader-based API (see DESIGN.md).
func inflate(compressed []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
