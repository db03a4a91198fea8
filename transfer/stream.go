package transfer

import (
	"fmt"
	"io"
)

// copyChunked copies exactly size bytes from src to dst in chunkSize
// buffers. A premature EOF aborts with an error rather than returning
// a short, silently truncated stream.
func copyChunked(dst io.Writer, src io.Reader, size uint64) error {
	buf := make([]byte, chunkSize)
	var remaining uint64 = size
	for remaining > 0 {
		n := uint64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, err := io.ReadFull(src, buf[:n])
		if err != nil {
			return fmt.Errorf("read %d bytes: %w", n, err)
		}
		if _, err := dst.Write(buf[:read]); err != nil {
			return fmt.Errorf("write %d bytes: %w", read, err)
		}
		remaining -= uint64(read)
	}
	return nil
}
