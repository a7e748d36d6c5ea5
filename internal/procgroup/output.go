package procgroup

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// MaxLineBytes is the default chunk size for ForwardLines.
const MaxLineBytes = 64 * 1024

// ForwardLines reads child output until EOF and calls emit once per line,
// without the line terminator. A line longer than max is emitted in chunks of
// at most max bytes, so a child printing without newlines never fills the
// pipe. After a read error the rest of r is discarded rather than closing the
// pipe under a live writer; the error is returned.
func ForwardLines(r io.Reader, max int, emit func(line string)) error {
	if max <= 0 {
		max = MaxLineBytes
	}
	br := bufio.NewReaderSize(r, max)
	partial := false
	for {
		chunk, err := br.ReadSlice('\n')
		// A terminator right after a full chunk ends that chunk, not a new line.
		if len(chunk) > 0 && !(partial && len(chunk) == 1 && chunk[0] == '\n') {
			emit(strings.TrimRight(string(chunk), "\r\n"))
		}
		partial = errors.Is(err, bufio.ErrBufferFull)
		switch {
		case err == nil || partial:
		case errors.Is(err, io.EOF):
			return nil
		default:
			_, _ = io.Copy(io.Discard, r)
			return err
		}
	}
}
