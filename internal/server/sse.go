package server

import (
	"bufio"
	"io"
	"net/http"
	"strings"
)

// sseSplitter streams src to dst, buffering up to each blank line
// ("\n\n", the SSE event delimiter), applying a placeholder->original
// substitution to each complete event before writing it, and flushing the
// trailing buffer on EOF. Chunk boundaries are not otherwise altered, per
// §4.9 ("Do not alter chunk boundaries beyond the event-level split").
func sseSplitter(w http.ResponseWriter, src io.Reader, hydrate func(string) string) error {
	flusher, canFlush := w.(http.Flusher)
	reader := bufio.NewReader(src)
	var buf strings.Builder

	writeEvent := func(event string) error {
		if _, err := io.WriteString(w, hydrate(event)); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	}

	for {
		line, err := reader.ReadString('\n')
		buf.WriteString(line)
		if strings.HasSuffix(buf.String(), "\n\n") {
			if writeErr := writeEvent(buf.String()); writeErr != nil {
				return writeErr
			}
			buf.Reset()
		}
		if err != nil {
			if err == io.EOF {
				if buf.Len() > 0 {
					return writeEvent(buf.String())
				}
				return nil
			}
			return err
		}
	}
}
