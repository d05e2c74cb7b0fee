package timing

import (
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/kisy/netan/pkg/model"
)

// Middleware records one entry per request served by next: the resources the
// dashboard page loads from this process.
func Middleware(buf *Buffer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		cw := &countingWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)

		// Errors here only mean the buffer is full; the response is already out.
		_ = buf.Record(model.ResourceEntry{
			Name:          r.URL.String(),
			InitiatorType: InitiatorFor(r.URL.Path),
			Duration:      float64(time.Since(start)) / float64(time.Millisecond),
			TransferSize:  cw.n,
			StartTime:     buf.Since(start),
		})
	})
}

// InitiatorFor guesses the initiator category the browser would report for a
// resource path.
func InitiatorFor(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".mjs":
		return "script"
	case ".css":
		return "css"
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico":
		return "img"
	case ".json":
		return "fetch"
	case ".html", "":
		if strings.HasPrefix(p, "/api/") {
			return "fetch"
		}
		return "navigation"
	default:
		return "other"
	}
}

type countingWriter struct {
	http.ResponseWriter
	n int64
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.n += int64(n)
	return n, err
}

func (w *countingWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
