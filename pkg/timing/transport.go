package timing

import (
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kisy/netan/pkg/model"
)

// Transport is an http.RoundTripper that records every fetch made through it
// once the response body has been closed.
type Transport struct {
	Base   http.RoundTripper
	Buffer *Buffer
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	start := time.Now()
	resp, err := base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = &recordingBody{
		ReadCloser: resp.Body,
		buf:        t.Buffer,
		name:       req.URL.String(),
		start:      start,
	}
	return resp, nil
}

type recordingBody struct {
	io.ReadCloser
	buf   *Buffer
	name  string
	start time.Time
	n     int64
	once  sync.Once
}

func (b *recordingBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	return n, err
}

func (b *recordingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(func() {
		_ = b.buf.Record(model.ResourceEntry{
			Name:          b.name,
			InitiatorType: "fetch",
			Duration:      float64(time.Since(b.start)) / float64(time.Millisecond),
			TransferSize:  b.n,
			StartTime:     b.buf.Since(b.start),
		})
	})
	return err
}
