package timing

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Prober periodically fetches a fixed set of URLs through an instrumented
// client so their loads show up in the buffer.
type Prober struct {
	Client   *http.Client
	URLs     []string
	Interval time.Duration
	Log      zerolog.Logger
}

// NewProber returns a prober whose client records into buf.
func NewProber(buf *Buffer, urls []string, interval time.Duration, log zerolog.Logger) *Prober {
	return &Prober{
		Client: &http.Client{
			Transport: &Transport{Buffer: buf},
			Timeout:   30 * time.Second,
		},
		URLs:     urls,
		Interval: interval,
		Log:      log.With().Str("component", "prober").Logger(),
	}
}

// Run probes once immediately and then on every tick until ctx is done.
func (p *Prober) Run(ctx context.Context) {
	if len(p.URLs) == 0 {
		return
	}
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	p.ProbeAll(ctx)
	for {
		select {
		case <-ticker.C:
			p.ProbeAll(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Prober) ProbeAll(ctx context.Context) {
	for _, u := range p.URLs {
		if err := p.probe(ctx, u); err != nil {
			p.Log.Warn().Err(err).Str("url", u).Msg("probe failed")
		}
	}
}

func (p *Prober) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, err = io.Copy(io.Discard, resp.Body)
	return err
}
