package timing

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewareRecordsServedResource(t *testing.T) {
	b := NewBuffer(0)
	h := Middleware(b, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, strings.Repeat("x", 1500))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/app.js?v=2", nil))

	got := b.Entries()
	if len(got) != 1 {
		t.Fatalf("recorded %d entries, want 1", len(got))
	}
	e := got[0]
	if e.Name != "/static/app.js?v=2" || e.InitiatorType != "script" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.TransferSize != 1500 {
		t.Fatalf("transfer size %d, want 1500", e.TransferSize)
	}
	if e.Duration < 0 || e.StartTime < 0 {
		t.Fatalf("negative timing: %+v", e)
	}
}

func TestInitiatorFor(t *testing.T) {
	cases := map[string]string{
		"/":               "navigation",
		"/index.html":     "navigation",
		"/static/app.js":  "script",
		"/static/app.css": "css",
		"/logo.PNG":       "img",
		"/api/stats":      "fetch",
		"/data.json":      "fetch",
		"/font.woff2":     "other",
	}
	for in, want := range cases {
		if got := InitiatorFor(in); got != want {
			t.Fatalf("InitiatorFor(%q) = %q, want %q", in, got, want)
		}
	}
}
