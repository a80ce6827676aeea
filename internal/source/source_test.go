package source

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/richroberts-prog/air-demand/internal/config"
	"github.com/richroberts-prog/air-demand/internal/model"
	"github.com/richroberts-prog/air-demand/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const export = `[
  {"id": 101, "title": "Backend Engineer", "company": {"name": "Acme", "funding_amount": "$16.25M"},
   "salary_upper": 250000, "percent_fee": 18, "locations": ["london"],
   "highlights": {"badges": ["fast_growing"], "note": "x"}},
  {"id": "abc-2", "title": "Firmware Engineer", "company": {"name": "Widget"}},
  {"title": "No ID"},
  {"id": 104, "salary_upper": "a lot"},
  {"id": null, "title": "Null ID"}
]`

func TestDecode_Array(t *testing.T) {
	batch, err := Decode([]byte(export))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(batch.Records))
	}
	if batch.Records[0].ID != "101" || batch.Records[1].ID != "abc-2" {
		t.Errorf("ids = %q, %q", batch.Records[0].ID, batch.Records[1].ID)
	}
	r := batch.Records[0]
	if r.SalaryUpper == nil || *r.SalaryUpper != 250000 {
		t.Errorf("SalaryUpper = %v", r.SalaryUpper)
	}
	if r.Company.FundingAmount != "$16.25M" || !r.Highlights.HasBadge("fast_growing") {
		t.Errorf("unexpected record: %+v", r.Fields)
	}
	if _, ok := r.Highlights.Extras["note"]; !ok {
		t.Errorf("highlight extras lost: %v", r.Highlights.Extras)
	}

	if len(batch.Rejected) != 3 {
		t.Fatalf("expected 3 rejections, got %d: %v", len(batch.Rejected), batch.Rejected)
	}
	if got := batch.Rejected[0]; got.Index != 2 || got.Message != "missing id" {
		t.Errorf("rejection 0 = %+v", got)
	}
	if got := batch.Rejected[1]; got.Index != 3 || got.ExternalID != "104" {
		t.Errorf("rejection 1 = %+v", got)
	}
	if got := batch.Rejected[2]; got.Index != 4 || got.Message != "missing id" {
		t.Errorf("rejection 2 = %+v", got)
	}
	if batch.Size() != 5 {
		t.Errorf("Size() = %d, want 5", batch.Size())
	}
}

func TestDecode_OpenObjectsKeepUnknownKeys(t *testing.T) {
	batch, err := Decode([]byte(`[{"id": 1, "title": "X",
		"highlights": {"badges": ["A"], "hiring_note": "fast"},
		"enrichment": {"location": "London", "briefing": "hi"}}]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(batch.Records) != 1 {
		t.Fatalf("unexpected batch: %+v", batch)
	}
	r := batch.Records[0]
	if !r.Highlights.HasBadge("A") || string(r.Highlights.Extras["hiring_note"]) != `"fast"` {
		t.Errorf("highlights = %+v", r.Highlights)
	}
	if _, ok := r.Highlights.Extras["badges"]; ok {
		t.Error("declared key copied into highlight extras")
	}
	if r.Enrichment == nil || r.Enrichment.Location != "London" || string(r.Enrichment.Extras["briefing"]) != `"hi"` {
		t.Errorf("enrichment = %+v", r.Enrichment)
	}
}

func TestDecode_RolesObject(t *testing.T) {
	batch, err := Decode([]byte(`{"scraped_at": "2026-01-01", "roles": [{"id": 7, "title": "X"}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(batch.Records) != 1 || batch.Records[0].ID != "7" {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestDecode_InvalidShapes(t *testing.T) {
	for _, payload := range []string{"", "   ", `"roles"`, `42`, `{"jobs": []}`, `[{"id": 1}`, `{"roles": {"id": 1}}`} {
		if _, err := Decode([]byte(payload)); !errors.Is(err, model.ErrInvalidBatch) {
			t.Errorf("Decode(%q) error = %v, want ErrInvalidBatch", payload, err)
		}
	}
}

func TestDecode_EmptyArray(t *testing.T) {
	batch, err := Decode([]byte(`[]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if batch.Size() != 0 {
		t.Errorf("Size() = %d, want 0", batch.Size())
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.json")
	if err := os.WriteFile(path, []byte(export), 0644); err != nil {
		t.Fatal(err)
	}

	batch, err := NewFileSource(path).FetchBatch(context.Background())
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(batch.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(batch.Records))
	}

	if _, err := NewFileSource(filepath.Join(t.TempDir(), "missing.json")).FetchBatch(context.Background()); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHTTPSource_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Write([]byte(export))
	}))
	defer srv.Close()

	batch, err := NewHTTPSource(srv.URL, srv.Client()).FetchBatch(context.Background())
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(batch.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(batch.Records))
	}
}

func TestHTTPSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewHTTPSource(srv.URL, srv.Client()).FetchBatch(context.Background())
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != 429 || httpErr.RetryAfter != 30*time.Second {
		t.Errorf("HTTPError = %+v", httpErr)
	}
	if !model.IsRetryable(err) {
		t.Error("429 should be retryable")
	}
}

func TestOpen_RetriesThroughLimiter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"roles": [{"id": 1}]}`))
	}))
	defer srv.Close()

	cfg := config.SourceConfig{Type: "http", URL: srv.URL, Timeout: 5 * time.Second, Retries: 2, RetryDelay: 10 * time.Millisecond}
	src, err := Open(cfg, ratelimit.NewLimiter(time.Millisecond), discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	batch, err := src.FetchBatch(context.Background())
	if err != nil {
		t.Fatalf("FetchBatch: %v", err)
	}
	if len(batch.Records) != 1 || calls.Load() != 2 {
		t.Errorf("records = %d, calls = %d", len(batch.Records), calls.Load())
	}
}

func TestOpen_UnknownType(t *testing.T) {
	if _, err := Open(config.SourceConfig{Type: "s3"}, nil, discardLogger()); err == nil {
		t.Error("expected error for unknown source type")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"120", 120 * time.Second},
		{"Wed, 21 Oct 2015 07:28:00 GMT", 0},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.in); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
