package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if fetchPagesTotal == nil || fetchBytesTotal == nil || scansTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetch(t *testing.T) {
	ObserveFetch("https://Careers.Example.gov/jobs", "ok", 250*time.Millisecond, 512)
	ObserveFetch("https://careers.example.gov/other", "error", time.Second, 0)

	if val := testutil.ToFloat64(fetchPagesTotal.WithLabelValues("careers.example.gov", "ok")); val != 1 {
		t.Errorf("expected one ok fetch, got %f", val)
	}
	if val := testutil.ToFloat64(fetchPagesTotal.WithLabelValues("careers.example.gov", "error")); val != 1 {
		t.Errorf("expected one failed fetch, got %f", val)
	}
	if val := testutil.ToFloat64(fetchBytesTotal.WithLabelValues("careers.example.gov")); val != 512 {
		t.Errorf("expected 512 bytes, got %f", val)
	}
}

func TestObserveScanOutcomesAndRecords(t *testing.T) {
	ObserveScan("succeeded")
	ObserveOutcome("metrics-test-portal", "network")
	ObserveRecords("metrics-test-portal", 3)
	ObserveRecords("metrics-test-portal", 0)
	ObserveDocument("matched")

	if val := testutil.ToFloat64(portalOutcomesTotal.WithLabelValues("metrics-test-portal", "network")); val != 1 {
		t.Errorf("expected one network outcome, got %f", val)
	}
	if val := testutil.ToFloat64(recordsTotal.WithLabelValues("metrics-test-portal")); val != 3 {
		t.Errorf("expected 3 records, got %f", val)
	}
	if val := testutil.ToFloat64(documentsTotal.WithLabelValues("matched")); val < 1 {
		t.Errorf("expected matched document counter, got %f", val)
	}
}

func TestActiveWorkersGauge(t *testing.T) {
	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != 1 {
		t.Errorf("expected 1 active worker, got %f", val)
	}
	DecActiveWorkers()
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
