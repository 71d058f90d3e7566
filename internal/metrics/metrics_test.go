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
		{"standard https", "https://Media.Example.org/defcon/", "media.example.org"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
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

func TestObserveProbe(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(probesTotal.WithLabelValues("files.example.org", "Timeout"))
	ObserveProbe("https://files.example.org/a.mp4", "Timeout", 30*time.Second)
	after := testutil.ToFloat64(probesTotal.WithLabelValues("files.example.org", "Timeout"))
	if after-before != 1 {
		t.Errorf("expected probe counter to advance by 1, got %f", after-before)
	}
}

func TestObserveCatalogCounters(t *testing.T) {
	before := testutil.ToFloat64(problematicURIsTotal.WithLabelValues("INVALID_FILENAME"))
	ObserveProblematicURI("INVALID_FILENAME")
	ObserveCatalogFile("error")
	ObserveWorkItem("panic")
	ObserveCheckJob("Completed")
	ObserveCrawlJob("Cancelled")
	ObservePage("https://files.example.org/", "html")
	ObservePolitenessDelay("files.example.org", 500*time.Millisecond)

	if got := testutil.ToFloat64(problematicURIsTotal.WithLabelValues("INVALID_FILENAME")) - before; got != 1 {
		t.Errorf("expected problematic URI counter to advance by 1, got %f", got)
	}
	if testutil.CollectAndCount(politenessDelaySeconds) == 0 {
		t.Error("expected politeness histogram to be observed")
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://media.defcon.org", "ftp://example.com"}
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
