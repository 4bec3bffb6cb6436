package langdetect

import "testing"

func TestDetectEnglish(t *testing.T) {
	text := "The European Commission has adopted a new strategy to support the deployment of renewable hydrogen across the internal market."
	if got := New(0).Detect(text); got != "en" {
		t.Fatalf("Detect() = %q, want en", got)
	}
}

func TestDetectEmptyText(t *testing.T) {
	if got := New(0).Detect("   "); got != "" {
		t.Fatalf("Detect() = %q, want empty", got)
	}
}

type stubDetector string

func (s stubDetector) Detect(string) string { return string(s) }

func TestResolveFallsBack(t *testing.T) {
	if got := Resolve(stubDetector(""), "x", "en"); got != "en" {
		t.Fatalf("Resolve() = %q, want fallback", got)
	}
	if got := Resolve(stubDetector("de"), "x", "en"); got != "de" {
		t.Fatalf("Resolve() = %q, want de", got)
	}
	if got := Resolve(nil, "x", "fr"); got != "fr" {
		t.Fatalf("Resolve() = %q, want fr", got)
	}
}
