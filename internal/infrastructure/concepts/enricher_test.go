package concepts

import (
	"slices"
	"testing"
)

func TestEnrichAddsTopTermsForMatchingTopic(t *testing.T) {
	got := NewEnricher(nil).Enrich("", []string{"Climate"})
	want := []string{"carbon neutrality", "climate change", "greenhouse gases"}
	if !slices.Equal(got, want) {
		t.Fatalf("Enrich() = %v, want %v", got, want)
	}
}

func TestEnrichAddsGroupAndSiblingsForTextHit(t *testing.T) {
	got := NewEnricher(nil).Enrich("New rules on Fuel Cells for trucks", nil)
	for _, want := range []string{"hydrogen", "hydrogen economy", "clean energy"} {
		if !slices.Contains(got, want) {
			t.Fatalf("expected %q in %v", want, got)
		}
	}
	if slices.Contains(got, "fuel cells") {
		t.Fatalf("the matched term itself is not a sibling: %v", got)
	}
}

func TestEnrichIsASet(t *testing.T) {
	got := NewEnricher(nil).Enrich("renewable energy and energy policy", []string{"energy", "energy"})
	seen := map[string]bool{}
	for _, concept := range got {
		if seen[concept] {
			t.Fatalf("duplicate concept %q in %v", concept, got)
		}
		seen[concept] = true
	}
	if !slices.IsSorted(got) {
		t.Fatalf("expected sorted output, got %v", got)
	}
}

func TestEnrichNoMatches(t *testing.T) {
	if got := NewEnricher(nil).Enrich("agricultural subsidies", []string{"farming"}); len(got) != 0 {
		t.Fatalf("expected no concepts, got %v", got)
	}
}

func TestGroupsReturnsCopy(t *testing.T) {
	enricher := NewEnricher(nil)
	groups := enricher.Groups()
	groups[0].Terms[0] = "mutated"
	if enricher.Groups()[0].Terms[0] == "mutated" {
		t.Fatalf("Groups() must not expose internal state")
	}
}
