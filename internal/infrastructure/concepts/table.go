package concepts

import "github.com/kirillkom/policy-radar/internal/core/domain"

// DefaultGroups is the EuroVoc-derived concept vocabulary used for
// enrichment and query expansion. Term order matters: the first terms of a
// group are its top terms.
func DefaultGroups() []domain.ConceptGroup {
	return []domain.ConceptGroup{
		{Name: "energy", Terms: []string{"renewable energy", "energy policy", "energy security", "energy transition"}},
		{Name: "transport", Terms: []string{"sustainable transport", "electric vehicles", "public transport", "mobility"}},
		{Name: "hydrogen", Terms: []string{"hydrogen economy", "fuel cells", "clean energy", "energy storage"}},
		{Name: "climate", Terms: []string{"climate change", "greenhouse gases", "carbon neutrality", "emissions"}},
		{Name: "environment", Terms: []string{"environmental policy", "pollution control", "biodiversity", "circular economy"}},
	}
}

// DefaultSynonyms maps a trigger word to its domain synonyms.
func DefaultSynonyms() []domain.ConceptGroup {
	return []domain.ConceptGroup{
		{Name: "regulation", Terms: []string{"directive", "legislation", "law", "policy"}},
		{Name: "hydrogen", Terms: []string{"H2", "fuel cell", "clean fuel"}},
		{Name: "electric", Terms: []string{"EV", "battery", "electric vehicle"}},
		{Name: "transport", Terms: []string{"mobility", "transportation", "logistics"}},
		{Name: "climate", Terms: []string{"environmental", "carbon", "emissions", "green"}},
		{Name: "energy", Terms: []string{"power", "electricity", "renewable"}},
	}
}

// CloneGroups deep-copies a table so snapshots never share term slices.
func CloneGroups(groups []domain.ConceptGroup) []domain.ConceptGroup {
	out := make([]domain.ConceptGroup, 0, len(groups))
	for _, group := range groups {
		out = append(out, domain.ConceptGroup{
			Name:  group.Name,
			Terms: append([]string(nil), group.Terms...),
		})
	}
	return out
}
