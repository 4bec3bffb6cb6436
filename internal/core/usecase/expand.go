package usecase

import (
	"strings"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

const (
	expansionTopTerms     = 3
	expansionSiblingTerms = 2
)

// QueryExpander broadens a query with concept terms and domain synonyms.
type QueryExpander struct {
	groups   []domain.ConceptGroup
	synonyms []domain.ConceptGroup
}

func NewQueryExpander(groups, synonyms []domain.ConceptGroup) *QueryExpander {
	return &QueryExpander{groups: groups, synonyms: synonyms}
}

// WithGroups returns an expander over groups that keeps e's synonyms.
func (e *QueryExpander) WithGroups(groups []domain.ConceptGroup) *QueryExpander {
	return &QueryExpander{groups: groups, synonyms: e.synonyms}
}

// Expand returns the query followed by its expansion terms, deduplicated
// case-insensitively in first-seen order.
func (e *QueryExpander) Expand(query string) []string {
	query = strings.TrimSpace(query)
	out := []string{query}
	seen := map[string]struct{}{strings.ToLower(query): {}}
	add := func(terms ...string) {
		for _, term := range terms {
			term = strings.TrimSpace(term)
			key := strings.ToLower(term)
			if term == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, term)
		}
	}

	lower := strings.ToLower(query)
	if lower == "" {
		return out
	}

	for _, group := range e.groups {
		if strings.Contains(lower, strings.ToLower(group.Name)) {
			add(group.Name)
			add(group.Top(expansionTopTerms)...)
		}
		for _, term := range group.Terms {
			if term != "" && strings.Contains(lower, strings.ToLower(term)) {
				add(group.Name)
				add(group.Siblings(term, expansionSiblingTerms)...)
			}
		}
	}

	for _, synonym := range e.synonyms {
		if strings.Contains(lower, strings.ToLower(synonym.Name)) {
			add(synonym.Terms...)
		}
	}
	return out
}

func (e *QueryExpander) Groups() []domain.ConceptGroup {
	out := make([]domain.ConceptGroup, 0, len(e.groups))
	for _, group := range e.groups {
		out = append(out, domain.ConceptGroup{Name: group.Name, Terms: append([]string(nil), group.Terms...)})
	}
	return out
}
