package concepts

import (
	"sort"
	"strings"

	"github.com/kirillkom/policy-radar/internal/core/domain"
)

const (
	topicTermLimit   = 3
	siblingTermLimit = 2
)

type Enricher struct {
	groups []domain.ConceptGroup
}

func NewEnricher(groups []domain.ConceptGroup) *Enricher {
	if len(groups) == 0 {
		groups = DefaultGroups()
	}
	return &Enricher{groups: CloneGroups(groups)}
}

func (e *Enricher) Groups() []domain.ConceptGroup {
	return CloneGroups(e.groups)
}

// Enrich returns the sorted set of concepts implied by the topics and by
// term hits in the text.
func (e *Enricher) Enrich(text string, topics []string) []string {
	set := make(map[string]struct{})

	for _, topic := range topics {
		topic = strings.ToLower(strings.TrimSpace(topic))
		for _, group := range e.groups {
			if strings.ToLower(group.Name) != topic {
				continue
			}
			for _, term := range group.Top(topicTermLimit) {
				set[term] = struct{}{}
			}
		}
	}

	lower := strings.ToLower(text)
	for _, group := range e.groups {
		for _, term := range group.Terms {
			if term == "" || !strings.Contains(lower, strings.ToLower(term)) {
				continue
			}
			set[group.Name] = struct{}{}
			for _, sibling := range group.Siblings(term, siblingTermLimit) {
				set[sibling] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(set))
	for concept := range set {
		out = append(out, concept)
	}
	sort.Strings(out)
	return out
}
