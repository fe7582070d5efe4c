package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nurpe/foundry-rfq/internal/config"
	"github.com/nurpe/foundry-rfq/internal/model"
)

// Matcher ranks directory suppliers against an RFQ. Pure compute, no side
// effects; weights are product-tunable configuration.
type Matcher struct {
	weights config.MatcherConfig
}

func New(weights config.MatcherConfig) *Matcher {
	return &Matcher{weights: weights}
}

// Match scores every candidate and returns those with a positive score,
// ranked best-first. Ties are broken by ascending supplier ID so the order
// is reproducible. An empty result is a valid business outcome.
func (m *Matcher) Match(rfq *model.RFQ, suppliers []model.Supplier) []model.SupplierMatch {
	keywords := tokenize(rfq.Specification)

	matches := make([]model.SupplierMatch, 0, len(suppliers))
	for _, supplier := range suppliers {
		score, reasons := m.score(rfq, keywords, supplier)
		if score <= 0 {
			continue
		}
		matches = append(matches, model.SupplierMatch{
			SupplierID:   supplier.ID,
			SupplierName: supplier.Name,
			Score:        score,
			Reasons:      reasons,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].SupplierID.String() < matches[j].SupplierID.String()
	})
	return matches
}

func (m *Matcher) score(rfq *model.RFQ, keywords []string, supplier model.Supplier) (float64, []string) {
	var score float64
	var reasons []string

	if supplier.Category != "" && strings.EqualFold(supplier.Category, rfq.Category) {
		score += m.weights.CategoryWeight
		reasons = append(reasons, fmt.Sprintf("category match: %s", supplier.Category))
	}

	if overlap := keywordOverlap(keywords, supplier.Capabilities); overlap > 0 {
		score += m.weights.KeywordWeight * overlap
		reasons = append(reasons, fmt.Sprintf("capability overlap: %.0f%%", overlap*100))
	}

	if headroom := workloadHeadroom(supplier.ActiveOrderCount); headroom > 0 {
		score += m.weights.WorkloadWeight * headroom
		reasons = append(reasons, fmt.Sprintf("workload headroom: %d active orders", supplier.ActiveOrderCount))
	}

	return score, reasons
}

// keywordOverlap returns the fraction of RFQ keywords covered by the
// supplier's declared capabilities.
func keywordOverlap(keywords []string, capabilities []string) float64 {
	if len(keywords) == 0 || len(capabilities) == 0 {
		return 0
	}
	caps := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		caps[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	var hits int
	for _, kw := range keywords {
		if _, ok := caps[kw]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

// workloadHeadroom scores fewer active orders higher, flattening to zero at
// ten or more.
func workloadHeadroom(activeOrders int) float64 {
	if activeOrders >= 10 {
		return 0
	}
	return float64(10-activeOrders) / 10
}

func tokenize(raw string) []string {
	fields := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', ',', ';', '.', ':':
			return true
		}
		return false
	})
	seen := make(map[string]struct{}, len(fields))
	result := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		result = append(result, f)
	}
	return result
}
