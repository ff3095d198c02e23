package model

import "strings"

// Tier is an ordered product tier: free < pro < agency.
type Tier string

const (
	TierFree   Tier = "free"
	TierPro    Tier = "pro"
	TierAgency Tier = "agency"
)

// DefaultProduct is used when a credential or feature table entry names no product.
const DefaultProduct = "default"

func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

func (t Tier) Valid() bool { return t.Rank() >= 0 }

// Rank orders tiers; unknown tiers rank -1.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 0
	case TierPro:
		return 1
	case TierAgency:
		return 2
	default:
		return -1
	}
}

// AtLeast reports whether t grants everything min grants.
func (t Tier) AtLeast(min Tier) bool { return t.Valid() && t.Rank() >= min.Rank() }

// FeatureTable maps (product, tier) to an ordered capability list. It is built
// once at startup and read-only afterwards.
type FeatureTable struct {
	byProduct map[string]map[Tier][]string
}

// NewFeatureTable builds a table from product -> tier name -> features.
// Each tier inherits the features of lower tiers of the same product, in tier
// order, without duplicates.
func NewFeatureTable(src map[string]map[string][]string) *FeatureTable {
	ft := &FeatureTable{byProduct: make(map[string]map[Tier][]string, len(src))}
	for product, tiers := range src {
		own := make(map[Tier][]string, len(tiers))
		for name, feats := range tiers {
			if t, ok := ParseTier(name); ok {
				own[t] = feats
			}
		}
		merged := make(map[Tier][]string, 3)
		var acc []string
		seen := map[string]struct{}{}
		for _, t := range []Tier{TierFree, TierPro, TierAgency} {
			for _, f := range own[t] {
				if _, dup := seen[f]; dup {
					continue
				}
				seen[f] = struct{}{}
				acc = append(acc, f)
			}
			merged[t] = append([]string(nil), acc...)
		}
		ft.byProduct[strings.ToLower(product)] = merged
	}
	return ft
}

// Features returns the capability list for (product, tier), falling back to the
// default product. The returned slice is a copy.
func (ft *FeatureTable) Features(product string, tier Tier) []string {
	if ft == nil {
		return nil
	}
	tiers, ok := ft.byProduct[strings.ToLower(product)]
	if !ok {
		tiers, ok = ft.byProduct[DefaultProduct]
		if !ok {
			return nil
		}
	}
	return append([]string(nil), tiers[tier]...)
}
