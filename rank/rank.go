// Package rank orders normalized listings. Two policies exist: a bounded
// cheapest-first selection for gear searches and a merge against the previous
// published document for housing searches.
package rank

import (
	"sort"

	"github.com/slammyslinker-sketch/slammyslinker-sketch.github.io/models"
)

// DefaultTopK is the published result size for gear searches.
const DefaultTopK = 3

// TopCheapest filters out untracked and unavailable listings, stable-sorts the
// rest ascending by price and returns the first k. The stable sort keeps
// adapter arrival order for equal prices.
func TopCheapest(listings []models.Listing, k int) []models.Listing {
	priced := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		if l.PriceValue == nil || l.Condition == models.ConditionUnavailable {
			continue
		}
		priced = append(priced, l)
	}

	sort.SliceStable(priced, func(i, j int) bool {
		return *priced[i].PriceValue < *priced[j].PriceValue
	})

	if k > 0 && len(priced) > k {
		priced = priced[:k]
	}
	return priced
}

// MergeWithPrevious returns the full new candidate set with IsNew computed
// against the previous document. Sources are authoritative for "currently
// listed": entries absent from the new pull are dropped, not archived.
func MergeWithPrevious(listings []models.Listing, previous *models.ResultDocument) []models.Listing {
	var prevIDs map[string]bool
	if previous != nil {
		prevIDs = previous.IDs()
	}

	merged := make([]models.Listing, len(listings))
	for i, l := range listings {
		l.IsNew = !prevIDs[l.ID]
		merged[i] = l
	}
	return merged
}
