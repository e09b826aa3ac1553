package lootbox

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"lootCrate/api"
)

var (
	ErrNoItems     = errors.New("lootbox has no items")
	ErrInvalidItem = errors.New("invalid item")
)

// OddsWarningTolerance is how far the summed odds may drift from 1.0 before
// Validate reports a warning. Drift is warned about, never blocked on.
const OddsWarningTolerance = 1e-9

// Draw performs a weighted draw over items with sample in [0,1). It scans the
// cumulative odds and picks the first item whose running sum reaches the
// sample. When floating-point drift leaves no match the last item is
// returned; a draw over a non-empty pool always yields an item.
func Draw(items []api.Item, sample float64) (api.Item, error) {
	if len(items) == 0 {
		return api.Item{}, ErrNoItems
	}
	sum := 0.0
	for _, item := range items {
		sum += item.Odds
		if sum >= sample {
			return item, nil
		}
	}
	return items[len(items)-1], nil
}

// Validate checks a definition is spinnable: a non-empty name, at least one
// item with a non-empty name, no negative odds, and a positive odds total.
// The returned warnings flag odds sums that stray from 1.0.
func Validate(def api.LootboxDefinition) (warnings []string, err error) {
	if strings.TrimSpace(def.Name) == "" {
		return nil, fmt.Errorf("%w: lootbox name is empty", ErrInvalidItem)
	}
	if len(def.Items) == 0 {
		return nil, ErrNoItems
	}
	total := 0.0
	for i, item := range def.Items {
		if strings.TrimSpace(item.Name) == "" {
			return nil, fmt.Errorf("%w: item %d has an empty name", ErrInvalidItem, i)
		}
		if item.Odds < 0 {
			return nil, fmt.Errorf("%w: item %q has negative odds", ErrInvalidItem, item.Name)
		}
		total += item.Odds
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: total odds must be positive", ErrInvalidItem)
	}
	if math.Abs(total-1.0) > OddsWarningTolerance {
		warnings = append(warnings, fmt.Sprintf("item odds sum to %.4f, not 1.0", total))
	}
	return warnings, nil
}
