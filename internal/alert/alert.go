// Package alert derives binary signals from the latest price record.
package alert

import (
	"math"

	"keywatch/internal/model"
)

// Evaluate reports whether the cheapest offer is at or below the configured
// threshold. A record without offers (nil LowPrice) is false, never an
// error.
func Evaluate(rec *model.PriceRecord, cfg model.AlertConfig) bool {
	if rec == nil || rec.LowPrice == nil {
		return false
	}
	return *rec.LowPrice <= cfg.Threshold
}

// Difference returns low_price - threshold rounded to cents. False when no
// price is known.
func Difference(rec *model.PriceRecord, cfg model.AlertConfig) (float64, bool) {
	if rec == nil || rec.LowPrice == nil {
		return 0, false
	}
	return math.Round((*rec.LowPrice-cfg.Threshold)*100) / 100, true
}

// StockOK reports whether the game has any offer at all.
func StockOK(rec *model.PriceRecord) bool {
	return rec != nil && rec.OfferCount > 0
}
