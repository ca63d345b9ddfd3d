package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"keywatch/internal/model"
)

func ptr(v float64) *float64 { return &v }

func TestEvaluate(t *testing.T) {
	cfg := model.AlertConfig{Threshold: 20, Currency: model.EUR}

	assert.True(t, Evaluate(&model.PriceRecord{LowPrice: ptr(14.99)}, cfg))
	assert.True(t, Evaluate(&model.PriceRecord{LowPrice: ptr(20)}, cfg), "equal price triggers")
	assert.False(t, Evaluate(&model.PriceRecord{LowPrice: ptr(20.01)}, cfg))
}

func TestEvaluate_NoOffersIsFalse(t *testing.T) {
	rec := &model.PriceRecord{LowPrice: nil, OfferCount: 0}
	assert.False(t, Evaluate(rec, model.AlertConfig{Threshold: 20}))
	assert.False(t, Evaluate(rec, model.AlertConfig{Threshold: 1e9}), "nil price is false regardless of threshold")
	assert.False(t, Evaluate(nil, model.AlertConfig{Threshold: 20}))
}

func TestDifference(t *testing.T) {
	cfg := model.AlertConfig{Threshold: 20}

	d, ok := Difference(&model.PriceRecord{LowPrice: ptr(14.99)}, cfg)
	assert.True(t, ok)
	assert.InDelta(t, -5.01, d, 1e-9)

	_, ok = Difference(&model.PriceRecord{}, cfg)
	assert.False(t, ok)
}

func TestStockOK(t *testing.T) {
	assert.True(t, StockOK(&model.PriceRecord{OfferCount: 3}))
	assert.False(t, StockOK(&model.PriceRecord{OfferCount: 0}))
	assert.False(t, StockOK(nil))
}
