package model

import (
	"strings"
	"time"
)

// Currency is one of the three storefront currencies the engine recognizes.
type Currency string

const (
	EUR Currency = "eur"
	USD Currency = "usd"
	GBP Currency = "gbp"
)

// ParseCurrency normalizes a user-supplied currency code. The empty string
// on failure lets callers decide between defaulting and rejecting.
func ParseCurrency(s string) Currency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "eur", "€":
		return EUR
	case "usd", "$":
		return USD
	case "gbp", "£":
		return GBP
	}
	return ""
}

// CatalogEntry is one row of the upstream game-name listing.
type CatalogEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Slug derives the URL path fragment the storefronts use for a game.
func (e CatalogEntry) Slug() string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(e.Name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ScoredEntry is a catalog entry ranked against a search query.
type ScoredEntry struct {
	CatalogEntry
	Score float64 `json:"score"`
}

// Availability is the three-valued stock status of a single offer.
type Availability string

const (
	InStock             Availability = "in_stock"
	OutOfStock          Availability = "out_of_stock"
	AvailabilityUnknown Availability = "unknown"
)

// Offer is an immutable snapshot of one seller line on a product page.
type Offer struct {
	Seller       string       `json:"seller"`
	Price        float64      `json:"price"`
	Availability Availability `json:"availability"`
}

// PriceRecord is the published result of one successful extraction. The
// coordinator owns the live value; consumers only ever see copies.
type PriceRecord struct {
	ProductID   string    `json:"product_id"`
	Currency    Currency  `json:"currency"`
	LowPrice    *float64  `json:"low_price"`
	HighPrice   *float64  `json:"high_price,omitempty"`
	BestSeller  string    `json:"best_seller,omitempty"`
	BestCoupon  string    `json:"best_coupon,omitempty"`
	OfferCount  int       `json:"offer_count"`
	Rating      *float64  `json:"rating,omitempty"`
	RatingCount *int      `json:"rating_count,omitempty"`
	TopOffers   []Offer   `json:"top_offers,omitempty"`
	ProductURL  string    `json:"product_url"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Status is the refresh lifecycle state of a tracked game.
type Status string

const (
	StatusIdle        Status = "idle"
	StatusFetching    Status = "fetching"
	StatusAvailable   Status = "available"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// ErrorKind classifies extraction failures for the refresh state.
type ErrorKind string

const (
	ErrorKindNetwork  ErrorKind = "network"
	ErrorKindNotFound ErrorKind = "not_found"
	ErrorKindParse    ErrorKind = "parse"
)

// Repair signal identifiers surfaced to the host when a tracked game goes
// Unavailable. Distinct from the transient Degraded state.
const (
	RepairAPIFailure      = "api_failure"
	RepairProductNotFound = "product_not_found"
)

// RefreshState describes the health of the polling loop for one game.
type RefreshState struct {
	Status              Status     `json:"status"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FirstFailureAt      *time.Time `json:"first_failure_at,omitempty"`
	LastErrorKind       ErrorKind  `json:"last_error_kind,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	RepairSignal        string     `json:"repair_signal,omitempty"`
	Stale               bool       `json:"stale"`
}

// TrackedGame identifies one game being watched on one regional site.
type TrackedGame struct {
	ProductID string   `json:"product_id"`
	Slug      string   `json:"slug"`
	Name      string   `json:"name,omitempty"`
	Currency  Currency `json:"currency"`
}

// AlertConfig is the user-supplied price-drop alert setting. A threshold of
// zero disables the alert entirely.
type AlertConfig struct {
	Threshold float64  `json:"threshold"`
	Currency  Currency `json:"currency"`
}

// PaymentMethod selects which upstream price field counts as the effective
// price of an offer.
type PaymentMethod string

const (
	PaymentBase       PaymentMethod = "base"
	PaymentCard       PaymentMethod = "card"
	PaymentPaypal     PaymentMethod = "paypal"
	PaymentLowestFees PaymentMethod = "lowest_fees"
)

// ParsePaymentMethod falls back to lowest_fees, the original default.
func ParsePaymentMethod(s string) PaymentMethod {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(s))) {
	case PaymentBase:
		return PaymentBase
	case PaymentCard:
		return PaymentCard
	case PaymentPaypal:
		return PaymentPaypal
	default:
		return PaymentLowestFees
	}
}
