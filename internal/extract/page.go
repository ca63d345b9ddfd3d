package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"keywatch/internal/model"
)

// gamePage mirrors the `var gamePageTrans = {...};` object embedded in every
// product page. Every field is optional: the shape is third-party and drift
// must surface as a parse failure, never a crash.
type gamePage struct {
	Prices      []pageOffer             `json:"prices"`
	Merchants   map[string]pageMerchant `json:"merchants"`
	Editions    map[string]pageEdition  `json:"editions"`
	Rating      *flexFloat              `json:"rating"`
	RatingCount *flexInt                `json:"ratingCount"`
}

type pageOffer struct {
	Price        *flexFloat  `json:"price"`
	PriceCard    *flexFloat  `json:"priceCard"`
	PricePaypal  *flexFloat  `json:"pricePaypal"`
	BestCoupon   *pageCoupon `json:"bestCoupon"`
	Merchant     flexString  `json:"merchant"`
	Edition      flexString  `json:"edition"`
	Availability string      `json:"availability"`
	Account      bool        `json:"account"`
}

type pageMerchant struct {
	ID   flexString `json:"id"`
	Name string     `json:"name"`
}

type pageEdition struct {
	ID   flexString `json:"id"`
	Name string     `json:"name"`
}

type pageCoupon struct {
	Code string `json:"code"`
}

// sellerName resolves an offer's merchant ID against the page's merchant
// table, falling back to the raw ID when the table is incomplete.
func (p *gamePage) sellerName(id flexString) string {
	if m, ok := p.Merchants[string(id)]; ok && m.Name != "" {
		return m.Name
	}
	for _, m := range p.Merchants {
		if m.ID == id && m.Name != "" {
			return m.Name
		}
	}
	return string(id)
}

// mapAvailability coerces an upstream availability string into the
// three-valued enum. Unrecognized values are unknown, not an error.
func mapAvailability(s string) model.Availability {
	v := strings.ToLower(strings.TrimSpace(s))
	v = strings.TrimPrefix(v, "http://schema.org/")
	v = strings.TrimPrefix(v, "https://schema.org/")
	v = strings.ReplaceAll(v, " ", "_")
	v = strings.ReplaceAll(v, "-", "_")
	switch v {
	case "instock", "in_stock", "available":
		return model.InStock
	case "outofstock", "out_of_stock", "soldout", "sold_out", "unavailable":
		return model.OutOfStock
	default:
		return model.AvailabilityUnknown
	}
}

// flexFloat accepts a JSON number or a numeric string, including the
// decimal-comma form the German storefront emits.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("price is neither number nor string: %s", b)
	}
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "€$£ ")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return fmt.Errorf("empty price string")
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("price %q: %w", s, err)
	}
	*f = flexFloat(n)
	return nil
}

type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var n flexFloat
	if err := n.UnmarshalJSON(b); err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

// flexString accepts a JSON string or number, since upstream IDs appear in
// both forms.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", b)
	}
	*f = flexString(n.String())
	return nil
}
