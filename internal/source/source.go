// Package source maps a requested currency to the regional storefront that
// serves it. The set of sites is fixed at compile time; an unrecognized
// currency fails closed rather than falling back.
package source

import (
	"errors"
	"fmt"

	"keywatch/internal/model"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// Site is one regional price-comparison storefront.
type Site struct {
	BaseURL  string
	Locale   string
	Currency model.Currency

	// ProductPath is the printf pattern for a product page, keyed by slug.
	ProductPath string
}

// ProductURL builds the product page address for a game slug.
func (s Site) ProductURL(slug string) string {
	return s.BaseURL + fmt.Sprintf(s.ProductPath, slug)
}

var sites = map[model.Currency]Site{
	model.EUR: {
		BaseURL:     "https://www.keyforsteam.de",
		Locale:      "de-DE",
		Currency:    model.EUR,
		ProductPath: "/%s-key-kaufen-preisvergleich/",
	},
	model.USD: {
		BaseURL:     "https://www.allkeyshop.com",
		Locale:      "en-US",
		Currency:    model.USD,
		ProductPath: "/blog/buy-%s-cd-key-compare-prices/",
	},
	model.GBP: {
		BaseURL:     "https://www.allkeyshop.co.uk",
		Locale:      "en-GB",
		Currency:    model.GBP,
		ProductPath: "/blog/buy-%s-cd-key-compare-prices/",
	},
}

// Select returns the single site serving the requested currency.
func Select(c model.Currency) (Site, error) {
	site, ok := sites[c]
	if !ok {
		return Site{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, c)
	}
	return site, nil
}

// Currencies lists the supported currencies in a stable order.
func Currencies() []model.Currency {
	return []model.Currency{model.EUR, model.USD, model.GBP}
}
