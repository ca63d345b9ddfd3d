// Package extract fetches a product page from a regional storefront and
// turns its embedded structured offer block into a PriceRecord.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sort"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"keywatch/internal/model"
	"keywatch/internal/source"
)

const maxTopOffers = 5

// Every product page carries exactly one gamePageTrans object in an inline
// script; it is the machine-readable counterpart of the rendered offer list.
var pageTransRe = regexp.MustCompile(`(?s)var\s+gamePageTrans\s*=\s*(\{.*?\});`)

type Options struct {
	// AllowAccounts keeps offers that sell a whole account instead of a key.
	AllowAccounts bool
	// PaymentMethod picks which upstream price field counts; defaults to
	// lowest_fees.
	PaymentMethod model.PaymentMethod
	Timeout       time.Duration
}

type Extractor struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
	now     func() time.Time
}

func New(opts Options) *Extractor {
	if opts.PaymentMethod == "" {
		opts.PaymentMethod = model.PaymentLowestFees
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	return &Extractor{
		client:  &http.Client{Timeout: opts.Timeout},
		limiter: rate.NewLimiter(rate.Every(time.Second), 2),
		opts:    opts,
		now:     time.Now,
	}
}

// Extract fetches the product page for game on site and returns a fresh
// PriceRecord. Failures carry the taxonomy kind: not_found for a missing
// page, parse for a missing or drifted structured block, network otherwise.
// A page with zero offers is a success with a nil LowPrice.
func (x *Extractor) Extract(ctx context.Context, site source.Site, game model.TrackedGame) (*model.PriceRecord, error) {
	url := site.ProductURL(game.Slug)

	if err := x.limiter.Wait(ctx); err != nil {
		return nil, networkErr(url, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, networkErr(url, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Accept-Language", site.Locale)

	resp, err := x.client.Do(req)
	if err != nil {
		return nil, networkErr(url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, notFoundErr(url)
	case resp.StatusCode != http.StatusOK:
		return nil, networkErr(url, fmt.Errorf("upstream status %d", resp.StatusCode))
	}

	page, err := decodePage(resp.Body, url)
	if err != nil {
		return nil, err
	}
	return x.buildRecord(page, url, game), nil
}

func decodePage(r io.Reader, url string) (*gamePage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, parseErr(url, err)
	}

	var raw string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := pageTransRe.FindStringSubmatch(s.Text()); m != nil {
			raw = m[1]
			return false
		}
		return true
	})
	if raw == "" {
		return nil, parseErr(url, fmt.Errorf("gamePageTrans block missing"))
	}

	var page gamePage
	if err := json.Unmarshal([]byte(raw), &page); err != nil {
		return nil, parseErr(url, err)
	}
	return &page, nil
}

func (x *Extractor) buildRecord(page *gamePage, url string, game model.TrackedGame) *model.PriceRecord {
	type line struct {
		offer  model.Offer
		coupon string
	}

	lines := make([]line, 0, len(page.Prices))
	for _, p := range page.Prices {
		if p.Account && !x.opts.AllowAccounts {
			continue
		}
		price, ok := effectivePrice(p, x.opts.PaymentMethod)
		if !ok {
			continue
		}
		l := line{offer: model.Offer{
			Seller:       page.sellerName(p.Merchant),
			Price:        price,
			Availability: mapAvailability(p.Availability),
		}}
		if p.BestCoupon != nil {
			l.coupon = p.BestCoupon.Code
		}
		lines = append(lines, l)
	}

	// Stable sort keeps the upstream listing order between equal prices.
	sort.SliceStable(lines, func(i, j int) bool {
		return lines[i].offer.Price < lines[j].offer.Price
	})

	rec := &model.PriceRecord{
		ProductID:  game.ProductID,
		Currency:   game.Currency,
		OfferCount: len(lines),
		ProductURL: url,
		FetchedAt:  x.now(),
	}
	if page.Rating != nil {
		v := float64(*page.Rating)
		rec.Rating = &v
	}
	if page.RatingCount != nil {
		v := int(*page.RatingCount)
		rec.RatingCount = &v
	}
	if len(lines) == 0 {
		return rec
	}

	low := lines[0].offer.Price
	high := lines[len(lines)-1].offer.Price
	rec.LowPrice = &low
	rec.HighPrice = &high
	rec.BestSeller = lines[0].offer.Seller
	rec.BestCoupon = lines[0].coupon

	n := len(lines)
	if n > maxTopOffers {
		n = maxTopOffers
	}
	rec.TopOffers = make([]model.Offer, n)
	for i := 0; i < n; i++ {
		rec.TopOffers[i] = lines[i].offer
	}
	return rec
}

// effectivePrice applies the configured payment method. Offers without any
// usable price field are skipped rather than treated as free.
func effectivePrice(p pageOffer, method model.PaymentMethod) (float64, bool) {
	var base *float64
	if p.Price != nil {
		v := float64(*p.Price)
		base = &v
	}
	var card, paypal *float64
	if p.PriceCard != nil {
		v := float64(*p.PriceCard)
		card = &v
	}
	if p.PricePaypal != nil {
		v := float64(*p.PricePaypal)
		paypal = &v
	}

	pick := func(preferred *float64) (float64, bool) {
		if preferred != nil {
			return *preferred, true
		}
		if base != nil {
			return *base, true
		}
		return 0, false
	}

	switch method {
	case model.PaymentBase:
		return pick(nil)
	case model.PaymentCard:
		return pick(card)
	case model.PaymentPaypal:
		return pick(paypal)
	default: // lowest_fees
		var best *float64
		for _, c := range []*float64{card, paypal} {
			if c != nil && (best == nil || *c < *best) {
				best = c
			}
		}
		return pick(best)
	}
}
