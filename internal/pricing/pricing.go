// Package pricing computes order totals. All arithmetic is fixed-point
// decimal; every monetary amount is rounded to two places before it is
// stored or compared.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"retailops/backend/internal/domain"
)

var (
	ErrEmptyOrder      = errors.New("pricing: order has no line items")
	ErrInvalidQuantity = errors.New("pricing: quantity must be positive")
	ErrInvalidPrice    = errors.New("pricing: unit price must be positive")
	ErrInvalidRate     = errors.New("pricing: rate must be between 0 and 100")
)

var hundred = decimal.NewFromInt(100)

// Line is one priced order line: the unit price already resolved from
// the catalog and the quantity requested.
type Line struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Quote is the result of pricing an order. Total is always
// Subtotal - Discount + Tax, each component rounded to two places.
type Quote struct {
	Lines    []QuotedLine
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

type QuotedLine struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// Price computes the quote for the given lines. The discount applies to
// the subtotal, and tax applies to the discounted amount, never the full
// subtotal. Rates are whole percentages, e.g. 5 for 5%.
func Price(lines []Line, discountPercent, taxPercent decimal.Decimal) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, ErrEmptyOrder
	}
	if !validRate(discountPercent) || !validRate(taxPercent) {
		return Quote{}, ErrInvalidRate
	}

	q := Quote{Lines: make([]QuotedLine, 0, len(lines))}
	subtotal := decimal.Zero
	for _, l := range lines {
		if l.Quantity <= 0 {
			return Quote{}, fmt.Errorf("%w: product %s", ErrInvalidQuantity, l.ProductID)
		}
		if !l.UnitPrice.IsPositive() {
			return Quote{}, fmt.Errorf("%w: product %s", ErrInvalidPrice, l.ProductID)
		}
		lineSub := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
		q.Lines = append(q.Lines, QuotedLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Subtotal:  lineSub,
		})
		subtotal = subtotal.Add(lineSub)
	}

	q.Subtotal = subtotal.Round(2)
	q.Discount = q.Subtotal.Mul(discountPercent).Div(hundred).Round(2)
	taxable := q.Subtotal.Sub(q.Discount)
	q.Tax = taxable.Mul(taxPercent).Div(hundred).Round(2)
	q.Total = taxable.Add(q.Tax).Round(2)
	return q, nil
}

func validRate(r decimal.Decimal) bool {
	return !r.IsNegative() && r.LessThanOrEqual(hundred)
}

// Tier is one membership level: its discount percentage and the
// lifetime spend required to reach it.
type Tier struct {
	Name            domain.MembershipTier
	DiscountPercent decimal.Decimal
	MinSpend        decimal.Decimal
}

// Schedule holds the membership tiers ordered by ascending MinSpend and
// the tax rate to apply at checkout. Rates come from configuration, not
// hard-coded call sites.
type Schedule struct {
	Tiers      []Tier
	TaxPercent decimal.Decimal
}

// DefaultSchedule returns the standard tier ladder with the given tax
// rate.
func DefaultSchedule(taxPercent decimal.Decimal) Schedule {
	return Schedule{
		Tiers: []Tier{
			{Name: domain.TierBronze, DiscountPercent: decimal.Zero, MinSpend: decimal.Zero},
			{Name: domain.TierSilver, DiscountPercent: decimal.NewFromInt(5), MinSpend: decimal.NewFromInt(1000)},
			{Name: domain.TierGold, DiscountPercent: decimal.NewFromInt(10), MinSpend: decimal.NewFromInt(5000)},
			{Name: domain.TierPlatinum, DiscountPercent: decimal.NewFromInt(15), MinSpend: decimal.NewFromInt(10000)},
		},
		TaxPercent: taxPercent,
	}
}

// TierForSpend returns the highest tier whose MinSpend the lifetime
// spend meets or exceeds.
func (s Schedule) TierForSpend(spend decimal.Decimal) Tier {
	var best Tier
	for _, t := range s.Tiers {
		if spend.GreaterThanOrEqual(t.MinSpend) {
			best = t
		}
	}
	return best
}

// DiscountFor returns the discount percentage for the named tier, or
// zero when the tier is unknown.
func (s Schedule) DiscountFor(tier domain.MembershipTier) decimal.Decimal {
	for _, t := range s.Tiers {
		if t.Name == tier {
			return t.DiscountPercent
		}
	}
	return decimal.Zero
}
