package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// Bps is a rate expressed in basis points (10000 == 100%).
type Bps = int64

const bpsScale = 10000

// Stacking controls how the volume and loyalty rates combine.
type Stacking int

const (
	// StackAdditive sums the rates: 5% + 10% == 15%.
	StackAdditive Stacking = iota
	// StackCompound applies rates one after the other: 1-(0.95*0.90) == 14.5%.
	StackCompound
)

func (s Stacking) String() string {
	switch s {
	case StackAdditive:
		return "additive"
	case StackCompound:
		return "compound"
	default:
		return "unknown"
	}
}

// ParseStacking converts a configuration value into a Stacking mode.
func ParseStacking(value string) (Stacking, error) {
	switch value {
	case "", "additive":
		return StackAdditive, nil
	case "compound":
		return StackCompound, nil
	default:
		return StackAdditive, fmt.Errorf("pricing: unknown stacking mode %q", value)
	}
}

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// LoyaltyFacts carries the customer facts that drive the loyalty discount.
type LoyaltyFacts struct {
	IsMember            bool `json:"isMember"`
	CompletedOrderCount int  `json:"completedOrderCount"`
}

// Breakdown is the itemized price of a cart.
type Breakdown struct {
	Subtotal            Money    `json:"subtotal"`
	TotalItemCount      int      `json:"totalItemCount"`
	VolumeDiscountRate  Bps      `json:"volumeDiscountRateBps"`
	LoyaltyDiscountRate Bps      `json:"loyaltyDiscountRateBps"`
	TotalDiscountRate   Bps      `json:"totalDiscountRateBps"`
	DiscountAmount      Money    `json:"discountAmount"`
	DiscountedSubtotal  Money    `json:"discountedSubtotal"`
	Shipping            Money    `json:"shipping"`
	Tax                 Money    `json:"tax"`
	Total               Money    `json:"total"`
	DiscountMessages    []string `json:"discountMessages"`
}

// Policy holds the business constants of the pricing rules.
type Policy struct {
	VolumeThreshold   int
	VolumeRate        Bps
	LoyaltyThreshold  int
	LoyaltyRate       Bps
	TaxRate           Bps
	Shipping          Money
	Stacking          Stacking
	RequireMembership bool
}

// DefaultPolicy returns the storefront's standard rules: 5% off at 5 items,
// 10% off at 10 completed orders, 8% tax after discounts and 4.99 flat shipping.
func DefaultPolicy() Policy {
	return Policy{
		VolumeThreshold:  5,
		VolumeRate:       500,
		LoyaltyThreshold: 10,
		LoyaltyRate:      1000,
		TaxRate:          800,
		Shipping:         499,
		Stacking:         StackAdditive,
	}
}

// Validate reports whether the policy can produce a sane breakdown.
func (p Policy) Validate() error {
	var errs []error
	if p.VolumeThreshold < 0 || p.LoyaltyThreshold < 0 {
		errs = append(errs, errors.New("pricing: thresholds must not be negative"))
	}
	if p.VolumeRate < 0 || p.LoyaltyRate < 0 {
		errs = append(errs, errors.New("pricing: discount rates must not be negative"))
	}
	if p.VolumeRate+p.LoyaltyRate > bpsScale {
		errs = append(errs, errors.New("pricing: combined discount rate exceeds 100%"))
	}
	if p.TaxRate < 0 {
		errs = append(errs, errors.New("pricing: tax rate must not be negative"))
	}
	if p.Shipping < 0 {
		errs = append(errs, errors.New("pricing: shipping must not be negative"))
	}
	return errors.Join(errs...)
}

// ComputeBreakdown prices the items with DefaultPolicy.
func ComputeBreakdown(items []Item, facts LoyaltyFacts) Breakdown {
	return DefaultPolicy().Compute(items, facts)
}

// Compute prices the items for a customer. Missing quantities count as one and
// negative prices as zero; the computation never fails.
func (p Policy) Compute(items []Item, facts LoyaltyFacts) Breakdown {
	var (
		count    int
		subtotal Money
	)
	for _, it := range items {
		qty := it.Qty
		if qty < 1 {
			qty = 1
		}
		price := it.UnitPrice
		if price < 0 {
			price = 0
		}
		count += qty
		subtotal += Money(qty) * price
	}

	// An empty cart carries no discounts at all.
	eligible := count > 0 && (!p.RequireMembership || facts.IsMember)
	var volume, loyalty Bps
	if eligible && count >= p.VolumeThreshold {
		volume = p.VolumeRate
	}
	if eligible && facts.CompletedOrderCount >= p.LoyaltyThreshold {
		loyalty = p.LoyaltyRate
	}

	rate := p.combine(volume, loyalty)
	discount := applyRate(subtotal, rate)
	if discount > subtotal {
		discount = subtotal
	}
	discounted := subtotal - discount
	shipping := p.Shipping
	if shipping < 0 {
		shipping = 0
	}
	tax := applyRate(discounted, decimal.NewFromInt(p.TaxRate))

	messages := make([]string, 0, 2)
	if volume > 0 {
		messages = append(messages, fmt.Sprintf("Volume discount: %s off for buying %d or more books", percent(volume), p.VolumeThreshold))
	}
	if loyalty > 0 {
		messages = append(messages, fmt.Sprintf("Loyalty discount: %s off for %d or more completed orders (you have %d)", percent(loyalty), p.LoyaltyThreshold, facts.CompletedOrderCount))
	}

	return Breakdown{
		Subtotal:            subtotal,
		TotalItemCount:      count,
		VolumeDiscountRate:  volume,
		LoyaltyDiscountRate: loyalty,
		TotalDiscountRate:   rate.Round(0).IntPart(),
		DiscountAmount:      discount,
		DiscountedSubtotal:  discounted,
		Shipping:            shipping,
		Tax:                 tax,
		Total:               discounted + shipping + tax,
		DiscountMessages:    messages,
	}
}

// combine returns the total discount rate in basis points. Compound rates can
// be fractional so the full precision is kept for the discount amount.
func (p Policy) combine(volume, loyalty Bps) decimal.Decimal {
	if p.Stacking == StackCompound {
		scale := decimal.NewFromInt(bpsScale)
		keepVolume := scale.Sub(decimal.NewFromInt(volume)).Div(scale)
		keepLoyalty := scale.Sub(decimal.NewFromInt(loyalty)).Div(scale)
		return decimal.NewFromInt(1).Sub(keepVolume.Mul(keepLoyalty)).Mul(scale)
	}
	return decimal.NewFromInt(volume + loyalty)
}

// applyRate returns amount*rate rounded half away from zero to the minor unit.
func applyRate(amount Money, rate decimal.Decimal) Money {
	if amount <= 0 || !rate.IsPositive() {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(rate).Div(decimal.NewFromInt(bpsScale)).Round(0).IntPart()
}

func percent(rate Bps) string {
	return decimal.NewFromInt(rate).Div(decimal.NewFromInt(100)).String() + "%"
}
