package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PricingRules holds the flat shipping fee, tax rate and currency applied at
// checkout and again when an order is reconciled.
type PricingRules struct {
	ShippingFlatFee decimal.Decimal
	TaxRate         decimal.Decimal
	Currency        string
}

// Quote is the price breakdown for a cart subtotal.
type Quote struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
}

// NewPricingRules builds rules from plain config values.
func NewPricingRules(shipping, taxRate float64, currency string) PricingRules {
	return PricingRules{
		ShippingFlatFee: decimal.NewFromFloat(shipping),
		TaxRate:         decimal.NewFromFloat(taxRate),
		Currency:        strings.ToLower(currency),
	}
}

// Quote computes shipping and tax for subtotal. Tax is rounded to cents so the
// amount charged and the amount recorded on the order agree.
func (r PricingRules) Quote(subtotal float64) Quote {
	sub := decimal.NewFromFloat(subtotal).Round(2)
	tax := sub.Mul(r.TaxRate).Round(2)
	return Quote{
		Subtotal: sub,
		Shipping: r.ShippingFlatFee,
		Tax:      tax,
		Total:    sub.Add(r.ShippingFlatFee).Add(tax),
	}
}

// ToMinorUnits converts a major-unit amount to cents, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits converts cents to a major-unit float.
func FromMinorUnits(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}
