package domain

import "github.com/shopspring/decimal"

// Discount carries the two mutually exclusive discount inputs. A Percent
// greater than zero overrides the fixed amount.
type Discount struct {
	Percent    float64
	FixedCents int64
}

// Totals is the derived monetary breakdown of an invoice.
//
// VAT and the discount apply only to the taxable base (material, labor,
// flat_fee). Rental line amounts are added to the net after the
// discount/VAT computation and are never taxed by this engine.
type Totals struct {
	SubtotalTaxableCents int64
	SubtotalRentalCents  int64
	SubtotalCents        int64
	DiscountCents        int64
	NetTaxableCents      int64
	NetCents             int64
	VATCents             int64
	GrossCents           int64
}

// Valuate computes the line total of a single position:
// round(quantity × unitPrice) at cent precision.
func Valuate(quantity float64, unitPriceCents int64) (int64, error) {
	if quantity < 0 {
		return 0, ErrInvalidQuantity
	}
	if unitPriceCents < 0 {
		return 0, ErrInvalidUnitPrice
	}
	total := decimal.NewFromFloat(quantity).
		Mul(decimal.NewFromInt(unitPriceCents)).
		Round(0)
	return total.IntPart(), nil
}

// ComputeTotals aggregates the positions of an invoice into the derived
// monetary fields. It is a pure function: same inputs yield bit-identical
// outputs, and position order never matters.
//
// Zero positions is not an error; all totals are zero. A discount exceeding
// the taxable subtotal is clamped to the subtotal, never producing a
// negative net.
func ComputeTotals(positions []Position, discount Discount, vatRate float64) (Totals, error) {
	if vatRate < 0 || vatRate > 100 {
		return Totals{}, ErrInvalidVATRate
	}
	if discount.Percent < 0 || discount.Percent > 100 || discount.FixedCents < 0 {
		return Totals{}, ErrInvalidDiscount
	}

	var taxable, rental int64
	for _, p := range positions {
		if !p.Kind.Valid() {
			return Totals{}, ErrInvalidKind
		}
		line, err := Valuate(p.Quantity, p.UnitPriceCents)
		if err != nil {
			return Totals{}, err
		}
		if p.Kind.IsRental() {
			rental += line
		} else {
			taxable += line
		}
	}

	var discountCents int64
	if discount.Percent > 0 {
		discountCents = decimal.NewFromInt(taxable).
			Mul(decimal.NewFromFloat(discount.Percent)).
			Div(decimal.NewFromInt(100)).
			Round(0).
			IntPart()
	} else {
		discountCents = discount.FixedCents
	}
	// Clamped so the discount never drives the taxable base negative.
	if discountCents > taxable {
		discountCents = taxable
	}

	netTaxable := taxable - discountCents
	vatCents := decimal.NewFromInt(netTaxable).
		Mul(decimal.NewFromFloat(vatRate)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()

	net := netTaxable + rental
	return Totals{
		SubtotalTaxableCents: taxable,
		SubtotalRentalCents:  rental,
		SubtotalCents:        taxable + rental,
		DiscountCents:        discountCents,
		NetTaxableCents:      netTaxable,
		NetCents:             net,
		VATCents:             vatCents,
		GrossCents:           net + vatCents,
	}, nil
}
