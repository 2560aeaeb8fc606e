package pricing

import (
	"fmt"
	"math/bits"
)

// Addon is an accessory bundled into the owning line.
type Addon struct {
	Qty   Quantity
	Price Money
}

// Line describes a line item used for pricing calculation.
type Line struct {
	Qty       Quantity
	UnitPrice Money
	Addons    []Addon
}

// ShopInput groups the lines sold by one shop together with its shipping fee.
type ShopInput struct {
	Lines    []Line
	Shipping Money
}

// Policy holds the cart-wide pricing knobs.
type Policy struct {
	// PaymentFee is the flat transaction fee, waived for an empty cart.
	PaymentFee Money
}

// ShopSummary aggregates computed pricing components for one shop.
type ShopSummary struct {
	Subtotal Money
	Shipping Money
	Total    Money
}

// Summary aggregates computed pricing components for the whole cart.
type Summary struct {
	Shops      []ShopSummary
	ProductQty int64
	ShopQty    int
	Shipping   Money
	Payment    Money
	Discount   Money
	GrandTotal Money
}

// Compute calculates shop and grand totals given the provided inputs.
func Compute(shops []ShopInput, giftCards Money, policy Policy) (Summary, error) {
	if giftCards < 0 || policy.PaymentFee < 0 {
		return Summary{}, fmt.Errorf("%w: negative discount or fee", ErrInvariantViolation)
	}
	out := Summary{
		Shops:    make([]ShopSummary, 0, len(shops)),
		ShopQty:  len(shops),
		Discount: giftCards,
	}
	var gross Money
	for i, shop := range shops {
		if shop.Shipping < 0 {
			return Summary{}, fmt.Errorf("%w: shop %d has negative shipping", ErrInvariantViolation, i)
		}
		var subtotal Money
		for _, line := range shop.Lines {
			amount, err := lineAmount(line)
			if err != nil {
				return Summary{}, fmt.Errorf("shop %d: %w", i, err)
			}
			if subtotal, err = add(subtotal, amount); err != nil {
				return Summary{}, err
			}
			qty, err := add(Money(out.ProductQty), Money(line.Qty))
			if err != nil {
				return Summary{}, err
			}
			out.ProductQty = int64(qty)
		}
		total, err := add(subtotal, shop.Shipping)
		if err != nil {
			return Summary{}, err
		}
		if gross, err = add(gross, total); err != nil {
			return Summary{}, err
		}
		if out.Shipping, err = add(out.Shipping, shop.Shipping); err != nil {
			return Summary{}, err
		}
		out.Shops = append(out.Shops, ShopSummary{Subtotal: subtotal, Shipping: shop.Shipping, Total: total})
	}

	if out.ProductQty == 0 {
		// empty cart pays no fee and owes nothing, whatever gift cards remain on file
		return out, nil
	}
	out.Payment = policy.PaymentFee
	gross, err := add(gross, out.Payment)
	if err != nil {
		return Summary{}, err
	}
	out.GrandTotal = gross - giftCards
	if out.GrandTotal < 0 {
		out.GrandTotal = 0
	}
	return out, nil
}

func lineAmount(line Line) (Money, error) {
	if line.Qty < 0 || line.UnitPrice < 0 {
		return 0, fmt.Errorf("%w: negative qty or price", ErrInvariantViolation)
	}
	amount, err := mul(Money(line.Qty), line.UnitPrice)
	if err != nil {
		return 0, err
	}
	for _, addon := range line.Addons {
		if addon.Qty < 0 || addon.Price < 0 {
			return 0, fmt.Errorf("%w: negative accessory qty or price", ErrInvariantViolation)
		}
		extra, err := mul(Money(addon.Qty), addon.Price)
		if err != nil {
			return 0, err
		}
		if amount, err = add(amount, extra); err != nil {
			return 0, err
		}
	}
	return amount, nil
}

// add and mul operate on non-negative operands only. Overflow is reported as an input error.
func add(a, b Money) (Money, error) {
	sum := a + b
	if sum < a {
		return 0, ErrAmountOutOfRange
	}
	return sum, nil
}

func mul(a, b Money) (Money, error) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > 1<<63-1 {
		return 0, ErrAmountOutOfRange
	}
	return Money(lo), nil
}
