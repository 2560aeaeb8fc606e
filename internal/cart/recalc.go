package cart

import (
	"fmt"

	"github.com/noah-isme/minicart-api/internal/giftcard"
	"github.com/noah-isme/minicart-api/internal/pricing"
)

// Policy bundles the pricing and gift-card rules applied on every recalculation.
type Policy struct {
	Pricing   pricing.Policy
	GiftCards giftcard.Policy
}

// Recalculate overwrites every derived field of c from its raw inputs. On error c is untouched.
func Recalculate(c *Cart, p Policy) error {
	discount, err := giftcard.Total(c.Discounts.GiftCards, p.GiftCards)
	if err != nil {
		return err
	}
	inputs := make([]pricing.ShopInput, len(c.Shops))
	for si, shop := range c.Shops {
		lines := make([]pricing.Line, len(shop.CartItems))
		for ii, ci := range shop.CartItems {
			accessories := ci.Item.AccessoryItems()
			line := pricing.Line{Qty: ci.Item.Qty, UnitPrice: ci.Item.Price}
			if len(accessories) > 0 {
				line.Addons = make([]pricing.Addon, len(accessories))
				for ai, acc := range accessories {
					line.Addons[ai] = pricing.Addon{Qty: acc.Qty, Price: acc.Price}
				}
			}
			lines[ii] = line
		}
		inputs[si] = pricing.ShopInput{Lines: lines, Shipping: shop.Shipping.Price}
	}

	summary, err := pricing.Compute(inputs, discount, p.Pricing)
	if err != nil {
		return err
	}
	for si := range c.Shops {
		shopSummary := summary.Shops[si]
		sub := &c.Shops[si].Subtotal
		sub.Subtotal = shopSummary.Subtotal
		sub.ShippingPrice = shopSummary.Shipping
		sub.Total = shopSummary.Total
	}
	c.GrandTotal = GrandTotal{
		ProductQty:    summary.ProductQty,
		ShopQty:       summary.ShopQty,
		GrandTotal:    summary.GrandTotal,
		ShippingPrice: summary.Shipping,
		PaymentPrice:  summary.Payment,
		Discount:      summary.Discount,
	}
	return nil
}

// Verify asserts the structural and derived-field invariants of a recalculated cart.
func Verify(c *Cart) error {
	if c == nil {
		return fmt.Errorf("%w: nil cart", pricing.ErrInvariantViolation)
	}
	seen := make(map[string]struct{})
	var (
		productQty int64
		shipping   pricing.Money
	)
	for _, shop := range c.Shops {
		if len(shop.CartItems) == 0 {
			return fmt.Errorf("%w: shop %d has no items", pricing.ErrInvariantViolation, shop.ID)
		}
		if shop.Subtotal.ShippingPrice != shop.Shipping.Price {
			return fmt.Errorf("%w: shop %d shipping is stale", pricing.ErrInvariantViolation, shop.ID)
		}
		if shop.Subtotal.Total != shop.Subtotal.Subtotal+shop.Subtotal.ShippingPrice {
			return fmt.Errorf("%w: shop %d total is stale", pricing.ErrInvariantViolation, shop.ID)
		}
		for _, ci := range shop.CartItems {
			if _, dup := seen[ci.Item.ObjectID]; dup {
				return fmt.Errorf("%w: duplicate object_id %q", pricing.ErrInvariantViolation, ci.Item.ObjectID)
			}
			seen[ci.Item.ObjectID] = struct{}{}
			productQty += int64(ci.Item.Qty)
		}
		shipping += shop.Shipping.Price
	}
	gt := c.GrandTotal
	switch {
	case gt.ShopQty != len(c.Shops):
		return fmt.Errorf("%w: shop_qty %d, have %d shops", pricing.ErrInvariantViolation, gt.ShopQty, len(c.Shops))
	case gt.ProductQty != productQty:
		return fmt.Errorf("%w: product_qty %d, have %d", pricing.ErrInvariantViolation, gt.ProductQty, productQty)
	case gt.ShippingPrice != shipping:
		return fmt.Errorf("%w: shipping_price is stale", pricing.ErrInvariantViolation)
	case gt.GrandTotal < 0:
		return fmt.Errorf("%w: negative grand total", pricing.ErrInvariantViolation)
	case productQty == 0 && (gt.GrandTotal != 0 || gt.PaymentPrice != 0):
		return fmt.Errorf("%w: empty cart carries a payable amount", pricing.ErrInvariantViolation)
	}
	return nil
}
