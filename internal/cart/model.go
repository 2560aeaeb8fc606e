package cart

import (
	"github.com/noah-isme/minicart-api/internal/giftcard"
	"github.com/noah-isme/minicart-api/internal/pricing"
)

// Cart is the aggregate of shops, discounts and derived totals.
type Cart struct {
	Shops      []Shop     `json:"shops"`
	Discounts  Discounts  `json:"discounts"`
	Currency   string     `json:"currency"`
	GrandTotal GrandTotal `json:"grandtotal"`
}

// Discounts holds cart-wide discounts.
type Discounts struct {
	GiftCards []giftcard.Card `json:"giftcards"`
}

// Shop is a seller grouping within the cart.
type Shop struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Avatar    string     `json:"avatar,omitempty"`
	Link      string     `json:"link,omitempty"`
	CartItems []CartItem `json:"cart_items"`
	Shipping  Shipping   `json:"shipping"`
	Subtotal  Subtotal   `json:"subtotal"`
}

// Shipping is the flat shipping rule of a shop.
type Shipping struct {
	Method string        `json:"method,omitempty"`
	Price  pricing.Money `json:"price"`
}

// Subtotal is derived by Recalculate, except Discount which is carried as loaded.
type Subtotal struct {
	Subtotal      pricing.Money `json:"subtotal"`
	ShippingPrice pricing.Money `json:"shipping_price"`
	Discount      pricing.Money `json:"discount"`
	Total         pricing.Money `json:"total"`
}

// CartItem wraps one purchasable item.
type CartItem struct {
	Item Item `json:"item"`
}

// Item is a line item addressed by its ObjectID.
type Item struct {
	ObjectID           string           `json:"object_id"`
	ID                 int64            `json:"id"`
	Name               string           `json:"name"`
	Price              pricing.Money    `json:"price"`
	Unit               string           `json:"unit"`
	Qty                pricing.Quantity `json:"qty"`
	MinQty             int64            `json:"min_qty"`
	MaxQty             int64            `json:"max_qty"`
	PackQuantity       int64            `json:"pack_quantity"`
	ToOrderProduct     int              `json:"to_order_product"`
	ToOrderProductTime int              `json:"to_order_product_time"`
	Accessories        *Accessories     `json:"accessories"`
}

// Accessories is nil when the item has no accessory block at all.
type Accessories struct {
	Items []Accessory `json:"items"`
}

// Accessory is an add-on bundled into the owning shop's subtotal.
type Accessory struct {
	ID    int64            `json:"id"`
	Name  string           `json:"name"`
	Qty   pricing.Quantity `json:"qty"`
	Price pricing.Money    `json:"price"`
}

// GrandTotal is entirely derived by Recalculate.
type GrandTotal struct {
	ProductQty    int64         `json:"product_qty"`
	ShopQty       int           `json:"shop_qty"`
	GrandTotal    pricing.Money `json:"grandtotal"`
	ShippingPrice pricing.Money `json:"shipping_price"`
	PaymentPrice  pricing.Money `json:"payment_price"`
	Discount      pricing.Money `json:"discount"`
}

// AccessoryItems returns the accessory lines of the item, if any.
func (i Item) AccessoryItems() []Accessory {
	if i.Accessories == nil {
		return nil
	}
	return i.Accessories.Items
}

// Clone returns a deep copy sharing no memory with c.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	if c.Shops != nil {
		out.Shops = make([]Shop, len(c.Shops))
		for i, shop := range c.Shops {
			out.Shops[i] = shop.clone()
		}
	}
	if c.Discounts.GiftCards != nil {
		out.Discounts.GiftCards = append([]giftcard.Card(nil), c.Discounts.GiftCards...)
	}
	return &out
}

func (s Shop) clone() Shop {
	out := s
	if s.CartItems != nil {
		out.CartItems = make([]CartItem, len(s.CartItems))
		for i, ci := range s.CartItems {
			item := ci.Item
			if item.Accessories != nil {
				acc := *item.Accessories
				if acc.Items != nil {
					acc.Items = append([]Accessory(nil), acc.Items...)
				}
				item.Accessories = &acc
			}
			out.CartItems[i] = CartItem{Item: item}
		}
	}
	return out
}
