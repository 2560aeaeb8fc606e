package cart

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/minicart-api/internal/pricing"
)

//go:embed seed.json
var seedJSON []byte

// DefaultSeed returns the built-in initial cart. Derived totals are not yet computed.
func DefaultSeed() (*Cart, error) {
	return Decode(bytes.NewReader(seedJSON))
}

// LoadFile decodes a cart document from disk.
func LoadFile(path string) (*Cart, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cart seed: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a single cart document and normalises it. Both shipping layouts are accepted,
// missing object ids are assigned, and numeric fields are parsed exactly once here.
func Decode(r io.Reader) (*Cart, error) {
	var c Cart
	dec := json.NewDecoder(r)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	seen := make(map[string]struct{})
	for si := range c.Shops {
		shop := &c.Shops[si]
		if len(shop.CartItems) == 0 {
			return nil, fmt.Errorf("%w: shop %d has no items", pricing.ErrInvariantViolation, shop.ID)
		}
		for ii := range shop.CartItems {
			item := &shop.CartItems[ii].Item
			item.ObjectID = strings.TrimSpace(item.ObjectID)
			if item.ObjectID == "" {
				item.ObjectID = uuid.NewString()
			}
			if _, dup := seen[item.ObjectID]; dup {
				return nil, fmt.Errorf("%w: duplicate object_id %q", pricing.ErrInvariantViolation, item.ObjectID)
			}
			seen[item.ObjectID] = struct{}{}
		}
	}
	return &c, nil
}

var errTrailingData = errors.New("decode cart: unexpected data after document")

type shopWire struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Avatar    string       `json:"avatar"`
	Link      string       `json:"link"`
	CartItems []CartItem   `json:"cart_items"`
	Shipping  *Shipping    `json:"shipping"`
	Subtotal  subtotalWire `json:"subtotal"`
}

type subtotalWire struct {
	Subtotal      *pricing.Money `json:"subtotal"`
	ShippingPrice *pricing.Money `json:"shipping_price"`
	Discount      *pricing.Money `json:"discount"`
	Total         *pricing.Money `json:"total"`
}

// UnmarshalJSON resolves the shop shipping fee from either the nested shipping block or the
// flattened subtotal.shipping_price. The nested block wins when both are present.
func (s *Shop) UnmarshalJSON(data []byte) error {
	var w shopWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Shop{
		ID:        w.ID,
		Name:      w.Name,
		Avatar:    w.Avatar,
		Link:      w.Link,
		CartItems: w.CartItems,
	}
	switch {
	case w.Shipping != nil:
		s.Shipping = *w.Shipping
	case w.Subtotal.ShippingPrice != nil:
		s.Shipping = Shipping{Price: *w.Subtotal.ShippingPrice}
	}
	if w.Subtotal.Discount != nil {
		s.Subtotal.Discount = *w.Subtotal.Discount
	}
	return nil
}

type itemFields Item

type itemWire struct {
	itemFields
	Price       *pricing.Money    `json:"price"`
	Qty         *pricing.Quantity `json:"qty"`
	Accessories *accessoriesWire  `json:"accessories"`
}

type accessoriesWire struct {
	Items []accessoryWire `json:"items"`
}

type accessoryWire struct {
	ID    int64             `json:"id"`
	Name  string            `json:"name"`
	Qty   *pricing.Quantity `json:"qty"`
	Price *pricing.Money    `json:"price"`
}

// UnmarshalJSON requires price and qty on the item and on each of its accessories. An absent
// or null value is malformed and never read as zero.
func (i *Item) UnmarshalJSON(data []byte) error {
	var w itemWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	id := strings.TrimSpace(w.ObjectID)
	if w.Price == nil {
		return fmt.Errorf("%w: item %q has no price", pricing.ErrMalformedNumeric, id)
	}
	if w.Qty == nil {
		return fmt.Errorf("%w: item %q has no qty", pricing.ErrMalformedNumeric, id)
	}
	item := Item(w.itemFields)
	item.Price = *w.Price
	item.Qty = *w.Qty
	if w.Accessories != nil {
		item.Accessories = &Accessories{}
		if w.Accessories.Items != nil {
			item.Accessories.Items = make([]Accessory, len(w.Accessories.Items))
		}
		for ai, acc := range w.Accessories.Items {
			if acc.Qty == nil {
				return fmt.Errorf("%w: item %q accessory %d has no qty", pricing.ErrMalformedNumeric, id, ai)
			}
			if acc.Price == nil {
				return fmt.Errorf("%w: item %q accessory %d has no price", pricing.ErrMalformedNumeric, id, ai)
			}
			item.Accessories.Items[ai] = Accessory{ID: acc.ID, Name: acc.Name, Qty: *acc.Qty, Price: *acc.Price}
		}
	}
	*i = item
	return nil
}
