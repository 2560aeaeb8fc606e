package cart

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/minicart-api/internal/pricing"
)

func TestDefaultSeed(t *testing.T) {
	c, err := DefaultSeed()
	require.NoError(t, err)
	require.Len(t, c.Shops, 1)
	require.Equal(t, "HUF", c.Currency)

	shop := c.Shops[0]
	require.Equal(t, int64(592000005565), shop.ID)
	require.Equal(t, pricing.Money(1490), shop.Shipping.Price, "flattened shipping_price resolved")
	require.Len(t, shop.CartItems, 2)

	first := shop.CartItems[0].Item
	require.Equal(t, "36e402497", first.ObjectID)
	require.Equal(t, pricing.Money(5000), first.Price)
	require.Equal(t, 1, first.ToOrderProduct)
	require.Len(t, first.AccessoryItems(), 1)

	second := shop.CartItems[1].Item
	require.NotNil(t, second.Accessories)
	require.Nil(t, second.AccessoryItems())

	require.NoError(t, Recalculate(c, testPolicy))
	require.Equal(t, pricing.Money(22500), c.Shops[0].Subtotal.Subtotal)
	require.Equal(t, pricing.Money(23990), c.Shops[0].Subtotal.Total)
	require.Equal(t, int64(4), c.GrandTotal.ProductQty)
	require.Equal(t, pricing.Money(19280), c.GrandTotal.GrandTotal)
}

func TestDecodeNestedShippingLayout(t *testing.T) {
	doc := `{
		"shops": [{
			"id": 7,
			"name": "Nested",
			"cart_items": [{"item": {"object_id": "a", "price": 100, "qty": "3", "accessories": null}}],
			"shipping": {"method": "courier", "price": "990"},
			"subtotal": {"shipping_price": "1"}
		}],
		"discounts": {"giftcards": []},
		"currency": "HUF"
	}`
	c, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	shop := c.Shops[0]
	require.Equal(t, Shipping{Method: "courier", Price: 990}, shop.Shipping)
	require.Equal(t, pricing.Quantity(3), shop.CartItems[0].Item.Qty)
	require.Nil(t, shop.CartItems[0].Item.Accessories)

	require.NoError(t, Recalculate(c, testPolicy))
	require.Equal(t, pricing.Money(990), c.Shops[0].Subtotal.ShippingPrice)
	require.Equal(t, pricing.Money(1290), c.Shops[0].Subtotal.Total)
}

func TestDecodeAssignsMissingObjectIDs(t *testing.T) {
	doc := `{"shops":[{"id":1,"cart_items":[{"item":{"price":"1","qty":1}},{"item":{"price":"1","qty":1}}]}]}`
	c, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	a := c.Shops[0].CartItems[0].Item.ObjectID
	b := c.Shops[0].CartItems[1].Item.ObjectID
	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	require.NotEqual(t, a, b)
}

func TestDecodeRejections(t *testing.T) {
	cases := map[string]struct {
		doc string
		err error
	}{
		"garbled price": {
			doc: `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"a","price":"50x0","qty":1}}]}]}`,
			err: pricing.ErrMalformedNumeric,
		},
		"fractional price": {
			doc: `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"a","price":"10.5","qty":1}}]}]}`,
			err: pricing.ErrMalformedNumeric,
		},
		"garbled accessory qty": {
			doc: `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"a","price":"1","qty":1,"accessories":{"items":[{"qty":"five","price":"1"}]}}}]}]}`,
			err: pricing.ErrMalformedNumeric,
		},
		"missing item price": {
			doc: `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"a","qty":2}}]}]}`,
			err: pricing.ErrMalformedNumeric,
		},
		"null item price": {
			doc: `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"a","price":null,"qty":2}}]}]}`,
			err: pricing.ErrMalformedNumeric,
		},
		"missing item qty": {
			doc: `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"a","price":"100"}}]}]}`,
			err: pricing.ErrMalformedNumeric,
		},
		"missing accessory qty": {
			doc: `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"a","price":"100","qty":1,"accessories":{"items":[{"id":1,"price":"500"}]}}}]}]}`,
			err: pricing.ErrMalformedNumeric,
		},
		"missing accessory price": {
			doc: `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"a","price":"100","qty":1,"accessories":{"items":[{"id":1,"qty":5}]}}}]}]}`,
			err: pricing.ErrMalformedNumeric,
		},
		"exponent price": {
			doc: `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"a","price":"1e3","qty":1}}]}]}`,
			err: pricing.ErrMalformedNumeric,
		},
		"negative qty": {
			doc: `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"a","price":"1","qty":-2}}]}]}`,
			err: pricing.ErrMalformedNumeric,
		},
		"empty shop": {
			doc: `{"shops":[{"id":1,"cart_items":[]}]}`,
			err: pricing.ErrInvariantViolation,
		},
		"duplicate object id": {
			doc: `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"a","price":"1","qty":1}}]},{"id":2,"cart_items":[{"item":{"object_id":"a","price":"1","qty":1}}]}]}`,
			err: pricing.ErrInvariantViolation,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.doc))
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestDecodeErrorNamesItem(t *testing.T) {
	doc := `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"no-price","qty":2}}]}]}`
	_, err := Decode(strings.NewReader(doc))
	require.ErrorIs(t, err, pricing.ErrMalformedNumeric)
	require.ErrorContains(t, err, `"no-price"`)
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	doc := `{"shops":[{"id":1,"cart_items":[{"item":{"object_id":"a","price":"1","qty":1}}]}]}`

	_, err := Decode(strings.NewReader(doc + "\n"))
	require.NoError(t, err)

	for _, tail := range []string{"garbage", "{}", `{"shops":[]}`, "]"} {
		_, err := Decode(strings.NewReader(doc + tail))
		require.Error(t, err, "tail %q", tail)
	}
}

func TestLoadFileRoundTrip(t *testing.T) {
	seed, err := DefaultSeed()
	require.NoError(t, err)
	require.NoError(t, Recalculate(seed, testPolicy))
	data, err := json.Marshal(seed)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "cart.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, Recalculate(loaded, testPolicy))
	require.Equal(t, seed, loaded)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
