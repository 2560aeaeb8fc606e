package cart

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/minicart-api/internal/events"
	"github.com/noah-isme/minicart-api/internal/obs"
	"github.com/noah-isme/minicart-api/internal/pricing"
)

// ErrNotFound indicates no line item carries the requested object id.
var ErrNotFound = errors.New("item not found")

// EngineOptions configures an Engine.
type EngineOptions struct {
	Policy   Policy
	Currency string
	Events   *events.Bus
	Metrics  *obs.CartMetrics
	Logger   *zerolog.Logger
}

// Engine owns one cart and serialises every mutation behind a single-writer lock.
type Engine struct {
	mu      sync.Mutex
	cart    *Cart
	policy  Policy
	events  *events.Bus
	metrics *obs.CartMetrics
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewEngine takes ownership of seed and computes its derived totals.
func NewEngine(seed *Cart, opts EngineOptions) (*Engine, error) {
	if seed == nil {
		return nil, errors.New("cart: seed is required")
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	c := seed.Clone()
	if strings.TrimSpace(c.Currency) == "" {
		c.Currency = opts.Currency
	}
	if err := Recalculate(c, opts.Policy); err != nil {
		return nil, fmt.Errorf("cart: recalculate seed: %w", err)
	}
	if err := Verify(c); err != nil {
		return nil, fmt.Errorf("cart: verify seed: %w", err)
	}
	e := &Engine{
		cart:    c,
		policy:  opts.Policy,
		events:  opts.Events,
		metrics: opts.Metrics,
		logger:  logger,
		tracer:  otel.Tracer("cart.engine"),
	}
	e.metrics.ObserveRecalc(0, int64(c.GrandTotal.GrandTotal), c.GrandTotal.ProductQty, c.GrandTotal.ShopQty)
	return e, nil
}

// Get returns a snapshot of the cart as of the last completed mutation.
func (e *Engine) Get(ctx context.Context) Cart {
	_, span := e.tracer.Start(ctx, "cart.Get")
	defer span.End()
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.cart.Clone()
}

// Check re-verifies the invariants of the owned cart.
func (e *Engine) Check(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Verify(e.cart)
}

type change struct {
	ShopID      int64            `json:"shop_id"`
	ObjectID    string           `json:"object_id"`
	PreviousQty pricing.Quantity `json:"previous_qty"`
	Qty         pricing.Quantity `json:"qty"`
	Removed     bool             `json:"removed"`
	ShopRemoved bool             `json:"shop_removed"`
}

// ApplyItemQuantityChange sets the quantity of the addressed item, removing it when qty <= 0
// and dropping its shop when that empties it, then recalculates every derived total. Bounds
// such as min_qty and max_qty are not enforced. On any error the cart is left unchanged.
func (e *Engine) ApplyItemQuantityChange(ctx context.Context, objectID string, qty int64) (Cart, error) {
	ctx, span := e.tracer.Start(ctx, "cart.ApplyItemQuantityChange", trace.WithAttributes(
		attribute.String("cart.object_id", objectID),
		attribute.Int64("cart.qty", qty),
	))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.cart.Clone()
	ch, err := applyChange(next, objectID, qty)
	if err != nil {
		e.metrics.ObserveMutation("not_found")
		span.SetStatus(codes.Error, err.Error())
		return Cart{}, err
	}

	start := time.Now()
	if err := Recalculate(next, e.policy); err != nil {
		return Cart{}, e.fail(span, objectID, err)
	}
	if err := Verify(next); err != nil {
		return Cart{}, e.fail(span, objectID, err)
	}
	took := time.Since(start)
	e.cart = next

	result := "updated"
	if ch.Removed {
		result = "removed"
	}
	e.metrics.ObserveMutation(result)
	gt := next.GrandTotal
	e.metrics.ObserveRecalc(took, int64(gt.GrandTotal), gt.ProductQty, gt.ShopQty)
	e.logger.Debug().
		Str("object_id", objectID).
		Int64("qty", qty).
		Bool("removed", ch.Removed).
		Bool("shop_removed", ch.ShopRemoved).
		Str("grandtotal", gt.GrandTotal.String()).
		Msg("cart item quantity changed")
	e.emit(ctx, ch)

	return *next.Clone(), nil
}

func (e *Engine) fail(span trace.Span, objectID string, err error) error {
	e.metrics.ObserveMutation("error")
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	evt := e.logger.Error()
	if errors.Is(err, pricing.ErrMalformedNumeric) {
		evt = e.logger.Warn()
	}
	evt.Err(err).Str("object_id", objectID).Msg("cart recalculation failed")
	return err
}

// emit runs under the engine lock so events are observed in mutation order.
func (e *Engine) emit(ctx context.Context, ch change) {
	if e.events == nil {
		return
	}
	var err error
	if ch.Removed {
		_, err = e.events.Emit(ctx, events.TopicItemRemoved, ch.ObjectID, ch)
	} else {
		_, err = e.events.Emit(ctx, events.TopicItemQuantityChanged, ch.ObjectID, ch)
	}
	if ch.ShopRemoved {
		_, shopErr := e.events.Emit(ctx, events.TopicShopRemoved, strconv.FormatInt(ch.ShopID, 10), map[string]int64{"shop_id": ch.ShopID})
		err = errors.Join(err, shopErr)
	}
	if err != nil {
		e.logger.Warn().Err(err).Str("object_id", ch.ObjectID).Msg("emit cart event")
	}
}

func applyChange(c *Cart, objectID string, qty int64) (change, error) {
	for si := range c.Shops {
		shop := &c.Shops[si]
		for ii := range shop.CartItems {
			item := &shop.CartItems[ii].Item
			if item.ObjectID != objectID {
				continue
			}
			ch := change{ShopID: shop.ID, ObjectID: objectID, PreviousQty: item.Qty}
			if qty > 0 {
				item.Qty = pricing.Quantity(qty)
				ch.Qty = item.Qty
				return ch, nil
			}
			ch.Removed = true
			shop.CartItems = append(shop.CartItems[:ii], shop.CartItems[ii+1:]...)
			if len(shop.CartItems) == 0 {
				c.Shops = append(c.Shops[:si], c.Shops[si+1:]...)
				ch.ShopRemoved = true
			}
			return ch, nil
		}
	}
	return change{}, fmt.Errorf("%w: %s", ErrNotFound, objectID)
}
