package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/noah-isme/minicart-api/internal/cart"
	"github.com/noah-isme/minicart-api/internal/giftcard"
	"github.com/noah-isme/minicart-api/internal/pricing"
)

type change struct {
	objectID string
	qty      int64
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		log.Printf("recalc: %v", err)
		os.Exit(1)
	}
}

// run loads a cart document, applies any -set changes and writes the recalculated cart.
func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("recalc", flag.ContinueOnError)
	var (
		in          = fs.String("in", "-", "cart document to read; - for stdin, empty for the built-in seed")
		fee         = fs.Int64("fee", 290, "payment fee in minor units")
		honorStatus = fs.Bool("honor-status", false, "skip gift cards whose status is not active")
		currency    = fs.String("currency", "HUF", "currency applied when the document has none")
		compact     = fs.Bool("compact", false, "emit compact JSON")
		changes     []change
	)
	fs.Func("set", "object_id=qty change to apply; repeatable", func(v string) error {
		id, raw, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(id) == "" {
			return fmt.Errorf("expected object_id=qty, got %q", v)
		}
		qty, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("qty for %s: %w", id, err)
		}
		changes = append(changes, change{objectID: strings.TrimSpace(id), qty: qty})
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *fee < 0 {
		return errors.New("fee must not be negative")
	}

	seed, err := load(*in, stdin)
	if err != nil {
		return err
	}
	engine, err := cart.NewEngine(seed, cart.EngineOptions{
		Policy: cart.Policy{
			Pricing:   pricing.Policy{PaymentFee: pricing.Money(*fee)},
			GiftCards: giftcard.Policy{HonorStatus: *honorStatus},
		},
		Currency: strings.ToUpper(*currency),
	})
	if err != nil {
		return err
	}

	ctx := context.Background()
	for _, ch := range changes {
		if _, err := engine.ApplyItemQuantityChange(ctx, ch.objectID, ch.qty); err != nil {
			return fmt.Errorf("set %s=%d: %w", ch.objectID, ch.qty, err)
		}
	}

	enc := json.NewEncoder(stdout)
	if !*compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(engine.Get(ctx))
}

func load(path string, stdin io.Reader) (*cart.Cart, error) {
	switch strings.TrimSpace(path) {
	case "":
		return cart.DefaultSeed()
	case "-":
		return cart.Decode(stdin)
	default:
		return cart.LoadFile(path)
	}
}
