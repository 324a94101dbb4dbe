// Package app assembles the booking core from configuration.  The HTTP
// server and the background worker share it so both run the same
// workflow against the same stores.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-ticketing/internal/artifact"
	"github.com/iliyamo/cinema-ticketing/internal/clock"
	"github.com/iliyamo/cinema-ticketing/internal/config"
	"github.com/iliyamo/cinema-ticketing/internal/inventory"
	"github.com/iliyamo/cinema-ticketing/internal/order"
	"github.com/iliyamo/cinema-ticketing/internal/payment"
	"github.com/iliyamo/cinema-ticketing/internal/pricing"
	"github.com/iliyamo/cinema-ticketing/internal/repository"
	"github.com/iliyamo/cinema-ticketing/internal/reservation"
	"github.com/iliyamo/cinema-ticketing/internal/sequence"
)

// Core is the wired booking core.
type Core struct {
	Ledger       *inventory.Ledger
	Reservations *reservation.Manager
	Workflow     *order.Workflow
	Renderer     *artifact.QRRenderer
}

// Build wires repositories, strategies and the settlement workflow.  rdb
// may be nil unless the Redis booking sequence is configured.
// Confirmation hooks are left to the caller.
func Build(cfg config.Config, db *sql.DB, rdb *redis.Client) (*Core, error) {
	loc, err := time.LoadLocation(cfg.Pricing.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("pricing timezone: %w", err)
	}
	holidays, err := pricing.ParseHolidays(cfg.Pricing.Holidays)
	if err != nil {
		return nil, err
	}

	var counter sequence.Counter
	switch cfg.SequenceBackend {
	case "redis":
		if rdb == nil {
			return nil, errors.New("booking sequence: redis backend configured but redis is unavailable")
		}
		counter = sequence.NewRedis(rdb)
	default:
		counter = repository.NewBookingSequenceRepo(db)
	}

	var gateway payment.Gateway = payment.NewHTTPGateway(cfg.Payment.BaseURL, cfg.Payment.KeyID, cfg.Payment.KeySecret,
		cfg.Payment.Currency, cfg.Payment.Timeout, logrus.StandardLogger())
	if cfg.Payment.TestMode {
		logrus.Warn("payment test mode: sandbox gateway and signature checks disabled")
		gateway = payment.SandboxGateway{Currency: cfg.Payment.Currency}
	}

	clk := clock.System{}
	tx := repository.NewTxManager(db)
	shows := repository.NewShowRepo(db)
	catalog := repository.NewCatalogRepo(db)
	bookings := repository.NewBookingRepo(db)
	seatHolds := repository.NewSeatHoldRepo(db)
	ticketHolds := repository.NewTicketHoldRepo(db)

	ledger := inventory.NewLedger(shows, clk,
		inventory.NewSeatStrategy(catalog, seatHolds, bookings),
		inventory.NewCategoryStrategy(catalog, ticketHolds, bookings),
	)
	manager := reservation.NewManager(tx, shows, ledger, clk, cfg.HoldTTL, seatHolds, ticketHolds)

	wf := order.New(order.Deps{
		Tx:           tx,
		Shows:        shows,
		Catalog:      catalog,
		Bookings:     bookings,
		Transactions: repository.NewTransactionRepo(db),
		Discounts:    repository.NewDiscountRepo(db),
		Loyalty:      repository.NewLoyaltyRepo(db),
		Ledger:       ledger,
		Reservations: manager,
		Pricing: pricing.Engine{
			PlatformFee: cfg.Pricing.PlatformFee,
			TaxRate:     cfg.Pricing.TaxRate,
			Currency:    cfg.Payment.Currency,
			Calendar:    pricing.Calendar{Holidays: holidays, Location: loc},
		},
		Gateway:    gateway,
		Verifier:   payment.Verifier{Secret: cfg.Payment.KeySecret, TestMode: cfg.Payment.TestMode},
		Numbers:    sequence.Numberer{Clock: clk, Counter: counter, Location: loc},
		Clock:      clk,
		StaleAfter: cfg.StaleAfter,
	})

	renderer := artifact.NewQRRenderer(cfg.Artifact.Dir, artifact.BaseURL(cfg.Artifact.BaseURL))
	renderer.Location = loc

	return &Core{Ledger: ledger, Reservations: manager, Workflow: wf, Renderer: renderer}, nil
}
