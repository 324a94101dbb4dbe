package order

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/repository"
)

const reasonStale = "payment not completed in time"

// CancelStale cancels every booking still pending after StaleAfter and
// fails its transaction.  Seats return to the ledger once their holds
// lapse, which happens at the same time for holds taken at order time.
// Transaction rows are locked before booking rows, matching VerifyPayment
// and FailTransaction.
func (w *Workflow) CancelStale(ctx context.Context) (int64, error) {
	now := w.Clock.Now()
	cutoff := now.Add(-w.StaleAfter)
	var cancelled int64
	err := w.Tx.WithTx(ctx, func(ctx context.Context) error {
		ids, err := w.Bookings.StalePending(ctx, cutoff)
		if err != nil || len(ids) == 0 {
			return err
		}
		if err := w.Transactions.LockByBookings(ctx, ids); err != nil {
			return err
		}
		if cancelled, err = w.Bookings.CancelPending(ctx, ids, now); err != nil {
			return err
		}
		_, err = w.Transactions.FailByBookings(ctx, ids, reasonStale, now)
		return err
	})
	if err != nil {
		logger(ctx).WithError(err).Error("cancel stale bookings failed")
		return 0, apperr.Internal(err)
	}
	if cancelled > 0 {
		logger(ctx).WithFields(logrus.Fields{"cancelled": cancelled, "cutoff": cutoff}).Info("stale bookings cancelled")
	}
	return cancelled, nil
}

// FailTransaction forces a gateway order to failed and cancels its
// booking when still pending.  It is the failure-simulation entry point
// and follows the same transition as CancelStale.
func (w *Workflow) FailTransaction(ctx context.Context, orderID, reason string) error {
	if orderID == "" {
		return apperr.Validation("order id is required")
	}
	if reason == "" {
		reason = "payment failed"
	}
	err := w.Tx.WithTx(ctx, func(ctx context.Context) error {
		now := w.Clock.Now()
		txn, err := w.Transactions.LockByOrder(ctx, orderID)
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return apperr.NotFound("transaction not found")
		}
		if err != nil {
			return err
		}
		if txn.Status == model.TxSuccess {
			return apperr.Conflict("transaction already succeeded")
		}
		if _, err := w.Transactions.MarkFailed(ctx, orderID, reason, now); err != nil {
			return err
		}
		_, err = w.Bookings.CancelPending(ctx, []uint64{txn.BookingID}, now)
		return err
	})
	if err != nil {
		return apperr.From(err)
	}
	logger(ctx).WithFields(logrus.Fields{"gateway_order_id": orderID, "reason": reason}).Info("transaction failed")
	return nil
}
