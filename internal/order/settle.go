package order

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/model"
	"github.com/iliyamo/cinema-ticketing/internal/repository"
)

// VerifyRequest is the payment proof the gateway hands back to the client.
type VerifyRequest struct {
	OrderID   string
	PaymentID string
	Signature string
}

const reasonBadSignature = "signature verification failed"

// VerifyPayment confirms the booking behind a gateway order exactly once.
// The transaction row is read under lock, so a concurrent second
// verification waits and is then rejected with a conflict.
func (w *Workflow) VerifyPayment(ctx context.Context, requester uint64, req VerifyRequest) (model.Booking, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return model.Booking{}, apperr.Validation("order id, payment id and signature are required")
	}
	log := logger(ctx).WithFields(logrus.Fields{"user_id": requester, "gateway_order_id": req.OrderID})

	if !w.Verifier.Verify(req.OrderID, req.PaymentID, req.Signature) {
		w.failOwnTransaction(ctx, requester, req.OrderID, reasonBadSignature)
		log.Warn("payment signature rejected")
		return model.Booking{}, apperr.Validation("payment verification failed")
	}

	var (
		booking model.Booking
		snap    model.TransactionSnapshot
	)
	err := w.Tx.WithTx(ctx, func(ctx context.Context) error {
		now := w.Clock.Now()
		txn, err := w.Transactions.LockByOrderForUser(ctx, req.OrderID, requester)
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return apperr.NotFound("transaction not found")
		}
		if err != nil {
			return err
		}
		if txn.Status == model.TxSuccess {
			return apperr.Conflict("payment already verified")
		}
		b, err := w.Bookings.LockByID(ctx, txn.BookingID)
		if errors.Is(err, repository.ErrBookingNotFound) {
			return apperr.NotFound("booking not found")
		}
		if err != nil {
			return err
		}
		if b.Status != model.BookingPending {
			return apperr.Conflict("booking is no longer awaiting payment")
		}

		bd := txn.Snapshot.Breakdown
		if bd.LoyaltyRedeemed.IsPositive() {
			err := w.Loyalty.Debit(ctx, requester, bd.LoyaltyRedeemed, now)
			if errors.Is(err, repository.ErrInsufficientBalance) {
				return apperr.Conflict("loyalty balance no longer covers the redemption")
			}
			if err != nil {
				return err
			}
		}
		if bd.DiscountID != 0 && bd.Discount.IsPositive() {
			if err := w.redeemDiscount(ctx, log, bd, requester, b.ID); err != nil {
				return err
			}
		}

		info := b.PaymentInfo
		info.GatewayPaymentID = req.PaymentID
		info.VerifiedAt = &now
		if err := w.Bookings.MarkConfirmed(ctx, b.ID, info, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperr.Conflict("booking is no longer awaiting payment")
			}
			return err
		}
		if err := w.Transactions.MarkSuccess(ctx, txn.ID, req.PaymentID, req.Signature, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return apperr.Conflict("payment already verified")
			}
			return err
		}

		b.Status = model.BookingConfirmed
		b.PaymentInfo = info
		b.ConfirmedAt = &now
		b.UpdatedAt = now
		booking, snap = b, txn.Snapshot
		return nil
	})
	if err != nil {
		ae := apperr.From(err)
		if ae.Kind == apperr.KindInternal {
			log.WithError(err).Error("payment verification failed")
		}
		return model.Booking{}, ae
	}

	log.WithFields(logrus.Fields{
		"booking_id":     booking.ID,
		"booking_number": booking.BookingNumber,
	}).Info("payment verified")

	w.afterConfirm(ctx, log, booking, snap)
	return booking, nil
}

// redeemDiscount records the redemption under the code's row lock.  The
// customer already paid the discounted price, so a limit reached by a
// concurrent order only warns.
func (w *Workflow) redeemDiscount(ctx context.Context, log *logrus.Entry, bd model.PriceBreakdown, requester, bookingID uint64) error {
	d, err := w.Discounts.LockByID(ctx, bd.DiscountID)
	if err != nil {
		return err
	}
	used, err := w.Discounts.CountByUser(ctx, d.ID, requester)
	if err != nil {
		return err
	}
	if d.Exhausted(used) {
		log.WithField("discount_code", d.Code).Warn("discount limit exceeded by concurrent orders")
	}
	if err := w.Discounts.Redeem(ctx, d.ID, requester, bookingID, bd.Discount, w.Clock.Now()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperr.Conflict("discount already redeemed for this booking")
		}
		return err
	}
	return nil
}

// afterConfirm runs the best-effort steps outside the transaction.
func (w *Workflow) afterConfirm(ctx context.Context, log *logrus.Entry, b model.Booking, snap model.TransactionSnapshot) {
	if _, err := w.Reservations.Release(ctx, snap.ShowID, b.UserID, snap.Selection); err != nil {
		log.WithError(err).Warn("releasing holds after confirmation failed")
	}
	for _, h := range w.Hooks {
		if err := h.BookingConfirmed(ctx, b, snap); err != nil {
			log.WithError(err).Warn("confirmation hook failed")
		}
	}
}

// failOwnTransaction marks the requester's transaction failed unless it
// already succeeded.  Orders of other users are left untouched.
func (w *Workflow) failOwnTransaction(ctx context.Context, requester uint64, orderID, reason string) {
	err := w.Tx.WithTx(ctx, func(ctx context.Context) error {
		txn, err := w.Transactions.LockByOrderForUser(ctx, orderID, requester)
		if err != nil {
			return err
		}
		if txn.Status == model.TxSuccess {
			return nil
		}
		_, err = w.Transactions.MarkFailed(ctx, orderID, reason, w.Clock.Now())
		return err
	})
	if err != nil && !errors.Is(err, repository.ErrTransactionNotFound) {
		logger(ctx).WithError(err).WithField("gateway_order_id", orderID).Warn("could not mark transaction failed")
	}
}
