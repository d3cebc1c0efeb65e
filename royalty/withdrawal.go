/*
withdrawal.go - Withdrawal workflow

STATES:
  NONE ──▶ PENDING
  Completion and rejection happen outside this package.

REQUEST FLOW:
  1. Load author                       (NotFound)
  2. Load wallet                       (NotFound: no sales, nothing to withdraw)
  3. amount = balance                  (BelowMinimum if amount < minimum)
  4. Append pending withdrawal          ┐ one transaction on a TxStore;
  5. Wallet: balance = 0, paid += amount┘ ReconciliationNeeded otherwise
  6. Notify operator and author         (best effort, logged only)

The per-author lock plus the wallet version check make two concurrent
requests for one author pay out at most once.
*/
package royalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type WithdrawalInput struct {
	AuthorID       AuthorID
	IdempotencyKey string
}

type WithdrawalResult struct {
	WithdrawalID WithdrawalID
	Amount       decimal.Decimal
	Replayed     bool
}

// RequestWithdrawal moves the whole wallet balance into a pending
// withdrawal.
func (l *Ledger) RequestWithdrawal(ctx context.Context, in WithdrawalInput) (WithdrawalResult, error) {
	author, err := l.requireAuthor(ctx, l.store, in.AuthorID)
	if err != nil {
		return WithdrawalResult{}, err
	}

	unlock := l.lockAuthor(author.ID)
	defer unlock()

	if in.IdempotencyKey != "" {
		if res, ok, err := l.replayWithdrawal(ctx, in); err != nil || ok {
			return res, err
		}
	}

	var w Withdrawal
	if ts, ok := l.transactional(); ok {
		err = l.withRetry(ctx, "withdraw", func() error {
			return ts.WithTx(ctx, func(s Store) error {
				var err error
				w, err = l.withdraw(ctx, s, author.ID, in.IdempotencyKey, true)
				return err
			})
		})
	} else {
		w, err = l.withdraw(ctx, l.store, author.ID, in.IdempotencyKey, false)
	}

	if errors.Is(err, ErrDuplicateIdempotencyKey) {
		res, _, rerr := l.replayWithdrawal(ctx, in)
		return res, rerr
	}
	if err != nil {
		return WithdrawalResult{}, classify("withdraw", err)
	}

	l.log.Info("withdrawal requested",
		zap.String("withdrawal_id", string(w.ID)),
		zap.String("author_id", string(author.ID)),
		zap.String("amount", w.Amount.String()),
	)

	l.notifyWithdrawal(ctx, *author, w)

	return WithdrawalResult{WithdrawalID: w.ID, Amount: w.Amount}, nil
}

// withdraw runs steps 2-5 against s. When atomic is false the withdrawal
// and the wallet reset are separate writes and a failed reset is a
// reconciliation case.
func (l *Ledger) withdraw(ctx context.Context, s Store, authorID AuthorID, key string, atomic bool) (Withdrawal, error) {
	wallet, err := s.GetWallet(ctx, authorID)
	if err != nil {
		return Withdrawal{}, storageErr("get wallet", err)
	}
	if wallet == nil {
		return Withdrawal{}, notFound("wallet", string(authorID))
	}

	amount := wallet.Balance
	if amount.LessThan(l.minimum) {
		return Withdrawal{}, &BelowMinimumError{AuthorID: authorID, Balance: amount, Minimum: l.minimum}
	}

	w := Withdrawal{
		ID:             WithdrawalID(l.newID()),
		AuthorID:       authorID,
		Amount:         amount,
		Status:         WithdrawalPending,
		IdempotencyKey: key,
		CreatedAt:      l.now(),
	}
	if err := s.AppendWithdrawal(ctx, w); err != nil {
		return Withdrawal{}, err
	}

	drained := wallet.drain()
	drained.UpdatedAt = l.now()
	if _, err := s.SaveWallet(ctx, drained); err != nil {
		if !atomic {
			return Withdrawal{}, l.reconcile("request_withdrawal", authorID, string(w.ID), err)
		}
		return Withdrawal{}, storageErr("save wallet", err)
	}
	return w, nil
}

func (l *Ledger) replayWithdrawal(ctx context.Context, in WithdrawalInput) (WithdrawalResult, bool, error) {
	prior, err := l.store.GetWithdrawalByIdempotencyKey(ctx, in.IdempotencyKey)
	if err != nil {
		return WithdrawalResult{}, false, storageErr("get withdrawal", err)
	}
	if prior == nil {
		return WithdrawalResult{}, false, nil
	}
	if prior.AuthorID != in.AuthorID {
		return WithdrawalResult{}, false, invalid("idempotency_key", "already used by another author")
	}
	return WithdrawalResult{WithdrawalID: prior.ID, Amount: prior.Amount, Replayed: true}, true, nil
}

// ListWithdrawals returns the author's withdrawals, newest first.
func (l *Ledger) ListWithdrawals(ctx context.Context, authorID AuthorID) ([]Withdrawal, error) {
	if _, err := l.requireAuthor(ctx, l.store, authorID); err != nil {
		return nil, err
	}
	ws, err := l.store.ListWithdrawalsByAuthor(ctx, authorID)
	if err != nil {
		return nil, storageErr("list withdrawals", err)
	}
	return ws, nil
}

// PendingWithdrawals returns every withdrawal awaiting payout.
func (l *Ledger) PendingWithdrawals(ctx context.Context) ([]Withdrawal, error) {
	ws, err := l.store.ListWithdrawalsByStatus(ctx, WithdrawalPending)
	if err != nil {
		return nil, storageErr("list withdrawals", err)
	}
	return ws, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// notifyWithdrawal tells the operator and the author. The withdrawal is
// already committed, so every failure stops at the log.
func (l *Ledger) notifyWithdrawal(ctx context.Context, author Author, w Withdrawal) {
	if l.notifier == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	for _, msg := range l.withdrawalMessages(author, w) {
		if err := l.notifier.Send(ctx, msg); err != nil {
			l.log.Warn("withdrawal notification failed",
				zap.String("withdrawal_id", string(w.ID)),
				zap.String("to", msg.To),
				zap.Error(err),
			)
		}
	}
}

func (l *Ledger) withdrawalMessages(author Author, w Withdrawal) []Message {
	amount := l.currencySymbol + w.Amount.StringFixed(2)

	var msgs []Message
	if l.operatorEmail != "" {
		msgs = append(msgs, Message{
			To:      l.operatorEmail,
			Subject: fmt.Sprintf("New Withdrawal Request – %s", author.Name),
			Body:    fmt.Sprintf("Withdrawal request of %s from %s", amount, author.Name),
		})
	}
	if author.Email != "" {
		msgs = append(msgs, Message{
			To:      author.Email,
			Subject: "Your Withdrawal Has Been Initiated",
			Body:    fmt.Sprintf("Hi %s, your withdrawal of %s is initiated.", author.Name, amount),
		})
	}
	return msgs
}
