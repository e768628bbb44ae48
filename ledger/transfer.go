/*
transfer.go - Dual-account atomic transfer

PURPOSE:
  Moves money between two accounts of the same owner. The transfer record,
  the debit of the source and the credit of the destination commit as one
  unit; if any step fails none of them is visible.

VALIDATION (before any balance is touched):
  - amount > 0, at most two decimal places
  - source != destination
  - both accounts owned by the caller and active
  - both accounts use the same currency

Transfers are create-only. Undoing one means creating the opposite
transfer.
*/
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/finance-engine/logging"
)

type NewTransfer struct {
	SourceID      AccountID
	DestinationID AccountID
	Amount        decimal.Decimal
	Date          time.Time // zero means today
	Description   string
}

type TransferService struct {
	Store   TxStore
	Mutator BalanceMutator
	Logger  logging.Logger

	Now   func() time.Time
	NewID func() string
}

func NewTransferService(store TxStore, log logging.Logger) *TransferService {
	if log == nil {
		log = logging.Nop()
	}
	return &TransferService{
		Store:  store,
		Logger: log,
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

func (t *TransferService) Create(ctx context.Context, owner OwnerID, in NewTransfer) (Transfer, error) {
	if err := ValidateAmount(in.Amount); err != nil {
		return Transfer{}, err
	}
	if in.SourceID == "" {
		return Transfer{}, invalid(CodeInvalidAccount, "source_id", "source account is required", ErrInvalidAccount)
	}
	if in.DestinationID == "" {
		return Transfer{}, invalid(CodeInvalidAccount, "destination_id", "destination account is required", ErrInvalidAccount)
	}
	if in.SourceID == in.DestinationID {
		return Transfer{}, invalid(CodeSelfTransfer, "destination_id", "cannot transfer to the same account", ErrSelfTransfer)
	}

	now := time.Now().UTC()
	if t.Now != nil {
		now = t.Now().UTC()
	}
	date := in.Date
	if date.IsZero() {
		date = now
	}
	id := uuid.NewString()
	if t.NewID != nil {
		id = t.NewID()
	}

	tr := Transfer{
		ID:            TransferID(id),
		OwnerID:       owner,
		SourceID:      in.SourceID,
		DestinationID: in.DestinationID,
		Amount:        in.Amount,
		Date:          Day(date),
		Description:   strings.TrimSpace(in.Description),
		CreatedAt:     now,
	}

	err := t.Store.WithTx(ctx, func(s Store) error {
		src, err := activeAccount(ctx, s, owner, in.SourceID, "source_id")
		if err != nil {
			return err
		}
		dst, err := activeAccount(ctx, s, owner, in.DestinationID, "destination_id")
		if err != nil {
			return err
		}
		if src.Currency != dst.Currency {
			return invalid(CodeCurrencyMismatch, "destination_id", "accounts use different currencies", ErrCurrencyMismatch)
		}

		if err := s.InsertTransfer(ctx, tr); err != nil {
			return err
		}
		return t.Mutator.applyLegs(ctx, s, owner,
			leg{account: tr.SourceID, delta: tr.Amount.Neg()},
			leg{account: tr.DestinationID, delta: tr.Amount},
		)
	})
	if err != nil {
		return Transfer{}, err
	}

	if t.Logger != nil {
		t.Logger.Debug(ctx, "transfer created", "owner", string(owner), "transfer", string(tr.ID), "amount", tr.Amount.StringFixed(Scale))
	}
	return tr, nil
}

// List returns the owner's transfers, optionally only those touching account.
func (t *TransferService) List(ctx context.Context, owner OwnerID, account AccountID) ([]Transfer, error) {
	if account != "" {
		if _, err := t.Store.GetAccount(ctx, owner, account); err != nil {
			return nil, err
		}
	}
	return t.Store.ListTransfers(ctx, owner, account)
}
