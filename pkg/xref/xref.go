// Package xref keeps message/transaction association rows consistent
// with their parents. The association's identity is the composite pair,
// so a deleted parent can never leave a half-cleared row behind:
// deleting either parent deletes the row. The hooks here are invoked
// from the cascade paths (pkg/chat for messages, DeleteTransaction for
// transactions) rather than relying on engine triggers, which keeps
// both backends consistent.
package xref

import (
	"context"
	"errors"
	"fmt"

	"github.com/moneta-app/moneta/pkg/store"
)

// Manager enforces association lifecycle rules on top of the store.
type Manager struct {
	s   store.Store
	log store.Logger
}

// New creates a manager over s. A nil logger disables logging.
func New(s store.Store, log store.Logger) *Manager {
	if log == nil {
		log = store.NopLogger()
	}
	return &Manager{s: s, log: log}
}

// Associate records that the message cited the transaction. It fails
// with ErrConstraint when either id does not currently exist and
// succeeds without effect when the pair is already associated.
func (m *Manager) Associate(ctx context.Context, messageID, transactionID int64) error {
	return m.s.RunInTx(ctx, func(tx store.Store) error {
		if _, err := tx.ChatMessages().Get(ctx, messageID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Wrap("associate",
					fmt.Errorf("%w: chat message %d does not exist", store.ErrConstraint, messageID))
			}
			return err
		}
		if _, err := tx.Transactions().Get(ctx, transactionID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Wrap("associate",
					fmt.Errorf("%w: transaction %d does not exist", store.ErrConstraint, transactionID))
			}
			return err
		}
		return tx.CrossRefs().Put(ctx, &store.CrossRef{
			MessageID:     messageID,
			TransactionID: transactionID,
		})
	})
}

// Dissociate removes one association pair. ErrNotFound when absent.
func (m *Manager) Dissociate(ctx context.Context, messageID, transactionID int64) error {
	return m.s.CrossRefs().Delete(ctx, &store.CrossRef{
		MessageID:     messageID,
		TransactionID: transactionID,
	})
}

// TransactionsFor returns the transactions a message cited, in
// association order.
func (m *Manager) TransactionsFor(ctx context.Context, messageID int64) ([]store.Transaction, error) {
	refs, err := m.s.CrossRefs().ListByMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	out := make([]store.Transaction, 0, len(refs))
	for _, ref := range refs {
		txn, err := m.s.Transactions().Get(ctx, ref.TransactionID)
		if errors.Is(err, store.ErrNotFound) {
			// A concurrent delete won the race; its cleanup removes the row.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *txn)
	}
	return out, nil
}

// OnChatMessagesDeleted removes every association row referencing the
// deleted messages. in is the store view the caller's atomic unit runs
// against, so cascade and cleanup commit together.
func (m *Manager) OnChatMessagesDeleted(ctx context.Context, in store.Store, messageIDs ...int64) error {
	for _, id := range messageIDs {
		removed, err := in.CrossRefs().DeleteByMessage(ctx, id)
		if err != nil {
			return err
		}
		if removed > 0 {
			m.log.Debug("removed associations for deleted message", "message", id, "count", removed)
		}
	}
	return nil
}

// OnTransactionDeleted removes every association row referencing the
// deleted transaction, against the caller's store view.
func (m *Manager) OnTransactionDeleted(ctx context.Context, in store.Store, transactionID int64) error {
	removed, err := in.CrossRefs().DeleteByTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if removed > 0 {
		m.log.Debug("removed associations for deleted transaction", "transaction", transactionID, "count", removed)
	}
	return nil
}

// DeleteTransaction removes a transaction and its association rows as
// one unit, so a failure partway through leaves nothing half-applied.
func (m *Manager) DeleteTransaction(ctx context.Context, transactionID int64) error {
	return m.s.RunInTx(ctx, func(tx store.Store) error {
		if err := m.OnTransactionDeleted(ctx, tx, transactionID); err != nil {
			return err
		}
		return tx.Transactions().Delete(ctx, transactionID)
	})
}
