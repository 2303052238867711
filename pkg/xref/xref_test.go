package xref_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/moneta-app/moneta/pkg/store"
	"github.com/moneta-app/moneta/pkg/store/objectstore"
	"github.com/moneta-app/moneta/pkg/xref"
)

func newManager(t *testing.T) (*xref.Manager, store.Store) {
	t.Helper()
	s, err := objectstore.Open(context.Background(), filepath.Join(t.TempDir(), "xref.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return xref.New(s, nil), s
}

func seed(t *testing.T, s store.Store) (*store.ChatMessage, *store.Transaction) {
	t.Helper()
	ctx := context.Background()

	group := &store.ChatGroup{Name: "g", Timestamp: 100}
	if _, err := s.ChatGroups().Create(ctx, group); err != nil {
		t.Fatalf("Create group: %v", err)
	}
	msg := &store.ChatMessage{GroupID: group.ID, IsUser: false, Order: 0, Message: "m", Timestamp: 100}
	if _, err := s.ChatMessages().Create(ctx, msg); err != nil {
		t.Fatalf("Create message: %v", err)
	}
	txn := &store.Transaction{Kind: store.KindExpense, Timestamp: 100, Amount: 9, Currency: "USD", Category: "food"}
	if _, err := s.Transactions().Create(ctx, txn); err != nil {
		t.Fatalf("Create transaction: %v", err)
	}
	return msg, txn
}

func TestAssociateIsIdempotent(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()
	msg, txn := seed(t, s)

	if err := m.Associate(ctx, msg.ID, txn.ID); err != nil {
		t.Fatalf("Associate: %v", err)
	}
	if err := m.Associate(ctx, msg.ID, txn.ID); err != nil {
		t.Fatalf("second Associate: %v", err)
	}

	refs, err := s.CrossRefs().ListByMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ListByMessage: %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("got %d rows, want 1", len(refs))
	}
}

func TestAssociateRequiresBothParents(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()
	msg, txn := seed(t, s)

	if err := m.Associate(ctx, msg.ID+100, txn.ID); !errors.Is(err, store.ErrConstraint) {
		t.Errorf("missing message: got %v, want ErrConstraint", err)
	}
	if err := m.Associate(ctx, msg.ID, txn.ID+100); !errors.Is(err, store.ErrConstraint) {
		t.Errorf("missing transaction: got %v, want ErrConstraint", err)
	}

	// A failed association leaves no row behind.
	refs, err := s.CrossRefs().ListByMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ListByMessage: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("got %d rows, want 0", len(refs))
	}
}

func TestDissociate(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()
	msg, txn := seed(t, s)

	if err := m.Associate(ctx, msg.ID, txn.ID); err != nil {
		t.Fatalf("Associate: %v", err)
	}
	if err := m.Dissociate(ctx, msg.ID, txn.ID); err != nil {
		t.Fatalf("Dissociate: %v", err)
	}
	if err := m.Dissociate(ctx, msg.ID, txn.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Dissociate: got %v, want ErrNotFound", err)
	}
}

func TestTransactionsFor(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()
	msg, txn := seed(t, s)

	second := &store.Transaction{Kind: store.KindIncome, Timestamp: 200, Amount: 50, Currency: "USD", Category: "salary"}
	if _, err := s.Transactions().Create(ctx, second); err != nil {
		t.Fatalf("Create: %v", err)
	}
	for _, id := range []int64{txn.ID, second.ID} {
		if err := m.Associate(ctx, msg.ID, id); err != nil {
			t.Fatalf("Associate: %v", err)
		}
	}

	got, err := m.TransactionsFor(ctx, msg.ID)
	if err != nil {
		t.Fatalf("TransactionsFor: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transactions, want 2", len(got))
	}
	if got[0].ID != txn.ID || got[1].ID != second.ID {
		t.Errorf("ids = (%d, %d), want (%d, %d)", got[0].ID, got[1].ID, txn.ID, second.ID)
	}
}

func TestDeleteTransactionCleansAssociations(t *testing.T) {
	m, s := newManager(t)
	ctx := context.Background()
	msg, txn := seed(t, s)

	if err := m.Associate(ctx, msg.ID, txn.ID); err != nil {
		t.Fatalf("Associate: %v", err)
	}
	if err := m.DeleteTransaction(ctx, txn.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}

	if _, err := s.Transactions().Get(ctx, txn.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("transaction survived: %v", err)
	}
	refs, err := s.CrossRefs().ListByMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ListByMessage: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("%d association rows survived the transaction", len(refs))
	}
	if _, err := s.ChatMessages().Get(ctx, msg.ID); err != nil {
		t.Errorf("message should survive the transaction: %v", err)
	}
}
