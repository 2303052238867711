package sqlstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/moneta-app/moneta/pkg/store"
	"github.com/moneta-app/moneta/pkg/store/sqlstore"
	"github.com/moneta-app/moneta/pkg/store/storetest"
)

func TestContracts(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := sqlstore.Open(context.Background(), filepath.Join(t.TempDir(), "relational.db"), nil)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := sqlstore.Open(context.Background(), "", nil); err == nil {
		t.Fatal("Open with empty path succeeded")
	}
}

// Foreign keys are enabled through the DSN so every pooled connection
// enforces them. A bare row-level group delete must therefore cascade
// through messages into association rows at the engine level.
func TestEngineCascadesOnGroupDelete(t *testing.T) {
	ctx := context.Background()
	s, err := sqlstore.Open(ctx, filepath.Join(t.TempDir(), "cascade.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	group := &store.ChatGroup{Name: "g", Timestamp: 100}
	if _, err := s.ChatGroups().Create(ctx, group); err != nil {
		t.Fatalf("Create group: %v", err)
	}
	msg := &store.ChatMessage{GroupID: group.ID, Order: 0, Message: "m", Timestamp: 100}
	if _, err := s.ChatMessages().Create(ctx, msg); err != nil {
		t.Fatalf("Create message: %v", err)
	}
	txn := &store.Transaction{Kind: store.KindExpense, Timestamp: 100, Amount: 1, Currency: "USD", Category: "x"}
	if _, err := s.Transactions().Create(ctx, txn); err != nil {
		t.Fatalf("Create transaction: %v", err)
	}
	if err := s.CrossRefs().Put(ctx, &store.CrossRef{MessageID: msg.ID, TransactionID: txn.ID}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := s.ChatGroups().Delete(ctx, group.ID); err != nil {
		t.Fatalf("Delete group: %v", err)
	}

	msgs, err := s.ChatMessages().ListByGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListByGroup: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("%d messages survived the group", len(msgs))
	}
	refs, err := s.CrossRefs().ListByTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("ListByTransaction: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("%d association rows survived the cascade", len(refs))
	}
	if _, err := s.Transactions().Get(ctx, txn.ID); err != nil {
		t.Errorf("transaction should survive the cascade: %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "relational.db")

	s, err := sqlstore.Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	group := &store.ChatGroup{Name: "kept", Timestamp: 100}
	if _, err := s.ChatGroups().Create(ctx, group); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = sqlstore.Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.ChatGroups().Get(ctx, group.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Name != "kept" {
		t.Errorf("Name = %q, want kept", got.Name)
	}
}
