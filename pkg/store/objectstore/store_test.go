package objectstore_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/moneta-app/moneta/pkg/store"
	"github.com/moneta-app/moneta/pkg/store/objectstore"
	"github.com/moneta-app/moneta/pkg/store/storetest"
)

func TestContracts(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := objectstore.Open(context.Background(), filepath.Join(t.TempDir(), "object.db"), nil)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		return s
	})
}

func TestOpenEmptyPath(t *testing.T) {
	if _, err := objectstore.Open(context.Background(), "", nil); err == nil {
		t.Fatal("Open with empty path succeeded")
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "object.db")

	s, err := objectstore.Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	txn := &store.Transaction{Kind: store.KindIncome, Timestamp: 100, Amount: 5, Currency: "USD", Category: "salary"}
	if _, err := s.Transactions().Create(ctx, txn); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = objectstore.Open(ctx, path, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.Transactions().Get(ctx, txn.ID)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Category != "salary" {
		t.Errorf("Category = %q, want salary", got.Category)
	}

	// Identity sequences must survive a reopen without reuse.
	second := &store.Transaction{Kind: store.KindIncome, Timestamp: 200, Amount: 6, Currency: "USD", Category: "salary"}
	if _, err := s.Transactions().Create(ctx, second); err != nil {
		t.Fatalf("Create after reopen: %v", err)
	}
	if second.ID <= txn.ID {
		t.Errorf("reused identity: first %d, second %d", txn.ID, second.ID)
	}
}
