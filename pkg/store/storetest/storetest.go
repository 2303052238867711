// Package storetest exercises the store contracts against any backend.
// Both engines run the same suite, which is what makes "structurally
// different, behaviorally identical" checkable.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moneta-app/moneta/pkg/store"
)

// Factory opens a fresh, empty store for one subtest. Cleanup is the
// caller's job, typically via t.Cleanup and t.TempDir.
type Factory func(t *testing.T) store.Store

// Run executes the contract suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	t.Run("TransactionLifecycle", func(t *testing.T) { testTransactionLifecycle(t, open(t)) })
	t.Run("TransactionValidation", func(t *testing.T) { testTransactionValidation(t, open(t)) })
	t.Run("TransactionDateRange", func(t *testing.T) { testTransactionDateRange(t, open(t)) })
	t.Run("ChatGroupLifecycle", func(t *testing.T) { testChatGroupLifecycle(t, open(t)) })
	t.Run("ChatMessageOrdering", func(t *testing.T) { testChatMessageOrdering(t, open(t)) })
	t.Run("ChatMessageMaxOrder", func(t *testing.T) { testChatMessageMaxOrder(t, open(t)) })
	t.Run("ChatMessageDeleteByGroup", func(t *testing.T) { testChatMessageDeleteByGroup(t, open(t)) })
	t.Run("CrossRefIdempotentPut", func(t *testing.T) { testCrossRefIdempotentPut(t, open(t)) })
	t.Run("CrossRefInsertionOrder", func(t *testing.T) { testCrossRefInsertionOrder(t, open(t)) })
	t.Run("CrossRefBulkDelete", func(t *testing.T) { testCrossRefBulkDelete(t, open(t)) })
	t.Run("CurrencyLifecycle", func(t *testing.T) { testCurrencyLifecycle(t, open(t)) })
	t.Run("RunInTxRollback", func(t *testing.T) { testRunInTxRollback(t, open(t)) })
	t.Run("RunInTxNested", func(t *testing.T) { testRunInTxNested(t, open(t)) })
	t.Run("WatchEmitsOnWrite", func(t *testing.T) { testWatchEmitsOnWrite(t, open(t)) })
	t.Run("WatchByGroupFilters", func(t *testing.T) { testWatchByGroupFilters(t, open(t)) })
	t.Run("ClosedStoreFails", func(t *testing.T) { testClosedStoreFails(t, open(t)) })
}

func sampleTransaction(ts int64) *store.Transaction {
	return &store.Transaction{
		Kind:        store.KindExpense,
		Timestamp:   ts,
		Amount:      42.50,
		Currency:    "USD",
		Category:    "groceries",
		Description: "weekly shop",
	}
}

func mustCreateTxn(t *testing.T, s store.Store, ts int64) *store.Transaction {
	t.Helper()
	txn := sampleTransaction(ts)
	if _, err := s.Transactions().Create(context.Background(), txn); err != nil {
		t.Fatalf("Create transaction: %v", err)
	}
	return txn
}

func mustCreateGroup(t *testing.T, s store.Store) *store.ChatGroup {
	t.Helper()
	group := &store.ChatGroup{Name: "budget talk", Timestamp: 1000}
	if _, err := s.ChatGroups().Create(context.Background(), group); err != nil {
		t.Fatalf("Create group: %v", err)
	}
	return group
}

func mustCreateMessage(t *testing.T, s store.Store, groupID, order int64) *store.ChatMessage {
	t.Helper()
	msg := &store.ChatMessage{
		GroupID:   groupID,
		IsUser:    order%2 == 0,
		Order:     order,
		Message:   "hello",
		Timestamp: 1000 + order,
	}
	if _, err := s.ChatMessages().Create(context.Background(), msg); err != nil {
		t.Fatalf("Create message: %v", err)
	}
	return msg
}

func testTransactionLifecycle(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	txn := mustCreateTxn(t, s, 1000)
	if txn.ID == 0 {
		t.Fatal("Create did not assign an id")
	}

	got, err := s.Transactions().Get(ctx, txn.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Amount != txn.Amount || got.Category != txn.Category || got.Kind != txn.Kind {
		t.Errorf("Get returned %+v, want %+v", got, txn)
	}

	txn.Amount = 99.99
	txn.Description = "updated"
	if err := s.Transactions().Update(ctx, txn); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = s.Transactions().Get(ctx, txn.ID)
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.Amount != 99.99 || got.Description != "updated" {
		t.Errorf("update not persisted: %+v", got)
	}

	missing := sampleTransaction(1000)
	missing.ID = txn.ID + 100
	if err := s.Transactions().Update(ctx, missing); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Update of missing row: got %v, want ErrNotFound", err)
	}

	if err := s.Transactions().Delete(ctx, txn.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Transactions().Get(ctx, txn.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after delete: got %v, want ErrNotFound", err)
	}
	if err := s.Transactions().Delete(ctx, txn.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
}

func testTransactionValidation(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	tests := []struct {
		name string
		txn  store.Transaction
	}{
		{"bad kind", store.Transaction{Kind: "transfer", Timestamp: 1, Currency: "USD", Category: "x"}},
		{"no timestamp", store.Transaction{Kind: store.KindIncome, Currency: "USD", Category: "x"}},
		{"no currency", store.Transaction{Kind: store.KindIncome, Timestamp: 1, Category: "x"}},
		{"no category", store.Transaction{Kind: store.KindIncome, Timestamp: 1, Currency: "USD"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn := tt.txn
			if _, err := s.Transactions().Create(ctx, &txn); !errors.Is(err, store.ErrConstraint) {
				t.Errorf("got %v, want ErrConstraint", err)
			}
		})
	}
}

func testTransactionDateRange(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	for _, ts := range []int64{100, 200, 300, 400} {
		mustCreateTxn(t, s, ts)
	}

	got, err := s.Transactions().ListByDateRange(ctx, 200, 300)
	if err != nil {
		t.Fatalf("ListByDateRange: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("window [200,300]: got %d rows, want 2 (bounds are inclusive)", len(got))
	}
	for _, txn := range got {
		if txn.Timestamp < 200 || txn.Timestamp > 300 {
			t.Errorf("row with timestamp %d outside window", txn.Timestamp)
		}
	}

	got, err = s.Transactions().ListByDateRange(ctx, 500, 600)
	if err != nil {
		t.Fatalf("ListByDateRange empty window: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("empty window returned %d rows", len(got))
	}
}

func testChatGroupLifecycle(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	group := mustCreateGroup(t, s)
	if group.ID == 0 {
		t.Fatal("Create did not assign an id")
	}

	group.Name = "renamed"
	if err := s.ChatGroups().Update(ctx, group); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := s.ChatGroups().Get(ctx, group.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "renamed" {
		t.Errorf("Name = %q, want renamed", got.Name)
	}

	if err := s.ChatGroups().Delete(ctx, group.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.ChatGroups().Delete(ctx, group.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
}

func testChatMessageOrdering(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	group := mustCreateGroup(t, s)
	// Insert out of order; listing must come back ordered by Order.
	for _, order := range []int64{2, 0, 3, 1} {
		mustCreateMessage(t, s, group.ID, order)
	}

	msgs, err := s.ChatMessages().ListByGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListByGroup: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	for i, m := range msgs {
		if m.Order != int64(i) {
			t.Errorf("position %d has order %d", i, m.Order)
		}
	}
}

func testChatMessageMaxOrder(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	group := mustCreateGroup(t, s)

	if _, ok, err := s.ChatMessages().MaxOrder(ctx, group.ID); err != nil {
		t.Fatalf("MaxOrder on empty group: %v", err)
	} else if ok {
		t.Error("MaxOrder on empty group reported ok")
	}

	mustCreateMessage(t, s, group.ID, 0)
	mustCreateMessage(t, s, group.ID, 7)

	max, ok, err := s.ChatMessages().MaxOrder(ctx, group.ID)
	if err != nil {
		t.Fatalf("MaxOrder: %v", err)
	}
	if !ok || max != 7 {
		t.Errorf("MaxOrder = (%d, %v), want (7, true)", max, ok)
	}
}

func testChatMessageDeleteByGroup(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	group := mustCreateGroup(t, s)
	other := mustCreateGroup(t, s)
	for i := int64(0); i < 3; i++ {
		mustCreateMessage(t, s, group.ID, i)
	}
	kept := mustCreateMessage(t, s, other.ID, 0)

	removed, err := s.ChatMessages().DeleteByGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("DeleteByGroup: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed %d rows, want 3", removed)
	}

	removed, err = s.ChatMessages().DeleteByGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("DeleteByGroup on empty group: %v", err)
	}
	if removed != 0 {
		t.Errorf("second DeleteByGroup removed %d rows, want 0", removed)
	}

	if _, err := s.ChatMessages().Get(ctx, kept.ID); err != nil {
		t.Errorf("message in other group was removed: %v", err)
	}
}

func testCrossRefIdempotentPut(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	group := mustCreateGroup(t, s)
	msg := mustCreateMessage(t, s, group.ID, 0)
	txn := mustCreateTxn(t, s, 1000)

	ref := &store.CrossRef{MessageID: msg.ID, TransactionID: txn.ID}
	if err := s.CrossRefs().Put(ctx, ref); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.CrossRefs().Put(ctx, ref); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	refs, err := s.CrossRefs().ListByMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("ListByMessage: %v", err)
	}
	if len(refs) != 1 {
		t.Errorf("got %d rows after double Put, want 1", len(refs))
	}

	if err := s.CrossRefs().Delete(ctx, ref); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.CrossRefs().Delete(ctx, ref); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Delete: got %v, want ErrNotFound", err)
	}
}

// Association rows have no declared ordering, so lists must come back
// in insertion order on every backend. Associating in reverse identity
// order makes an id-sorted result detectably wrong.
func testCrossRefInsertionOrder(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	group := mustCreateGroup(t, s)
	first := mustCreateMessage(t, s, group.ID, 0)
	second := mustCreateMessage(t, s, group.ID, 1)

	var txns []*store.Transaction
	for i := 0; i < 3; i++ {
		txns = append(txns, mustCreateTxn(t, s, int64(1000+i)))
	}

	// The later message cites the shared transaction before the earlier
	// message does.
	if err := s.CrossRefs().Put(ctx, &store.CrossRef{MessageID: second.ID, TransactionID: txns[1].ID}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	for i := len(txns) - 1; i >= 0; i-- {
		if err := s.CrossRefs().Put(ctx, &store.CrossRef{MessageID: first.ID, TransactionID: txns[i].ID}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	refs, err := s.CrossRefs().ListByMessage(ctx, first.ID)
	if err != nil {
		t.Fatalf("ListByMessage: %v", err)
	}
	if len(refs) != 3 {
		t.Fatalf("got %d rows, want 3", len(refs))
	}
	for i, ref := range refs {
		if want := txns[len(txns)-1-i].ID; ref.TransactionID != want {
			t.Errorf("position %d: transaction %d, want %d", i, ref.TransactionID, want)
		}
	}

	byTxn, err := s.CrossRefs().ListByTransaction(ctx, txns[1].ID)
	if err != nil {
		t.Fatalf("ListByTransaction: %v", err)
	}
	if len(byTxn) != 2 {
		t.Fatalf("got %d rows, want 2", len(byTxn))
	}
	if byTxn[0].MessageID != second.ID || byTxn[1].MessageID != first.ID {
		t.Errorf("message order = (%d, %d), want (%d, %d)",
			byTxn[0].MessageID, byTxn[1].MessageID, second.ID, first.ID)
	}
}

func testCrossRefBulkDelete(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	group := mustCreateGroup(t, s)
	msg := mustCreateMessage(t, s, group.ID, 0)
	other := mustCreateMessage(t, s, group.ID, 1)

	var txns []*store.Transaction
	for i := 0; i < 3; i++ {
		txns = append(txns, mustCreateTxn(t, s, int64(1000+i)))
	}
	for _, txn := range txns {
		if err := s.CrossRefs().Put(ctx, &store.CrossRef{MessageID: msg.ID, TransactionID: txn.ID}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := s.CrossRefs().Put(ctx, &store.CrossRef{MessageID: other.ID, TransactionID: txns[0].ID}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	removed, err := s.CrossRefs().DeleteByMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("DeleteByMessage: %v", err)
	}
	if removed != 3 {
		t.Errorf("DeleteByMessage removed %d, want 3", removed)
	}

	removed, err = s.CrossRefs().DeleteByTransaction(ctx, txns[0].ID)
	if err != nil {
		t.Fatalf("DeleteByTransaction: %v", err)
	}
	if removed != 1 {
		t.Errorf("DeleteByTransaction removed %d, want 1", removed)
	}

	refs, err := s.CrossRefs().ListByTransaction(ctx, txns[0].ID)
	if err != nil {
		t.Fatalf("ListByTransaction: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("rows left after bulk delete: %d", len(refs))
	}
}

func testCurrencyLifecycle(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	c := &store.Currency{Code: "EUR"}
	if _, err := s.Currencies().Create(ctx, c); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if c.ID == 0 {
		t.Fatal("Create did not assign an id")
	}

	c.Code = "GBP"
	if err := s.Currencies().Update(ctx, c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err := s.Currencies().Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Code != "GBP" {
		t.Errorf("Code = %q, want GBP", got.Code)
	}

	all, err := s.Currencies().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("List returned %d rows, want 1", len(all))
	}

	if err := s.Currencies().Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func testRunInTxRollback(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.RunInTx(ctx, func(tx store.Store) error {
		if _, err := tx.Transactions().Create(ctx, sampleTransaction(1000)); err != nil {
			return err
		}
		group := &store.ChatGroup{Name: "doomed", Timestamp: 1}
		if _, err := tx.ChatGroups().Create(ctx, group); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunInTx: got %v, want the callback error", err)
	}

	txns, err := s.Transactions().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(txns) != 0 {
		t.Errorf("%d transactions survived rollback", len(txns))
	}
	groups, err := s.ChatGroups().List(ctx)
	if err != nil {
		t.Fatalf("List groups: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("%d groups survived rollback", len(groups))
	}
}

func testRunInTxNested(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	err := s.RunInTx(ctx, func(tx store.Store) error {
		return tx.RunInTx(ctx, func(inner store.Store) error {
			_, err := inner.Transactions().Create(ctx, sampleTransaction(1000))
			return err
		})
	})
	if err != nil {
		t.Fatalf("nested RunInTx: %v", err)
	}

	txns, err := s.Transactions().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(txns) != 1 {
		t.Errorf("got %d transactions, want 1", len(txns))
	}
}

// awaitFeed reads emissions until pred accepts one or the deadline
// passes. Emissions are conflated, so intermediate states may be
// skipped; only the predicate matters.
func awaitFeed[T any](t *testing.T, feed *store.Feed[T], pred func([]T) bool) []T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snapshot, ok := <-feed.Updates():
			if !ok {
				t.Fatal("feed closed while waiting")
			}
			if pred(snapshot) {
				return snapshot
			}
		case <-deadline:
			t.Fatal("timed out waiting for feed emission")
		}
	}
}

func testWatchEmitsOnWrite(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	mustCreateTxn(t, s, 100)

	feed, err := s.Transactions().Watch(ctx)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer feed.Close()

	// Subscribe replays the current snapshot first.
	awaitFeed(t, feed, func(txns []store.Transaction) bool { return len(txns) == 1 })

	mustCreateTxn(t, s, 200)
	awaitFeed(t, feed, func(txns []store.Transaction) bool { return len(txns) == 2 })

	// Writes inside an atomic unit surface only after commit, as one
	// consolidated emission.
	err = s.RunInTx(ctx, func(tx store.Store) error {
		for _, ts := range []int64{300, 400} {
			if _, err := tx.Transactions().Create(ctx, sampleTransaction(ts)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	awaitFeed(t, feed, func(txns []store.Transaction) bool { return len(txns) == 4 })
}

func testWatchByGroupFilters(t *testing.T, s store.Store) {
	defer s.Close()
	ctx := context.Background()

	group := mustCreateGroup(t, s)
	other := mustCreateGroup(t, s)

	feed, err := s.ChatMessages().WatchByGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("WatchByGroup: %v", err)
	}
	defer feed.Close()

	awaitFeed(t, feed, func(msgs []store.ChatMessage) bool { return len(msgs) == 0 })

	mustCreateMessage(t, s, other.ID, 0)
	mustCreateMessage(t, s, group.ID, 0)

	msgs := awaitFeed(t, feed, func(msgs []store.ChatMessage) bool { return len(msgs) == 1 })
	if msgs[0].GroupID != group.ID {
		t.Errorf("feed leaked a message from group %d", msgs[0].GroupID)
	}
}

func testClosedStoreFails(t *testing.T, s store.Store) {
	ctx := context.Background()

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, err := s.Transactions().List(ctx); !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("List on closed store: got %v, want ErrStoreClosed", err)
	}
	err := s.RunInTx(ctx, func(tx store.Store) error { return nil })
	if !errors.Is(err, store.ErrStoreClosed) {
		t.Errorf("RunInTx on closed store: got %v, want ErrStoreClosed", err)
	}
}
