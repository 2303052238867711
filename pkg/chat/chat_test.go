package chat_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/moneta-app/moneta/pkg/chat"
	"github.com/moneta-app/moneta/pkg/store"
	"github.com/moneta-app/moneta/pkg/store/objectstore"
	"github.com/moneta-app/moneta/pkg/xref"
)

func newThreads(t *testing.T) (*chat.Threads, store.Store) {
	t.Helper()
	s, err := objectstore.Open(context.Background(), filepath.Join(t.TempDir(), "chat.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	refs := xref.New(s, nil)
	return chat.New(s, refs, nil), s
}

func createTxn(t *testing.T, s store.Store) *store.Transaction {
	t.Helper()
	txn := &store.Transaction{Kind: store.KindExpense, Timestamp: 100, Amount: 3, Currency: "USD", Category: "coffee"}
	if _, err := s.Transactions().Create(context.Background(), txn); err != nil {
		t.Fatalf("Create transaction: %v", err)
	}
	return txn
}

func TestAppendAssignsSequentialOrder(t *testing.T) {
	threads, _ := newThreads(t)
	ctx := context.Background()

	group, err := threads.CreateGroup(ctx, "budget")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	for want := int64(0); want < 3; want++ {
		msg, err := threads.AppendMessage(ctx, group.ID, true, "hi")
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if msg.Order != want {
			t.Errorf("Order = %d, want %d", msg.Order, want)
		}
	}
}

func TestAppendToMissingGroup(t *testing.T) {
	threads, _ := newThreads(t)

	_, err := threads.AppendMessage(context.Background(), 12345, true, "hi")
	if !errors.Is(err, store.ErrConstraint) {
		t.Fatalf("got %v, want ErrConstraint", err)
	}
}

func TestConcurrentAppendsGetUniqueOrders(t *testing.T) {
	threads, _ := newThreads(t)
	ctx := context.Background()

	group, err := threads.CreateGroup(ctx, "busy")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]*store.ChatMessage, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = threads.AppendMessage(ctx, group.ID, true, "msg")
		}(i)
	}
	wg.Wait()

	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("append %d: %v", i, errs[i])
		}
		if seen[results[i].Order] {
			t.Fatalf("order %d assigned twice", results[i].Order)
		}
		seen[results[i].Order] = true
	}
	for want := int64(0); want < n; want++ {
		if !seen[want] {
			t.Errorf("order %d missing from sequence", want)
		}
	}
}

func TestDeleteMessageLeavesGaps(t *testing.T) {
	threads, s := newThreads(t)
	ctx := context.Background()

	group, err := threads.CreateGroup(ctx, "gaps")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	var msgs []*store.ChatMessage
	for i := 0; i < 3; i++ {
		msg, err := threads.AppendMessage(ctx, group.ID, true, "m")
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		msgs = append(msgs, msg)
	}

	if err := threads.DeleteMessage(ctx, msgs[1].ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}

	remaining, err := s.ChatMessages().ListByGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListByGroup: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("got %d messages, want 2", len(remaining))
	}
	// Survivors keep their positions; no renumbering.
	if remaining[0].Order != 0 || remaining[1].Order != 2 {
		t.Errorf("orders = (%d, %d), want (0, 2)", remaining[0].Order, remaining[1].Order)
	}

	// The next append continues past the gap.
	msg, err := threads.AppendMessage(ctx, group.ID, true, "after")
	if err != nil {
		t.Fatalf("AppendMessage after delete: %v", err)
	}
	if msg.Order != 3 {
		t.Errorf("Order = %d, want 3", msg.Order)
	}
}

func TestDeleteMessageCleansAssociations(t *testing.T) {
	threads, s := newThreads(t)
	ctx := context.Background()

	group, err := threads.CreateGroup(ctx, "refs")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	msg, err := threads.AppendMessage(ctx, group.ID, false, "spent on coffee")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	txn := createTxn(t, s)
	if err := s.CrossRefs().Put(ctx, &store.CrossRef{MessageID: msg.ID, TransactionID: txn.ID}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := threads.DeleteMessage(ctx, msg.ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}

	refs, err := s.CrossRefs().ListByTransaction(ctx, txn.ID)
	if err != nil {
		t.Fatalf("ListByTransaction: %v", err)
	}
	if len(refs) != 0 {
		t.Errorf("%d association rows survived the message", len(refs))
	}
	if _, err := s.Transactions().Get(ctx, txn.ID); err != nil {
		t.Errorf("transaction should survive its message: %v", err)
	}
}

func TestDeleteGroupCascades(t *testing.T) {
	threads, s := newThreads(t)
	ctx := context.Background()

	group, err := threads.CreateGroup(ctx, "doomed")
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	txn := createTxn(t, s)
	for i := 0; i < 3; i++ {
		msg, err := threads.AppendMessage(ctx, group.ID, false, "m")
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
		if err := s.CrossRefs().Put(ctx, &store.CrossRef{MessageID: msg.ID, TransactionID: txn.ID}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if err := threads.DeleteGroup(ctx, group.ID); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}

	if _, err := s.ChatGroups().Get(ctx, group.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("group survived: %v", err)
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
		t.Errorf("%d association rows survived the group", len(refs))
	}
	if _, err := s.Transactions().Get(ctx, txn.ID); err != nil {
		t.Errorf("transaction should survive the group: %v", err)
	}

	// Deleting again settles on the same end state without error.
	if err := threads.DeleteGroup(ctx, group.ID); err != nil {
		t.Errorf("second DeleteGroup: %v", err)
	}
}
