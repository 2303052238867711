// Package store defines the storage contracts of the moneta core: one
// polymorphic contract per entity kind, implemented by two structurally
// different engines (a schemaless object backend and a relational
// backend with declared foreign keys). Callers depend only on these
// interfaces; both backends produce the same observable behavior, the
// same ordering rules and the same error taxonomy.
//
// The store guarantees only row-level semantics. Cascades and
// association cleanup belong to the managers layered on top (pkg/chat,
// pkg/xref), which use RunInTx to make multi-table operations
// all-or-nothing on either engine.
package store

import "context"

// TransactionStore persists monetary transactions. List and watch
// results are ordered by insertion (ascending id).
type TransactionStore interface {
	// Create inserts the transaction, assigns its identity and returns
	// it. Fails with ErrConstraint when required fields are missing.
	Create(ctx context.Context, txn *Transaction) (int64, error)

	// Update rewrites an existing row. Fails with ErrNotFound when no
	// row with the transaction's identity exists.
	Update(ctx context.Context, txn *Transaction) error

	// Delete removes the row. Fails with ErrNotFound when absent.
	// Association cleanup is the cross-reference manager's job.
	Delete(ctx context.Context, id int64) error

	// Get returns one transaction or ErrNotFound.
	Get(ctx context.Context, id int64) (*Transaction, error)

	// List returns the current snapshot.
	List(ctx context.Context) ([]Transaction, error)

	// ListByDateRange returns transactions with timestamp in [from, to].
	ListByDateRange(ctx context.Context, from, to int64) ([]Transaction, error)

	// Watch returns a live feed over all transactions.
	Watch(ctx context.Context) (*Feed[Transaction], error)

	// WatchByDateRange returns a live feed over a timestamp window.
	WatchByDateRange(ctx context.Context, from, to int64) (*Feed[Transaction], error)
}

// ChatGroupStore persists conversation threads.
type ChatGroupStore interface {
	Create(ctx context.Context, group *ChatGroup) (int64, error)
	Update(ctx context.Context, group *ChatGroup) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*ChatGroup, error)
	List(ctx context.Context) ([]ChatGroup, error)
	Watch(ctx context.Context) (*Feed[ChatGroup], error)
}

// ChatMessageStore persists chat messages. Message lists are ordered by
// the per-group Order field, not by insertion.
type ChatMessageStore interface {
	Create(ctx context.Context, msg *ChatMessage) (int64, error)
	Update(ctx context.Context, msg *ChatMessage) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*ChatMessage, error)
	List(ctx context.Context) ([]ChatMessage, error)
	ListByGroup(ctx context.Context, groupID int64) ([]ChatMessage, error)

	// MaxOrder returns the highest Order in the group. ok is false when
	// the group has no messages.
	MaxOrder(ctx context.Context, groupID int64) (max int64, ok bool, err error)

	// DeleteByGroup removes every message of the group and returns how
	// many rows were removed. Removing from an empty group is not an
	// error.
	DeleteByGroup(ctx context.Context, groupID int64) (int64, error)

	Watch(ctx context.Context) (*Feed[ChatMessage], error)
	WatchByGroup(ctx context.Context, groupID int64) (*Feed[ChatMessage], error)
}

// CrossRefStore persists message/transaction association rows keyed by
// the (message, transaction) pair.
type CrossRefStore interface {
	// Put stores the pair. Storing an existing pair is a no-op; there
	// is never a duplicate row.
	Put(ctx context.Context, ref *CrossRef) error

	// Delete removes the pair or fails with ErrNotFound.
	Delete(ctx context.Context, ref *CrossRef) error

	ListByMessage(ctx context.Context, messageID int64) ([]CrossRef, error)
	ListByTransaction(ctx context.Context, transactionID int64) ([]CrossRef, error)

	// DeleteByMessage removes every row citing the message and returns
	// the count. Zero rows is not an error.
	DeleteByMessage(ctx context.Context, messageID int64) (int64, error)

	// DeleteByTransaction removes every row citing the transaction and
	// returns the count. Zero rows is not an error.
	DeleteByTransaction(ctx context.Context, transactionID int64) (int64, error)

	Watch(ctx context.Context) (*Feed[CrossRef], error)
}

// CurrencyStore persists the flat currency lookup set.
type CurrencyStore interface {
	Create(ctx context.Context, currency *Currency) (int64, error)
	Update(ctx context.Context, currency *Currency) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*Currency, error)
	List(ctx context.Context) ([]Currency, error)
	Watch(ctx context.Context) (*Feed[Currency], error)
}

// Store is the aggregate handle over one backing engine. It is
// explicitly constructed and explicitly owned; there is no ambient
// process-wide instance.
type Store interface {
	Transactions() TransactionStore
	ChatGroups() ChatGroupStore
	ChatMessages() ChatMessageStore
	CrossRefs() CrossRefStore
	Currencies() CurrencyStore

	// RunInTx runs fn against a store view whose writes commit or roll
	// back as one unit. Live feeds observe only the committed state;
	// change notifications fire after commit. Nested RunInTx joins the
	// surrounding unit. Watch calls on the view observe the root store.
	RunInTx(ctx context.Context, fn func(tx Store) error) error

	// Close releases the engine handle. Further operations fail with
	// ErrStoreClosed.
	Close() error
}
