// Package objectstore implements the store contracts on a schemaless
// object table: every entity is a JSON document in a single
// objects(kind, id, data) table with identities handed out by a
// sequences table. The engine declares no per-entity schema and no
// foreign keys; ordering, filtering and referential integrity live in
// application code, which is what keeps its observable behavior
// identical to the relational backend.
package objectstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/moneta-app/moneta/pkg/store"

	_ "modernc.org/sqlite" // SQLite driver
)

// runner is the subset of database/sql shared by *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// session abstracts where an operation runs: directly against the
// database (each write in its own short transaction) or inside a
// surrounding RunInTx unit.
type session interface {
	// read returns the runner for queries plus a release func.
	read(ctx context.Context) (runner, func(), error)

	// write runs fn atomically and marks the logical tables as touched.
	// Touches reach the notifier only after the outermost commit.
	write(ctx context.Context, tables []string, fn func(r runner) error) error

	// rootStore returns the root store; live feeds always observe it.
	rootStore() *Store
}

// Store is the schemaless backend handle.
type Store struct {
	db       *sql.DB
	notifier *store.Notifier
	log      store.Logger

	mu     sync.RWMutex
	closed bool

	transactions *transactions
	groups       *chatGroups
	messages     *chatMessages
	refs         *crossRefs
	currencies   *currencies
}

// Open opens (creating if needed) the object database at path.
func Open(ctx context.Context, path string, log store.Logger) (*Store, error) {
	if path == "" {
		return nil, store.Wrap("open", fmt.Errorf("database path cannot be empty"))
	}
	if log == nil {
		log = store.NopLogger()
	}

	// _journal_mode=WAL: better concurrency
	// _busy_timeout=5000: wait up to 5s for a lock instead of failing
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, store.Wrap("open", store.Unavailable(err))
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(2 * time.Hour)

	s := &Store{
		db:       db,
		notifier: store.NewNotifier(),
		log:      log.With("backend", "object"),
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, store.Wrap("open", err)
	}

	s.transactions = newTransactions(s)
	s.groups = newChatGroups(s)
	s.messages = newChatMessages(s)
	s.refs = &crossRefs{s: s}
	s.currencies = newCurrencies(s)

	s.log.Debug("object store opened", "path", path)
	return s, nil
}

func (s *Store) createTables(ctx context.Context) error {
	createSQL := `
	CREATE TABLE IF NOT EXISTS objects (
		kind TEXT NOT NULL,
		id INTEGER NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (kind, id)
	);

	CREATE TABLE IF NOT EXISTS sequences (
		kind TEXT PRIMARY KEY,
		next INTEGER NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
		return store.Unavailable(fmt.Errorf("failed to create tables: %w", err))
	}
	return nil
}

// Transactions returns the transaction contract.
func (s *Store) Transactions() store.TransactionStore { return s.transactions }

// ChatGroups returns the chat group contract.
func (s *Store) ChatGroups() store.ChatGroupStore { return s.groups }

// ChatMessages returns the chat message contract.
func (s *Store) ChatMessages() store.ChatMessageStore { return s.messages }

// CrossRefs returns the association contract.
func (s *Store) CrossRefs() store.CrossRefStore { return s.refs }

// Currencies returns the currency contract.
func (s *Store) Currencies() store.CurrencyStore { return s.currencies }

// Notifier exposes the change hub, mainly for tests.
func (s *Store) Notifier() *store.Notifier { return s.notifier }

// RunInTx runs fn against a view whose writes commit as one unit.
// Change notifications fire only after the unit commits.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.Wrap("tx", store.ErrStoreClosed)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Wrap("tx", store.Unavailable(err))
	}

	view := newTxView(s, tx)
	if err := fn(view); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.Wrap("tx", store.Unavailable(err))
	}

	view.flushTouches()
	return nil
}

// Close releases the engine handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// read implements session for the root store.
func (s *Store) read(ctx context.Context) (runner, func(), error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, nil, store.ErrStoreClosed
	}
	return s.db, s.mu.RUnlock, nil
}

// write implements session for the root store: one short transaction
// per write, notification after commit.
func (s *Store) write(ctx context.Context, tables []string, fn func(r runner) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.ErrStoreClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Unavailable(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return store.Unavailable(err)
	}

	s.notifier.Touch(tables...)
	return nil
}

func (s *Store) rootStore() *Store { return s }

// txView is the store view handed to RunInTx callbacks. All writes run
// on the shared *sql.Tx; touched tables are flushed to the notifier
// after the outer commit.
type txView struct {
	root    *Store
	tx      *sql.Tx
	mu      sync.Mutex
	touched map[string]struct{}

	transactions *transactions
	groups       *chatGroups
	messages     *chatMessages
	refs         *crossRefs
	currencies   *currencies
}

func newTxView(root *Store, tx *sql.Tx) *txView {
	v := &txView{root: root, tx: tx, touched: make(map[string]struct{})}
	v.transactions = newTransactions(v)
	v.groups = newChatGroups(v)
	v.messages = newChatMessages(v)
	v.refs = &crossRefs{s: v}
	v.currencies = newCurrencies(v)
	return v
}

func (v *txView) Transactions() store.TransactionStore { return v.transactions }
func (v *txView) ChatGroups() store.ChatGroupStore     { return v.groups }
func (v *txView) ChatMessages() store.ChatMessageStore { return v.messages }
func (v *txView) CrossRefs() store.CrossRefStore       { return v.refs }
func (v *txView) Currencies() store.CurrencyStore      { return v.currencies }

// RunInTx joins the surrounding unit.
func (v *txView) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(v)
}

// Close is a no-op on a transaction view; the root owns the handle.
func (v *txView) Close() error { return nil }

func (v *txView) read(ctx context.Context) (runner, func(), error) {
	return v.tx, func() {}, nil
}

func (v *txView) write(ctx context.Context, tables []string, fn func(r runner) error) error {
	if err := fn(v.tx); err != nil {
		return err
	}
	v.mu.Lock()
	for _, t := range tables {
		v.touched[t] = struct{}{}
	}
	v.mu.Unlock()
	return nil
}

func (v *txView) rootStore() *Store { return v.root }

func (v *txView) flushTouches() {
	v.mu.Lock()
	tables := make([]string, 0, len(v.touched))
	for t := range v.touched {
		tables = append(tables, t)
	}
	v.mu.Unlock()

	if len(tables) > 0 {
		v.root.notifier.Touch(tables...)
	}
}
