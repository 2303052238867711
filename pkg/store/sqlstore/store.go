// Package sqlstore implements the store contracts on a relational
// schema with declared foreign keys. Cascades the engine enforces
// natively (group -> messages, parents -> association rows) are also
// performed by the managers in application code, which keeps observable
// behavior identical to the schemaless backend.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/moneta-app/moneta/pkg/store"
)

// session abstracts whether an operation runs in autocommit mode or
// inside a surrounding RunInTx unit.
type session interface {
	handle(ctx context.Context) (*gorm.DB, error)
	touch(tables ...string)
	rootStore() *Store
}

// Store is the relational backend handle.
type Store struct {
	db       *gorm.DB
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

// Open opens (creating and migrating if needed) the database at path.
func Open(ctx context.Context, path string, log store.Logger) (*Store, error) {
	if path == "" {
		return nil, store.Wrap("open", fmt.Errorf("database path cannot be empty"))
	}
	if log == nil {
		log = store.NopLogger()
	}

	// Foreign keys are off by default and the pragma is scoped per
	// connection; the DSN parameter applies it to every pooled
	// connection, not just the one that happens to run an Exec.
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=1"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, store.Wrap("open", store.Unavailable(err))
	}

	if err := db.WithContext(ctx).AutoMigrate(
		&chatGroupRow{},
		&transactionRow{},
		&chatMessageRow{},
		&crossRefRow{},
		&currencyRow{},
	); err != nil {
		return nil, store.Wrap("open", store.Unavailable(fmt.Errorf("failed to migrate schema: %w", err)))
	}

	s := &Store{
		db:       db,
		notifier: store.NewNotifier(),
		log:      log.With("backend", "relational"),
	}
	s.transactions = &transactions{s: s}
	s.groups = &chatGroups{s: s}
	s.messages = &chatMessages{s: s}
	s.refs = &crossRefs{s: s}
	s.currencies = &currencies{s: s}

	s.log.Debug("relational store opened", "path", path)
	return s, nil
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

	view := &txView{root: s, touched: make(map[string]struct{})}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		view.tx = tx
		return fn(view.storeView())
	})
	if err != nil {
		return err
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

	sqlDB, err := s.db.DB()
	if err != nil {
		return store.Wrap("close", store.Unavailable(err))
	}
	return sqlDB.Close()
}

func (s *Store) handle(ctx context.Context) (*gorm.DB, error) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return nil, store.ErrStoreClosed
	}
	return s.db.WithContext(ctx), nil
}

func (s *Store) touch(tables ...string) {
	s.notifier.Touch(tables...)
}

func (s *Store) rootStore() *Store { return s }

// txView is the session used inside RunInTx. Touched tables are held
// back until the unit commits.
type txView struct {
	root    *Store
	tx      *gorm.DB
	mu      sync.Mutex
	touched map[string]struct{}
}

func (v *txView) handle(ctx context.Context) (*gorm.DB, error) {
	return v.tx.WithContext(ctx), nil
}

func (v *txView) touch(tables ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, t := range tables {
		v.touched[t] = struct{}{}
	}
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

// storeView adapts the txView session into a store.Store.
func (v *txView) storeView() store.Store {
	return &viewStore{
		view:         v,
		transactions: &transactions{s: v},
		groups:       &chatGroups{s: v},
		messages:     &chatMessages{s: v},
		refs:         &crossRefs{s: v},
		currencies:   &currencies{s: v},
	}
}

type viewStore struct {
	view         *txView
	transactions *transactions
	groups       *chatGroups
	messages     *chatMessages
	refs         *crossRefs
	currencies   *currencies
}

func (s *viewStore) Transactions() store.TransactionStore { return s.transactions }
func (s *viewStore) ChatGroups() store.ChatGroupStore     { return s.groups }
func (s *viewStore) ChatMessages() store.ChatMessageStore { return s.messages }
func (s *viewStore) CrossRefs() store.CrossRefStore       { return s.refs }
func (s *viewStore) Currencies() store.CurrencyStore      { return s.currencies }

// RunInTx joins the surrounding unit.
func (s *viewStore) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op on a transaction view; the root owns the handle.
func (s *viewStore) Close() error { return nil }

// mapEngineErr folds gorm and driver failures into the store taxonomy.
func mapEngineErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	if strings.Contains(strings.ToLower(err.Error()), "constraint") {
		return fmt.Errorf("%w: %v", store.ErrConstraint, err)
	}
	return store.Unavailable(err)
}
