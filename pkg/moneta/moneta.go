// Package moneta is the high-level entry point: it opens a storage
// backend and wires the thread, association and retrieval services on
// top of it.
package moneta

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/moneta-app/moneta/pkg/chat"
	"github.com/moneta-app/moneta/pkg/rag"
	"github.com/moneta-app/moneta/pkg/rank"
	"github.com/moneta-app/moneta/pkg/store"
	"github.com/moneta-app/moneta/pkg/store/objectstore"
	"github.com/moneta-app/moneta/pkg/store/sqlstore"
	"github.com/moneta-app/moneta/pkg/xref"
)

// Backend selects a storage implementation. Both satisfy the same
// contracts with identical observable behavior; the choice is a
// deployment concern.
type Backend string

const (
	// BackendObject stores entities as schemaless documents.
	BackendObject Backend = "object"
	// BackendRelational stores entities in typed tables with declared
	// foreign keys.
	BackendRelational Backend = "relational"
)

// Config holds the options for Open.
type Config struct {
	// Path is the database file location.
	Path string
	// Backend selects the storage implementation.
	Backend Backend
	// Logger receives diagnostics. Nil disables logging.
	Logger store.Logger
}

// DefaultConfig returns a config with sensible defaults: the object
// backend and no logging.
func DefaultConfig(path string) Config {
	return Config{
		Path:    path,
		Backend: BackendObject,
		Logger:  store.NopLogger(),
	}
}

// FromEnv builds a config from the environment, loading a .env file
// first when one is present. Recognized variables are MONETA_DB_PATH,
// MONETA_DB_BACKEND and MONETA_LOG_LEVEL.
func FromEnv() Config {
	_ = godotenv.Load()

	path := os.Getenv("MONETA_DB_PATH")
	if path == "" {
		path = "moneta.db"
	}
	cfg := DefaultConfig(path)
	if b := os.Getenv("MONETA_DB_BACKEND"); b != "" {
		cfg.Backend = Backend(b)
	}
	if lvl := os.Getenv("MONETA_LOG_LEVEL"); lvl != "" {
		cfg.Logger = store.NewStdLogger(store.ParseLogLevel(lvl))
	}
	return cfg
}

// DB is an opened database with its services.
type DB struct {
	store   store.Store
	ranker  *rank.Ranker
	refs    *xref.Manager
	threads *chat.Threads
	builder *rag.ContextBuilder
}

// Open opens the configured backend and wires the services over it.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	log := cfg.Logger
	if log == nil {
		log = store.NopLogger()
	}

	var (
		s   store.Store
		err error
	)
	switch cfg.Backend {
	case BackendObject, "":
		s, err = objectstore.Open(ctx, cfg.Path, log)
	case BackendRelational:
		s, err = sqlstore.Open(ctx, cfg.Path, log)
	default:
		return nil, store.Wrap("open", fmt.Errorf("unknown backend %q", cfg.Backend))
	}
	if err != nil {
		return nil, err
	}

	ranker, err := rank.New(log)
	if err != nil {
		s.Close()
		return nil, store.Wrap("open", err)
	}

	refs := xref.New(s, log)
	return &DB{
		store:   s,
		ranker:  ranker,
		refs:    refs,
		threads: chat.New(s, refs, log),
		builder: rag.NewContextBuilder(s.Transactions(), ranker, log),
	}, nil
}

// Store returns the raw storage contracts.
func (db *DB) Store() store.Store { return db.store }

// Threads returns the conversation manager.
func (db *DB) Threads() *chat.Threads { return db.threads }

// CrossRefs returns the message/transaction association manager.
func (db *DB) CrossRefs() *xref.Manager { return db.refs }

// Ranker returns the similarity ranker.
func (db *DB) Ranker() *rank.Ranker { return db.ranker }

// ContextBuilder returns the retrieval context builder.
func (db *DB) ContextBuilder() *rag.ContextBuilder { return db.builder }

// Close releases the underlying backend.
func (db *DB) Close() error { return db.store.Close() }
