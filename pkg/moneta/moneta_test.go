package moneta_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/moneta-app/moneta/pkg/moneta"
	"github.com/moneta-app/moneta/pkg/rag"
	"github.com/moneta-app/moneta/pkg/store"
)

func TestOpenRejectsUnknownBackend(t *testing.T) {
	cfg := moneta.DefaultConfig(filepath.Join(t.TempDir(), "x.db"))
	cfg.Backend = "graph"
	if _, err := moneta.Open(context.Background(), cfg); err == nil {
		t.Fatal("Open accepted an unknown backend")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MONETA_DB_PATH", "/tmp/env.db")
	t.Setenv("MONETA_DB_BACKEND", "relational")

	cfg := moneta.FromEnv()
	if cfg.Path != "/tmp/env.db" {
		t.Errorf("Path = %q", cfg.Path)
	}
	if cfg.Backend != moneta.BackendRelational {
		t.Errorf("Backend = %q", cfg.Backend)
	}
}

// TestEndToEnd runs the same assistant workflow on both backends:
// record spending, hold a conversation about it, cite transactions from
// a message, retrieve them semantically, then tear the thread down.
func TestEndToEnd(t *testing.T) {
	for _, backend := range []moneta.Backend{moneta.BackendObject, moneta.BackendRelational} {
		t.Run(string(backend), func(t *testing.T) {
			ctx := context.Background()
			cfg := moneta.DefaultConfig(filepath.Join(t.TempDir(), "moneta.db"))
			cfg.Backend = backend

			db, err := moneta.Open(ctx, cfg)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer db.Close()

			embedder := rag.NewMockEmbedder(64)
			var txns []*store.Transaction
			for i, desc := range []string{"coffee downtown", "monthly rent", "grocery run"} {
				txn := &store.Transaction{
					Kind:        store.KindExpense,
					Timestamp:   int64(100 * (i + 1)),
					Amount:      float64(10 * (i + 1)),
					Currency:    "USD",
					Category:    "living",
					Description: desc,
				}
				if err := rag.EmbedTransaction(ctx, embedder, txn); err != nil {
					t.Fatalf("EmbedTransaction: %v", err)
				}
				if _, err := db.Store().Transactions().Create(ctx, txn); err != nil {
					t.Fatalf("Create: %v", err)
				}
				txns = append(txns, txn)
			}

			group, err := db.Threads().CreateGroup(ctx, "spending review")
			if err != nil {
				t.Fatalf("CreateGroup: %v", err)
			}
			if _, err := db.Threads().AppendMessage(ctx, group.ID, true, "how much on coffee?"); err != nil {
				t.Fatalf("AppendMessage: %v", err)
			}
			reply, err := db.Threads().AppendMessage(ctx, group.ID, false, "you spent $10 on coffee")
			if err != nil {
				t.Fatalf("AppendMessage: %v", err)
			}
			if reply.Order != 1 {
				t.Errorf("reply Order = %d, want 1", reply.Order)
			}

			if err := db.CrossRefs().Associate(ctx, reply.ID, txns[0].ID); err != nil {
				t.Fatalf("Associate: %v", err)
			}
			cited, err := db.CrossRefs().TransactionsFor(ctx, reply.ID)
			if err != nil {
				t.Fatalf("TransactionsFor: %v", err)
			}
			if len(cited) != 1 || cited[0].ID != txns[0].ID {
				t.Fatalf("cited = %+v, want the coffee transaction", cited)
			}

			query, err := embedder.Embed(ctx, txns[0].TextToEmbed)
			if err != nil {
				t.Fatalf("Embed: %v", err)
			}
			hits, err := db.ContextBuilder().BuildContext(ctx, query, 2, 0, 1000)
			if err != nil {
				t.Fatalf("BuildContext: %v", err)
			}
			if len(hits) == 0 || hits[0].ID != txns[0].ID {
				t.Fatalf("BuildContext top hit = %+v, want the coffee transaction", hits)
			}

			if err := db.Threads().DeleteGroup(ctx, group.ID); err != nil {
				t.Fatalf("DeleteGroup: %v", err)
			}
			refs, err := db.Store().CrossRefs().ListByTransaction(ctx, txns[0].ID)
			if err != nil {
				t.Fatalf("ListByTransaction: %v", err)
			}
			if len(refs) != 0 {
				t.Errorf("%d association rows survived the thread", len(refs))
			}
			if _, err := db.Store().Transactions().Get(ctx, txns[0].ID); err != nil {
				t.Errorf("transaction should survive the thread: %v", err)
			}
		})
	}
}
