package rag_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/moneta-app/moneta/internal/vectorenc"
	"github.com/moneta-app/moneta/pkg/rag"
	"github.com/moneta-app/moneta/pkg/rank"
	"github.com/moneta-app/moneta/pkg/store"
	"github.com/moneta-app/moneta/pkg/store/objectstore"
)

func TestMockEmbedderDeterministic(t *testing.T) {
	ctx := context.Background()
	e := rag.NewMockEmbedder(64)

	a1, err := e.Embed(ctx, "coffee at the corner shop")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	a2, err := e.Embed(ctx, "coffee at the corner shop")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(ctx, "monthly rent payment")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(a1) != 64 || e.Dim() != 64 {
		t.Fatalf("dimension = %d, want 64", len(a1))
	}
	if rank.Cosine(a1, a2) < 0.999999 {
		t.Error("equal texts produced different vectors")
	}
	if sim := rank.Cosine(a1, b); sim > 0.9 {
		t.Errorf("different texts landed on nearly the same direction: %f", sim)
	}
}

func TestEmbedTransaction(t *testing.T) {
	ctx := context.Background()
	e := rag.NewMockEmbedder(32)

	txn := &store.Transaction{
		Kind:        store.KindExpense,
		Timestamp:   100,
		Amount:      4.20,
		Currency:    "USD",
		Category:    "coffee",
		Description: "flat white",
	}
	if err := rag.EmbedTransaction(ctx, e, txn); err != nil {
		t.Fatalf("EmbedTransaction: %v", err)
	}

	if txn.TextToEmbed != txn.EmbedText() {
		t.Errorf("TextToEmbed = %q, want %q", txn.TextToEmbed, txn.EmbedText())
	}
	vec, ok := txn.Vector()
	if !ok {
		t.Fatal("embedding did not round-trip")
	}
	if len(vec) != 32 {
		t.Errorf("decoded dimension = %d, want 32", len(vec))
	}

	want, _ := e.Embed(ctx, txn.TextToEmbed)
	if rank.Cosine(vec, want) < 0.999999 {
		t.Error("persisted vector differs from the embedder output")
	}
}

func TestBuildContext(t *testing.T) {
	ctx := context.Background()
	s, err := objectstore.Open(ctx, filepath.Join(t.TempDir(), "rag.db"), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	ranker, err := rank.New(nil)
	if err != nil {
		t.Fatalf("rank.New: %v", err)
	}
	builder := rag.NewContextBuilder(s.Transactions(), ranker, nil)

	seed := []struct {
		ts  int64
		vec []float64
	}{
		{100, []float64{1, 0}},  // strong match, old
		{200, []float64{0, 1}},  // orthogonal
		{300, []float64{1, 1}},  // partial match
		{900, []float64{1, 0}},  // strong match, outside window
		{400, nil},              // no embedding, never surfaced
	}
	var ids []int64
	for _, row := range seed {
		txn := &store.Transaction{
			Kind:      store.KindExpense,
			Timestamp: row.ts,
			Amount:    1,
			Currency:  "USD",
			Category:  "test",
		}
		if row.vec != nil {
			txn.Embedding = vectorenc.Encode(row.vec)
		}
		if _, err := s.Transactions().Create(ctx, txn); err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, txn.ID)
	}

	got, err := builder.BuildContext(ctx, []float64{1, 0}, 2, 100, 500)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d transactions, want 2", len(got))
	}
	if got[0].ID != ids[0] || got[1].ID != ids[2] {
		t.Errorf("ids = (%d, %d), want (%d, %d)", got[0].ID, got[1].ID, ids[0], ids[2])
	}

	// Nothing in the window is a result, not an error.
	got, err = builder.BuildContext(ctx, []float64{1, 0}, 2, 1000, 2000)
	if err != nil {
		t.Fatalf("BuildContext on empty window: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("empty window returned %d transactions", len(got))
	}
}
