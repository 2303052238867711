package rank

import (
	"math"
	"testing"

	"github.com/moneta-app/moneta/internal/vectorenc"
	"github.com/moneta-app/moneta/pkg/store"
)

func newRanker(t *testing.T) *Ranker {
	t.Helper()
	r, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func txnWithVector(id, ts int64, vec []float64) store.Transaction {
	return store.Transaction{
		ID:        id,
		Kind:      store.KindExpense,
		Timestamp: ts,
		Amount:    1,
		Currency:  "USD",
		Category:  "test",
		Embedding: vectorenc.Encode(vec),
	}
}

func TestRankOrdersByScore(t *testing.T) {
	r := newRanker(t)
	query := []float64{1, 0, 0}

	candidates := []store.Transaction{
		txnWithVector(1, 100, []float64{0, 1, 0}),       // orthogonal
		txnWithVector(2, 100, []float64{1, 0, 0}),       // identical direction
		txnWithVector(3, 100, []float64{1, 1, 0}),       // partial match
		txnWithVector(4, 100, []float64{-1, 0, 0}),      // opposite
		txnWithVector(5, 100, []float64{100, 0.1, 0.1}), // near match, scaled
	}

	got := r.Rank(query, candidates, 10, 0, 200)
	if len(got) != 5 {
		t.Fatalf("got %d results, want 5", len(got))
	}

	wantOrder := []int64{2, 5, 3, 1, 4}
	for i, want := range wantOrder {
		if got[i].Transaction.ID != want {
			t.Errorf("position %d: got id %d, want %d", i, got[i].Transaction.ID, want)
		}
	}
	if got[0].Score < 0.999 {
		t.Errorf("identical direction scored %f, want ~1", got[0].Score)
	}
	if got[4].Score > -0.999 {
		t.Errorf("opposite direction scored %f, want ~-1", got[4].Score)
	}
}

func TestRankTieBreaks(t *testing.T) {
	r := newRanker(t)
	query := []float64{1, 0}
	same := []float64{2, 0} // same direction for every candidate

	candidates := []store.Transaction{
		txnWithVector(3, 100, same),
		txnWithVector(1, 200, same),
		txnWithVector(2, 200, same),
	}

	got := r.Rank(query, candidates, 10, 0, 300)
	if len(got) != 3 {
		t.Fatalf("got %d results, want 3", len(got))
	}
	// Equal scores: newer timestamp first, then lower id.
	wantOrder := []int64{1, 2, 3}
	for i, want := range wantOrder {
		if got[i].Transaction.ID != want {
			t.Errorf("position %d: got id %d, want %d", i, got[i].Transaction.ID, want)
		}
	}
}

func TestRankWindowAndTopK(t *testing.T) {
	r := newRanker(t)
	query := []float64{1, 0}

	candidates := []store.Transaction{
		txnWithVector(1, 50, []float64{1, 0}),  // before window
		txnWithVector(2, 100, []float64{1, 0}), // on lower bound
		txnWithVector(3, 150, []float64{1, 1}),
		txnWithVector(4, 200, []float64{1, 0}), // on upper bound
		txnWithVector(5, 250, []float64{1, 0}), // after window
	}

	got := r.Rank(query, candidates, 10, 100, 200)
	if len(got) != 3 {
		t.Fatalf("window [100,200]: got %d results, want 3 (bounds inclusive)", len(got))
	}

	got = r.Rank(query, candidates, 2, 100, 200)
	if len(got) != 2 {
		t.Fatalf("k=2: got %d results", len(got))
	}
	if got[0].Transaction.ID != 4 || got[1].Transaction.ID != 2 {
		t.Errorf("top-2 = (%d, %d), want (4, 2)", got[0].Transaction.ID, got[1].Transaction.ID)
	}
}

func TestRankSkipsUnusableCandidates(t *testing.T) {
	r := newRanker(t)
	query := []float64{1, 0}

	noEmbedding := store.Transaction{ID: 1, Timestamp: 100}
	malformed := store.Transaction{ID: 2, Timestamp: 100, Embedding: "not,a,vector"}
	wrongDim := txnWithVector(3, 100, []float64{1, 0, 0})
	zeroVec := txnWithVector(4, 100, []float64{0, 0})
	good := txnWithVector(5, 100, []float64{1, 0})

	got := r.Rank(query, []store.Transaction{noEmbedding, malformed, wrongDim, zeroVec, good}, 10, 0, 200)
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].Transaction.ID != 5 {
		t.Errorf("survivor id = %d, want 5", got[0].Transaction.ID)
	}
}

func TestRankDegenerateInputs(t *testing.T) {
	r := newRanker(t)
	candidates := []store.Transaction{txnWithVector(1, 100, []float64{1, 0})}

	if got := r.Rank(nil, candidates, 5, 0, 200); got != nil {
		t.Errorf("empty query returned %d results", len(got))
	}
	if got := r.Rank([]float64{0, 0}, candidates, 5, 0, 200); got != nil {
		t.Errorf("zero-magnitude query returned %d results", len(got))
	}
	if got := r.Rank([]float64{1, 0}, candidates, 0, 0, 200); got != nil {
		t.Errorf("k=0 returned %d results", len(got))
	}
	if got := r.Rank([]float64{1, 0}, nil, 5, 0, 200); len(got) != 0 {
		t.Errorf("no candidates returned %d results", len(got))
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"scaled", []float64{1, 1}, []float64{5, 5}, 1},
		{"length mismatch", []float64{1, 0}, []float64{1, 0, 0}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine = %f, want %f", got, tt.want)
			}
		})
	}
}
