// Package rank scores transactions by vector closeness to a query
// embedding. Ranking is a deliberate full scan: the backing engines
// provide no native vector index, and at personal-finance volumes a
// linear pass with O(d) per comparison is cheaper than maintaining one.
package rank

import (
	"math"
	"sort"

	"github.com/dgraph-io/ristretto"

	"github.com/moneta-app/moneta/internal/vectorenc"
	"github.com/moneta-app/moneta/pkg/store"
)

// Scored pairs a transaction with its similarity score.
type Scored struct {
	Transaction store.Transaction
	Score       float64
}

// Ranker computes cosine-similarity rankings. Decoded vectors are
// cached keyed by their encoded text, so repeated scans over a stable
// ledger skip the text decode.
type Ranker struct {
	cache *ristretto.Cache
	log   store.Logger
}

// New creates a ranker. A nil logger disables logging.
func New(log store.Logger) (*Ranker, error) {
	if log == nil {
		log = store.NopLogger()
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1 << 14,
		MaxCost:     32 << 20, // decoded vectors, 8 bytes per dimension
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Ranker{cache: cache, log: log}, nil
}

// Rank filters candidates to those with timestamp in [from, to] and a
// decodable embedding, scores them against query and returns at most k
// results ordered by descending score. Ties go to the more recent
// timestamp, then the lower identity. Candidates without a usable
// embedding are skipped, never surfaced as an error; a zero-magnitude
// query or candidate cannot be compared and yields no entry either.
func (r *Ranker) Rank(query []float64, candidates []store.Transaction, k int, from, to int64) []Scored {
	if k <= 0 || len(query) == 0 {
		return nil
	}

	queryNorm := norm(query)
	if queryNorm == 0 {
		return nil
	}

	scored := make([]Scored, 0, len(candidates))
	for _, txn := range candidates {
		if txn.Timestamp < from || txn.Timestamp > to {
			continue
		}
		vec, ok := r.vector(&txn)
		if !ok {
			continue
		}
		if len(vec) != len(query) {
			r.log.Debug("skipping transaction with mismatched embedding dimension",
				"id", txn.ID, "want", len(query), "got", len(vec))
			continue
		}

		vecNorm := norm(vec)
		if vecNorm == 0 {
			continue
		}
		scored = append(scored, Scored{
			Transaction: txn,
			Score:       dot(query, vec) / (queryNorm * vecNorm),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Transaction.Timestamp != scored[j].Transaction.Timestamp {
			return scored[i].Transaction.Timestamp > scored[j].Transaction.Timestamp
		}
		return scored[i].Transaction.ID < scored[j].Transaction.ID
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

// vector returns the candidate's decoded embedding, consulting the
// cache first. A malformed embedding is logged and reported as absent.
func (r *Ranker) vector(txn *store.Transaction) ([]float64, bool) {
	if txn.Embedding == "" {
		return nil, false
	}
	if cached, ok := r.cache.Get(txn.Embedding); ok {
		if vec, ok := cached.([]float64); ok {
			return vec, true
		}
	}

	vec, err := vectorenc.Decode(txn.Embedding)
	if err != nil || len(vec) == 0 {
		r.log.Warn("excluding transaction with undecodable embedding", "id", txn.ID, "error", err)
		return nil, false
	}
	r.cache.Set(txn.Embedding, vec, int64(8*len(vec)))
	return vec, true
}

// Cosine calculates cosine similarity between two vectors. It returns
// 0 when the lengths differ or either magnitude is zero.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0.0
	}
	return dot(a, b) / (na * nb)
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}
