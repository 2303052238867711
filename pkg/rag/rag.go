// Package rag assembles retrieval context for the assistant: given a
// query embedding, it returns the most semantically relevant
// transactions in a time window, ready to be folded into a prompt.
package rag

import (
	"context"
	"fmt"

	"github.com/moneta-app/moneta/internal/vectorenc"
	"github.com/moneta-app/moneta/pkg/rank"
	"github.com/moneta-app/moneta/pkg/store"
)

// Embedder turns text into a vector. Implementations call out to an
// embedding service; the interface keeps that service out of this
// module's scope.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dim() int
}

// EmbedTransaction derives the transaction's embedding text, runs it
// through e and attaches the encoded result. A transaction that yields
// no text is left unembedded, which excludes it from ranking.
func EmbedTransaction(ctx context.Context, e Embedder, txn *store.Transaction) error {
	text := txn.EmbedText()
	if text == "" {
		txn.TextToEmbed = ""
		txn.Embedding = ""
		return nil
	}

	vec, err := e.Embed(ctx, text)
	if err != nil {
		return store.Wrap("embed", err)
	}
	if len(vec) == 0 {
		return store.Wrap("embed", fmt.Errorf("embedder returned an empty vector"))
	}

	txn.TextToEmbed = text
	txn.Embedding = vectorenc.Encode(vec)
	return nil
}

// ContextBuilder produces ranked transaction context for a query.
type ContextBuilder struct {
	txns   store.TransactionStore
	ranker *rank.Ranker
	log    store.Logger
}

// NewContextBuilder creates a builder reading candidates from txns and
// scoring them with ranker. A nil logger disables logging.
func NewContextBuilder(txns store.TransactionStore, ranker *rank.Ranker, log store.Logger) *ContextBuilder {
	if log == nil {
		log = store.NopLogger()
	}
	return &ContextBuilder{txns: txns, ranker: ranker, log: log}
}

// BuildContext returns up to k transactions with timestamps in
// [from, to], ordered most relevant first. Transactions without a
// usable embedding never appear. The result is empty, never an error,
// when nothing qualifies.
func (b *ContextBuilder) BuildContext(ctx context.Context, query []float64, k int, from, to int64) ([]store.Transaction, error) {
	candidates, err := b.txns.ListByDateRange(ctx, from, to)
	if err != nil {
		return nil, err
	}

	scored := b.ranker.Rank(query, candidates, k, from, to)
	out := make([]store.Transaction, len(scored))
	for i, s := range scored {
		out[i] = s.Transaction
	}
	b.log.Debug("built retrieval context", "candidates", len(candidates), "selected", len(out))
	return out, nil
}
