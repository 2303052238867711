package store

import (
	"fmt"
	"strings"

	"github.com/moneta-app/moneta/internal/vectorenc"
)

// Kind classifies a transaction as money in or money out.
type Kind string

const (
	// KindIncome marks money received.
	KindIncome Kind = "income"
	// KindExpense marks money spent.
	KindExpense Kind = "expense"
)

// Table names used for change notification. Both backends report writes
// against these logical tables regardless of their physical layout.
const (
	TableTransactions = "transactions"
	TableChatGroups   = "chat_groups"
	TableChatMessages = "chat_messages"
	TableCrossRefs    = "chat_message_txn_refs"
	TableCurrencies   = "currencies"
)

// Transaction is a single monetary movement. TextToEmbed and Embedding
// are optional: they are set only after the external embedding service
// produced a vector for the row.
type Transaction struct {
	ID          int64   `json:"id"`
	Kind        Kind    `json:"kind"`
	Timestamp   int64   `json:"timestamp"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category"`
	Description string  `json:"description,omitempty"`
	TextToEmbed string  `json:"textToEmbed,omitempty"`
	Embedding   string  `json:"embedding,omitempty"`
}

// EmbedText derives the text the embedding service should encode for
// this transaction: kind, amount, category and description joined into
// one line. Returns "" when there is nothing meaningful to embed.
func (t *Transaction) EmbedText() string {
	parts := []string{
		string(t.Kind),
		fmt.Sprintf("%.2f %s", t.Amount, t.Currency),
		t.Category,
	}
	if t.Description != "" {
		parts = append(parts, t.Description)
	}
	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return ""
	}
	return text
}

// Vector decodes the persisted embedding. A missing or undecodable
// embedding is reported as (nil, false); the row is then treated as
// having no embedding.
func (t *Transaction) Vector() ([]float64, bool) {
	if t.Embedding == "" {
		return nil, false
	}
	vec, err := vectorenc.Decode(t.Embedding)
	if err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

// Validate reports ErrConstraint when required fields are missing.
func (t *Transaction) Validate() error {
	if t.Kind != KindIncome && t.Kind != KindExpense {
		return fmt.Errorf("%w: transaction kind must be income or expense", ErrConstraint)
	}
	if t.Timestamp == 0 {
		return fmt.Errorf("%w: transaction timestamp is required", ErrConstraint)
	}
	if t.Currency == "" {
		return fmt.Errorf("%w: transaction currency is required", ErrConstraint)
	}
	if t.Category == "" {
		return fmt.Errorf("%w: transaction category is required", ErrConstraint)
	}
	return nil
}

// ChatGroup is a conversation thread owning an ordered set of messages.
type ChatGroup struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
}

// Validate reports ErrConstraint when required fields are missing.
func (g *ChatGroup) Validate() error {
	if g.Name == "" {
		return fmt.Errorf("%w: chat group name is required", ErrConstraint)
	}
	if g.Timestamp == 0 {
		return fmt.Errorf("%w: chat group timestamp is required", ErrConstraint)
	}
	return nil
}

// ChatMessage is a single message in a group. Order is unique and
// strictly increasing per group in insertion sequence; gaps are allowed.
type ChatMessage struct {
	ID        int64  `json:"id"`
	GroupID   int64  `json:"chatGroupId"`
	IsUser    bool   `json:"isUser"`
	Order     int64  `json:"order"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Validate reports ErrConstraint when required fields are missing.
func (m *ChatMessage) Validate() error {
	if m.GroupID == 0 {
		return fmt.Errorf("%w: chat message group id is required", ErrConstraint)
	}
	if m.Message == "" {
		return fmt.Errorf("%w: chat message text is required", ErrConstraint)
	}
	if m.Timestamp == 0 {
		return fmt.Errorf("%w: chat message timestamp is required", ErrConstraint)
	}
	if m.Order < 0 {
		return fmt.Errorf("%w: chat message order must not be negative", ErrConstraint)
	}
	return nil
}

// CrossRef records that an assistant message cited a transaction.
// The pair (MessageID, TransactionID) is the identity of the row.
type CrossRef struct {
	MessageID     int64 `json:"chatMessageId"`
	TransactionID int64 `json:"transactionId"`
}

// Validate reports ErrConstraint when either side of the pair is missing.
func (r *CrossRef) Validate() error {
	if r.MessageID == 0 || r.TransactionID == 0 {
		return fmt.Errorf("%w: cross reference needs both message and transaction ids", ErrConstraint)
	}
	return nil
}

// Currency is a flat lookup row. Code uniqueness is not enforced,
// matching the persisted schema.
type Currency struct {
	ID   int64  `json:"id"`
	Code string `json:"currency"`
}

// Validate reports ErrConstraint when the code is missing.
func (c *Currency) Validate() error {
	if c.Code == "" {
		return fmt.Errorf("%w: currency code is required", ErrConstraint)
	}
	return nil
}
