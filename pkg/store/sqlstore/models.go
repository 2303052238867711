package sqlstore

import "github.com/moneta-app/moneta/pkg/store"

// Row types declare the relational schema: typed columns, foreign keys
// and indexes. Converters translate to and from the contract types so
// callers never see gorm tags.

type transactionRow struct {
	ID          int64   `gorm:"primaryKey;autoIncrement"`
	Type        string  `gorm:"not null"`
	Timestamp   int64   `gorm:"not null;index"`
	Amount      float64 `gorm:"not null"`
	Currency    string  `gorm:"not null"`
	Category    string  `gorm:"not null"`
	Description *string
	TextToEmbed *string `gorm:"column:text_to_embed"`
	Embedding   *string
}

func (transactionRow) TableName() string { return "transactions" }

func toTransactionRow(t *store.Transaction) transactionRow {
	return transactionRow{
		ID:          t.ID,
		Type:        string(t.Kind),
		Timestamp:   t.Timestamp,
		Amount:      t.Amount,
		Currency:    t.Currency,
		Category:    t.Category,
		Description: optional(t.Description),
		TextToEmbed: optional(t.TextToEmbed),
		Embedding:   optional(t.Embedding),
	}
}

func fromTransactionRow(r transactionRow) store.Transaction {
	return store.Transaction{
		ID:          r.ID,
		Kind:        store.Kind(r.Type),
		Timestamp:   r.Timestamp,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Category:    r.Category,
		Description: value(r.Description),
		TextToEmbed: value(r.TextToEmbed),
		Embedding:   value(r.Embedding),
	}
}

type chatGroupRow struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"not null"`
	Timestamp int64  `gorm:"not null"`
}

func (chatGroupRow) TableName() string { return "chat_groups" }

func toChatGroupRow(g *store.ChatGroup) chatGroupRow {
	return chatGroupRow{ID: g.ID, Name: g.Name, Timestamp: g.Timestamp}
}

func fromChatGroupRow(r chatGroupRow) store.ChatGroup {
	return store.ChatGroup{ID: r.ID, Name: r.Name, Timestamp: r.Timestamp}
}

type chatMessageRow struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	ChatGroupID int64  `gorm:"not null;index"`
	IsUser      bool   `gorm:"not null"`
	Order       int64  `gorm:"column:msg_order;not null"`
	Message     string `gorm:"not null"`
	Timestamp   int64  `gorm:"not null"`

	Group chatGroupRow `gorm:"foreignKey:ChatGroupID;constraint:OnDelete:CASCADE"`
}

func (chatMessageRow) TableName() string { return "chat_messages" }

func toChatMessageRow(m *store.ChatMessage) chatMessageRow {
	return chatMessageRow{
		ID:          m.ID,
		ChatGroupID: m.GroupID,
		IsUser:      m.IsUser,
		Order:       m.Order,
		Message:     m.Message,
		Timestamp:   m.Timestamp,
	}
}

func fromChatMessageRow(r chatMessageRow) store.ChatMessage {
	return store.ChatMessage{
		ID:        r.ID,
		GroupID:   r.ChatGroupID,
		IsUser:    r.IsUser,
		Order:     r.Order,
		Message:   r.Message,
		Timestamp: r.Timestamp,
	}
}

// crossRefRow has the composite primary key (chat_message_id,
// transaction_id). Both foreign keys cascade on parent deletion: a
// composite primary key column cannot be nulled out, so "keep the row
// with one side cleared" is not a satisfiable behavior.
type crossRefRow struct {
	ChatMessageID int64 `gorm:"primaryKey;index"`
	TransactionID int64 `gorm:"primaryKey;index"`

	Message     chatMessageRow `gorm:"foreignKey:ChatMessageID;constraint:OnDelete:CASCADE"`
	Transaction transactionRow `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
}

func (crossRefRow) TableName() string { return "chat_message_txn_refs" }

func toCrossRefRow(ref *store.CrossRef) crossRefRow {
	return crossRefRow{ChatMessageID: ref.MessageID, TransactionID: ref.TransactionID}
}

func fromCrossRefRow(r crossRefRow) store.CrossRef {
	return store.CrossRef{MessageID: r.ChatMessageID, TransactionID: r.TransactionID}
}

type currencyRow struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Currency string `gorm:"not null"`
}

func (currencyRow) TableName() string { return "currencies" }

func toCurrencyRow(c *store.Currency) currencyRow {
	return currencyRow{ID: c.ID, Currency: c.Code}
}

func fromCurrencyRow(r currencyRow) store.Currency {
	return store.Currency{ID: r.ID, Code: r.Currency}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
