package objectstore

import (
	"context"

	"github.com/moneta-app/moneta/pkg/store"
)

func newTransactions(s session) *transactions {
	return &transactions{c: collection[store.Transaction]{
		s:        s,
		kind:     kindTransaction,
		table:    store.TableTransactions,
		id:       func(t *store.Transaction) int64 { return t.ID },
		setID:    func(t *store.Transaction, id int64) { t.ID = id },
		validate: func(t *store.Transaction) error { return t.Validate() },
	}}
}

type transactions struct {
	c collection[store.Transaction]
}

func (s *transactions) Create(ctx context.Context, txn *store.Transaction) (int64, error) {
	return s.c.create(ctx, txn)
}

func (s *transactions) Update(ctx context.Context, txn *store.Transaction) error {
	return s.c.update(ctx, txn)
}

func (s *transactions) Delete(ctx context.Context, id int64) error {
	return s.c.delete(ctx, id)
}

func (s *transactions) Get(ctx context.Context, id int64) (*store.Transaction, error) {
	return s.c.get(ctx, id)
}

func (s *transactions) List(ctx context.Context) ([]store.Transaction, error) {
	return s.c.list(ctx, nil)
}

func (s *transactions) ListByDateRange(ctx context.Context, from, to int64) ([]store.Transaction, error) {
	return s.c.list(ctx, inWindow(from, to))
}

func (s *transactions) Watch(ctx context.Context) (*store.Feed[store.Transaction], error) {
	return s.c.watch(ctx, nil)
}

func (s *transactions) WatchByDateRange(ctx context.Context, from, to int64) (*store.Feed[store.Transaction], error) {
	return s.c.watch(ctx, inWindow(from, to))
}

func inWindow(from, to int64) func(*store.Transaction) bool {
	return func(t *store.Transaction) bool {
		return t.Timestamp >= from && t.Timestamp <= to
	}
}

func newChatGroups(s session) *chatGroups {
	return &chatGroups{c: collection[store.ChatGroup]{
		s:        s,
		kind:     kindChatGroup,
		table:    store.TableChatGroups,
		id:       func(g *store.ChatGroup) int64 { return g.ID },
		setID:    func(g *store.ChatGroup, id int64) { g.ID = id },
		validate: func(g *store.ChatGroup) error { return g.Validate() },
	}}
}

type chatGroups struct {
	c collection[store.ChatGroup]
}

func (s *chatGroups) Create(ctx context.Context, group *store.ChatGroup) (int64, error) {
	return s.c.create(ctx, group)
}

func (s *chatGroups) Update(ctx context.Context, group *store.ChatGroup) error {
	return s.c.update(ctx, group)
}

func (s *chatGroups) Delete(ctx context.Context, id int64) error {
	return s.c.delete(ctx, id)
}

func (s *chatGroups) Get(ctx context.Context, id int64) (*store.ChatGroup, error) {
	return s.c.get(ctx, id)
}

func (s *chatGroups) List(ctx context.Context) ([]store.ChatGroup, error) {
	return s.c.list(ctx, nil)
}

func (s *chatGroups) Watch(ctx context.Context) (*store.Feed[store.ChatGroup], error) {
	return s.c.watch(ctx, nil)
}

func newChatMessages(s session) *chatMessages {
	return &chatMessages{c: collection[store.ChatMessage]{
		s:        s,
		kind:     kindChatMessage,
		table:    store.TableChatMessages,
		id:       func(m *store.ChatMessage) int64 { return m.ID },
		setID:    func(m *store.ChatMessage, id int64) { m.ID = id },
		validate: func(m *store.ChatMessage) error { return m.Validate() },
		less: func(a, b store.ChatMessage) bool {
			if a.GroupID != b.GroupID {
				return a.GroupID < b.GroupID
			}
			return a.Order < b.Order
		},
	}}
}

type chatMessages struct {
	c collection[store.ChatMessage]
}

func (s *chatMessages) Create(ctx context.Context, msg *store.ChatMessage) (int64, error) {
	return s.c.create(ctx, msg)
}

func (s *chatMessages) Update(ctx context.Context, msg *store.ChatMessage) error {
	return s.c.update(ctx, msg)
}

func (s *chatMessages) Delete(ctx context.Context, id int64) error {
	return s.c.delete(ctx, id)
}

func (s *chatMessages) Get(ctx context.Context, id int64) (*store.ChatMessage, error) {
	return s.c.get(ctx, id)
}

func (s *chatMessages) List(ctx context.Context) ([]store.ChatMessage, error) {
	return s.c.list(ctx, nil)
}

func (s *chatMessages) ListByGroup(ctx context.Context, groupID int64) ([]store.ChatMessage, error) {
	return s.c.list(ctx, func(m *store.ChatMessage) bool { return m.GroupID == groupID })
}

func (s *chatMessages) MaxOrder(ctx context.Context, groupID int64) (int64, bool, error) {
	msgs, err := s.ListByGroup(ctx, groupID)
	if err != nil {
		return 0, false, err
	}
	if len(msgs) == 0 {
		return 0, false, nil
	}
	// ListByGroup is ordered by Order ascending.
	return msgs[len(msgs)-1].Order, true, nil
}

func (s *chatMessages) DeleteByGroup(ctx context.Context, groupID int64) (int64, error) {
	return s.c.deleteWhere(ctx, func(m *store.ChatMessage) bool { return m.GroupID == groupID })
}

func (s *chatMessages) Watch(ctx context.Context) (*store.Feed[store.ChatMessage], error) {
	return s.c.watch(ctx, nil)
}

func (s *chatMessages) WatchByGroup(ctx context.Context, groupID int64) (*store.Feed[store.ChatMessage], error) {
	return s.c.watch(ctx, func(m *store.ChatMessage) bool { return m.GroupID == groupID })
}

func newCurrencies(s session) *currencies {
	return &currencies{c: collection[store.Currency]{
		s:        s,
		kind:     kindCurrency,
		table:    store.TableCurrencies,
		id:       func(c *store.Currency) int64 { return c.ID },
		setID:    func(c *store.Currency, id int64) { c.ID = id },
		validate: func(c *store.Currency) error { return c.Validate() },
	}}
}

type currencies struct {
	c collection[store.Currency]
}

func (s *currencies) Create(ctx context.Context, currency *store.Currency) (int64, error) {
	return s.c.create(ctx, currency)
}

func (s *currencies) Update(ctx context.Context, currency *store.Currency) error {
	return s.c.update(ctx, currency)
}

func (s *currencies) Delete(ctx context.Context, id int64) error {
	return s.c.delete(ctx, id)
}

func (s *currencies) Get(ctx context.Context, id int64) (*store.Currency, error) {
	return s.c.get(ctx, id)
}

func (s *currencies) List(ctx context.Context) ([]store.Currency, error) {
	return s.c.list(ctx, nil)
}

func (s *currencies) Watch(ctx context.Context) (*store.Feed[store.Currency], error) {
	return s.c.watch(ctx, nil)
}
