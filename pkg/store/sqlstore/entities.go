package sqlstore

import (
	"context"
	"database/sql"

	"gorm.io/gorm/clause"

	"github.com/moneta-app/moneta/pkg/store"
)

type transactions struct {
	s session
}

func (t *transactions) Create(ctx context.Context, txn *store.Transaction) (int64, error) {
	const op = "transaction_create"
	if err := txn.Validate(); err != nil {
		return 0, store.Wrap(op, err)
	}
	h, err := t.s.handle(ctx)
	if err != nil {
		return 0, store.Wrap(op, err)
	}

	row := toTransactionRow(txn)
	if err := h.Create(&row).Error; err != nil {
		return 0, store.Wrap(op, mapEngineErr(err))
	}
	txn.ID = row.ID
	t.s.touch(store.TableTransactions)
	return row.ID, nil
}

func (t *transactions) Update(ctx context.Context, txn *store.Transaction) error {
	const op = "transaction_update"
	if err := txn.Validate(); err != nil {
		return store.Wrap(op, err)
	}
	if txn.ID == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	h, err := t.s.handle(ctx)
	if err != nil {
		return store.Wrap(op, err)
	}

	row := toTransactionRow(txn)
	res := h.Model(&transactionRow{}).Where("id = ?", row.ID).Select("*").Updates(row)
	if res.Error != nil {
		return store.Wrap(op, mapEngineErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	t.s.touch(store.TableTransactions)
	return nil
}

func (t *transactions) Delete(ctx context.Context, id int64) error {
	const op = "transaction_delete"
	h, err := t.s.handle(ctx)
	if err != nil {
		return store.Wrap(op, err)
	}

	res := h.Delete(&transactionRow{}, id)
	if res.Error != nil {
		return store.Wrap(op, mapEngineErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	t.s.touch(store.TableTransactions, store.TableCrossRefs)
	return nil
}

func (t *transactions) Get(ctx context.Context, id int64) (*store.Transaction, error) {
	const op = "transaction_get"
	h, err := t.s.handle(ctx)
	if err != nil {
		return nil, store.Wrap(op, err)
	}

	var row transactionRow
	if err := h.First(&row, id).Error; err != nil {
		return nil, store.Wrap(op, mapEngineErr(err))
	}
	txn := fromTransactionRow(row)
	return &txn, nil
}

func (t *transactions) List(ctx context.Context) ([]store.Transaction, error) {
	return t.listWhere(ctx, "transaction_list", nil)
}

func (t *transactions) ListByDateRange(ctx context.Context, from, to int64) ([]store.Transaction, error) {
	return t.listWhere(ctx, "transaction_list_by_date_range", []any{"timestamp >= ? AND timestamp <= ?", from, to})
}

func (t *transactions) listWhere(ctx context.Context, op string, cond []any) ([]store.Transaction, error) {
	h, err := t.s.handle(ctx)
	if err != nil {
		return nil, store.Wrap(op, err)
	}

	q := h.Order("id")
	if cond != nil {
		q = q.Where(cond[0], cond[1:]...)
	}
	var rows []transactionRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, store.Wrap(op, mapEngineErr(err))
	}
	out := make([]store.Transaction, len(rows))
	for i, row := range rows {
		out[i] = fromTransactionRow(row)
	}
	return out, nil
}

func (t *transactions) Watch(ctx context.Context) (*store.Feed[store.Transaction], error) {
	return t.watchWhere(ctx, nil)
}

func (t *transactions) WatchByDateRange(ctx context.Context, from, to int64) (*store.Feed[store.Transaction], error) {
	return t.watchWhere(ctx, []any{"timestamp >= ? AND timestamp <= ?", from, to})
}

func (t *transactions) watchWhere(ctx context.Context, cond []any) (*store.Feed[store.Transaction], error) {
	root := t.s.rootStore()
	rootTxns := &transactions{s: root}
	return store.NewFeed(ctx, root.notifier, store.TableTransactions, root.log, func(ctx context.Context) ([]store.Transaction, error) {
		return rootTxns.listWhere(ctx, "transaction_watch", cond)
	})
}

type chatGroups struct {
	s session
}

func (g *chatGroups) Create(ctx context.Context, group *store.ChatGroup) (int64, error) {
	const op = "chat_group_create"
	if err := group.Validate(); err != nil {
		return 0, store.Wrap(op, err)
	}
	h, err := g.s.handle(ctx)
	if err != nil {
		return 0, store.Wrap(op, err)
	}

	row := toChatGroupRow(group)
	if err := h.Create(&row).Error; err != nil {
		return 0, store.Wrap(op, mapEngineErr(err))
	}
	group.ID = row.ID
	g.s.touch(store.TableChatGroups)
	return row.ID, nil
}

func (g *chatGroups) Update(ctx context.Context, group *store.ChatGroup) error {
	const op = "chat_group_update"
	if err := group.Validate(); err != nil {
		return store.Wrap(op, err)
	}
	if group.ID == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	h, err := g.s.handle(ctx)
	if err != nil {
		return store.Wrap(op, err)
	}

	row := toChatGroupRow(group)
	res := h.Model(&chatGroupRow{}).Where("id = ?", row.ID).Select("*").Updates(row)
	if res.Error != nil {
		return store.Wrap(op, mapEngineErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	g.s.touch(store.TableChatGroups)
	return nil
}

func (g *chatGroups) Delete(ctx context.Context, id int64) error {
	const op = "chat_group_delete"
	h, err := g.s.handle(ctx)
	if err != nil {
		return store.Wrap(op, err)
	}

	res := h.Delete(&chatGroupRow{}, id)
	if res.Error != nil {
		return store.Wrap(op, mapEngineErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	// The engine cascades messages and their association rows.
	g.s.touch(store.TableChatGroups, store.TableChatMessages, store.TableCrossRefs)
	return nil
}

func (g *chatGroups) Get(ctx context.Context, id int64) (*store.ChatGroup, error) {
	const op = "chat_group_get"
	h, err := g.s.handle(ctx)
	if err != nil {
		return nil, store.Wrap(op, err)
	}

	var row chatGroupRow
	if err := h.First(&row, id).Error; err != nil {
		return nil, store.Wrap(op, mapEngineErr(err))
	}
	group := fromChatGroupRow(row)
	return &group, nil
}

func (g *chatGroups) List(ctx context.Context) ([]store.ChatGroup, error) {
	const op = "chat_group_list"
	h, err := g.s.handle(ctx)
	if err != nil {
		return nil, store.Wrap(op, err)
	}

	var rows []chatGroupRow
	if err := h.Order("id").Find(&rows).Error; err != nil {
		return nil, store.Wrap(op, mapEngineErr(err))
	}
	out := make([]store.ChatGroup, len(rows))
	for i, row := range rows {
		out[i] = fromChatGroupRow(row)
	}
	return out, nil
}

func (g *chatGroups) Watch(ctx context.Context) (*store.Feed[store.ChatGroup], error) {
	root := g.s.rootStore()
	rootGroups := &chatGroups{s: root}
	return store.NewFeed(ctx, root.notifier, store.TableChatGroups, root.log, rootGroups.List)
}

type chatMessages struct {
	s session
}

func (m *chatMessages) Create(ctx context.Context, msg *store.ChatMessage) (int64, error) {
	const op = "chat_message_create"
	if err := msg.Validate(); err != nil {
		return 0, store.Wrap(op, err)
	}
	h, err := m.s.handle(ctx)
	if err != nil {
		return 0, store.Wrap(op, err)
	}

	row := toChatMessageRow(msg)
	if err := h.Omit("Group").Create(&row).Error; err != nil {
		return 0, store.Wrap(op, mapEngineErr(err))
	}
	msg.ID = row.ID
	m.s.touch(store.TableChatMessages)
	return row.ID, nil
}

func (m *chatMessages) Update(ctx context.Context, msg *store.ChatMessage) error {
	const op = "chat_message_update"
	if err := msg.Validate(); err != nil {
		return store.Wrap(op, err)
	}
	if msg.ID == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	h, err := m.s.handle(ctx)
	if err != nil {
		return store.Wrap(op, err)
	}

	row := toChatMessageRow(msg)
	res := h.Model(&chatMessageRow{}).Where("id = ?", row.ID).
		Select("chat_group_id", "is_user", "msg_order", "message", "timestamp").Updates(row)
	if res.Error != nil {
		return store.Wrap(op, mapEngineErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	m.s.touch(store.TableChatMessages)
	return nil
}

func (m *chatMessages) Delete(ctx context.Context, id int64) error {
	const op = "chat_message_delete"
	h, err := m.s.handle(ctx)
	if err != nil {
		return store.Wrap(op, err)
	}

	res := h.Delete(&chatMessageRow{}, id)
	if res.Error != nil {
		return store.Wrap(op, mapEngineErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	m.s.touch(store.TableChatMessages, store.TableCrossRefs)
	return nil
}

func (m *chatMessages) Get(ctx context.Context, id int64) (*store.ChatMessage, error) {
	const op = "chat_message_get"
	h, err := m.s.handle(ctx)
	if err != nil {
		return nil, store.Wrap(op, err)
	}

	var row chatMessageRow
	if err := h.First(&row, id).Error; err != nil {
		return nil, store.Wrap(op, mapEngineErr(err))
	}
	msg := fromChatMessageRow(row)
	return &msg, nil
}

func (m *chatMessages) List(ctx context.Context) ([]store.ChatMessage, error) {
	return m.listWhere(ctx, "chat_message_list", nil)
}

func (m *chatMessages) ListByGroup(ctx context.Context, groupID int64) ([]store.ChatMessage, error) {
	return m.listWhere(ctx, "chat_message_list_by_group", []any{"chat_group_id = ?", groupID})
}

func (m *chatMessages) listWhere(ctx context.Context, op string, cond []any) ([]store.ChatMessage, error) {
	h, err := m.s.handle(ctx)
	if err != nil {
		return nil, store.Wrap(op, err)
	}

	q := h.Order("chat_group_id").Order("msg_order")
	if cond != nil {
		q = q.Where(cond[0], cond[1:]...)
	}
	var rows []chatMessageRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, store.Wrap(op, mapEngineErr(err))
	}
	out := make([]store.ChatMessage, len(rows))
	for i, row := range rows {
		out[i] = fromChatMessageRow(row)
	}
	return out, nil
}

func (m *chatMessages) MaxOrder(ctx context.Context, groupID int64) (int64, bool, error) {
	const op = "chat_message_max_order"
	h, err := m.s.handle(ctx)
	if err != nil {
		return 0, false, store.Wrap(op, err)
	}

	var max sql.NullInt64
	err = h.Model(&chatMessageRow{}).Where("chat_group_id = ?", groupID).
		Select("MAX(msg_order)").Scan(&max).Error
	if err != nil {
		return 0, false, store.Wrap(op, mapEngineErr(err))
	}
	if !max.Valid {
		return 0, false, nil
	}
	return max.Int64, true, nil
}

func (m *chatMessages) DeleteByGroup(ctx context.Context, groupID int64) (int64, error) {
	const op = "chat_message_delete_by_group"
	h, err := m.s.handle(ctx)
	if err != nil {
		return 0, store.Wrap(op, err)
	}

	res := h.Where("chat_group_id = ?", groupID).Delete(&chatMessageRow{})
	if res.Error != nil {
		return 0, store.Wrap(op, mapEngineErr(res.Error))
	}
	if res.RowsAffected > 0 {
		m.s.touch(store.TableChatMessages, store.TableCrossRefs)
	}
	return res.RowsAffected, nil
}

func (m *chatMessages) Watch(ctx context.Context) (*store.Feed[store.ChatMessage], error) {
	return m.watchWhere(ctx, nil)
}

func (m *chatMessages) WatchByGroup(ctx context.Context, groupID int64) (*store.Feed[store.ChatMessage], error) {
	return m.watchWhere(ctx, []any{"chat_group_id = ?", groupID})
}

func (m *chatMessages) watchWhere(ctx context.Context, cond []any) (*store.Feed[store.ChatMessage], error) {
	root := m.s.rootStore()
	rootMsgs := &chatMessages{s: root}
	return store.NewFeed(ctx, root.notifier, store.TableChatMessages, root.log, func(ctx context.Context) ([]store.ChatMessage, error) {
		return rootMsgs.listWhere(ctx, "chat_message_watch", cond)
	})
}

type crossRefs struct {
	s session
}

func (c *crossRefs) Put(ctx context.Context, ref *store.CrossRef) error {
	const op = "cross_ref_put"
	if err := ref.Validate(); err != nil {
		return store.Wrap(op, err)
	}
	h, err := c.s.handle(ctx)
	if err != nil {
		return store.Wrap(op, err)
	}

	row := toCrossRefRow(ref)
	res := h.Omit("Message", "Transaction").
		Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return store.Wrap(op, mapEngineErr(res.Error))
	}
	if res.RowsAffected > 0 {
		c.s.touch(store.TableCrossRefs)
	}
	return nil
}

func (c *crossRefs) Delete(ctx context.Context, ref *store.CrossRef) error {
	const op = "cross_ref_delete"
	h, err := c.s.handle(ctx)
	if err != nil {
		return store.Wrap(op, err)
	}

	res := h.Where("chat_message_id = ? AND transaction_id = ?", ref.MessageID, ref.TransactionID).
		Delete(&crossRefRow{})
	if res.Error != nil {
		return store.Wrap(op, mapEngineErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	c.s.touch(store.TableCrossRefs)
	return nil
}

func (c *crossRefs) ListByMessage(ctx context.Context, messageID int64) ([]store.CrossRef, error) {
	return c.listWhere(ctx, "cross_ref_list_by_message", []any{"chat_message_id = ?", messageID})
}

func (c *crossRefs) ListByTransaction(ctx context.Context, transactionID int64) ([]store.CrossRef, error) {
	return c.listWhere(ctx, "cross_ref_list_by_transaction", []any{"transaction_id = ?", transactionID})
}

func (c *crossRefs) listWhere(ctx context.Context, op string, cond []any) ([]store.CrossRef, error) {
	h, err := c.s.handle(ctx)
	if err != nil {
		return nil, store.Wrap(op, err)
	}

	// rowid is insertion order; the composite key is not.
	q := h.Order("rowid")
	if cond != nil {
		q = q.Where(cond[0], cond[1:]...)
	}
	var rows []crossRefRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, store.Wrap(op, mapEngineErr(err))
	}
	out := make([]store.CrossRef, len(rows))
	for i, row := range rows {
		out[i] = fromCrossRefRow(row)
	}
	return out, nil
}

func (c *crossRefs) DeleteByMessage(ctx context.Context, messageID int64) (int64, error) {
	return c.deleteWhere(ctx, "cross_ref_delete_by_message", []any{"chat_message_id = ?", messageID})
}

func (c *crossRefs) DeleteByTransaction(ctx context.Context, transactionID int64) (int64, error) {
	return c.deleteWhere(ctx, "cross_ref_delete_by_transaction", []any{"transaction_id = ?", transactionID})
}

func (c *crossRefs) deleteWhere(ctx context.Context, op string, cond []any) (int64, error) {
	h, err := c.s.handle(ctx)
	if err != nil {
		return 0, store.Wrap(op, err)
	}

	res := h.Where(cond[0], cond[1:]...).Delete(&crossRefRow{})
	if res.Error != nil {
		return 0, store.Wrap(op, mapEngineErr(res.Error))
	}
	if res.RowsAffected > 0 {
		c.s.touch(store.TableCrossRefs)
	}
	return res.RowsAffected, nil
}

func (c *crossRefs) Watch(ctx context.Context) (*store.Feed[store.CrossRef], error) {
	root := c.s.rootStore()
	rootRefs := &crossRefs{s: root}
	return store.NewFeed(ctx, root.notifier, store.TableCrossRefs, root.log, func(ctx context.Context) ([]store.CrossRef, error) {
		return rootRefs.listWhere(ctx, "cross_ref_watch", nil)
	})
}

type currencies struct {
	s session
}

func (c *currencies) Create(ctx context.Context, currency *store.Currency) (int64, error) {
	const op = "currency_create"
	if err := currency.Validate(); err != nil {
		return 0, store.Wrap(op, err)
	}
	h, err := c.s.handle(ctx)
	if err != nil {
		return 0, store.Wrap(op, err)
	}

	row := toCurrencyRow(currency)
	if err := h.Create(&row).Error; err != nil {
		return 0, store.Wrap(op, mapEngineErr(err))
	}
	currency.ID = row.ID
	c.s.touch(store.TableCurrencies)
	return row.ID, nil
}

func (c *currencies) Update(ctx context.Context, currency *store.Currency) error {
	const op = "currency_update"
	if err := currency.Validate(); err != nil {
		return store.Wrap(op, err)
	}
	if currency.ID == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	h, err := c.s.handle(ctx)
	if err != nil {
		return store.Wrap(op, err)
	}

	row := toCurrencyRow(currency)
	res := h.Model(&currencyRow{}).Where("id = ?", row.ID).Select("*").Updates(row)
	if res.Error != nil {
		return store.Wrap(op, mapEngineErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	c.s.touch(store.TableCurrencies)
	return nil
}

func (c *currencies) Delete(ctx context.Context, id int64) error {
	const op = "currency_delete"
	h, err := c.s.handle(ctx)
	if err != nil {
		return store.Wrap(op, err)
	}

	res := h.Delete(&currencyRow{}, id)
	if res.Error != nil {
		return store.Wrap(op, mapEngineErr(res.Error))
	}
	if res.RowsAffected == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}
	c.s.touch(store.TableCurrencies)
	return nil
}

func (c *currencies) Get(ctx context.Context, id int64) (*store.Currency, error) {
	const op = "currency_get"
	h, err := c.s.handle(ctx)
	if err != nil {
		return nil, store.Wrap(op, err)
	}

	var row currencyRow
	if err := h.First(&row, id).Error; err != nil {
		return nil, store.Wrap(op, mapEngineErr(err))
	}
	currency := fromCurrencyRow(row)
	return &currency, nil
}

func (c *currencies) List(ctx context.Context) ([]store.Currency, error) {
	const op = "currency_list"
	h, err := c.s.handle(ctx)
	if err != nil {
		return nil, store.Wrap(op, err)
	}

	var rows []currencyRow
	if err := h.Order("id").Find(&rows).Error; err != nil {
		return nil, store.Wrap(op, mapEngineErr(err))
	}
	out := make([]store.Currency, len(rows))
	for i, row := range rows {
		out[i] = fromCurrencyRow(row)
	}
	return out, nil
}

func (c *currencies) Watch(ctx context.Context) (*store.Feed[store.Currency], error) {
	root := c.s.rootStore()
	rootCurrencies := &currencies{s: root}
	return store.NewFeed(ctx, root.notifier, store.TableCurrencies, root.log, rootCurrencies.List)
}
