// Package chat manages conversation threads: groups of ordered
// messages. Message order within a group is strictly increasing and
// assigned here, not by callers, so two concurrent appends to the same
// group can never collide.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/moneta-app/moneta/pkg/store"
	"github.com/moneta-app/moneta/pkg/xref"
)

// Threads manages chat groups and their messages.
type Threads struct {
	s    store.Store
	refs *xref.Manager
	log  store.Logger
	now  func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New creates a thread manager over s. refs handles association cleanup
// when messages go away. A nil logger disables logging.
func New(s store.Store, refs *xref.Manager, log store.Logger) *Threads {
	if log == nil {
		log = store.NopLogger()
	}
	return &Threads{
		s:     s,
		refs:  refs,
		log:   log,
		now:   time.Now,
		locks: make(map[int64]*sync.Mutex),
	}
}

// groupLock returns the append lock for a group, creating it on first
// use. Locks are never reclaimed; a handful of int64 keys per opened
// database is not worth a reference-counting scheme.
func (t *Threads) groupLock(groupID int64) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	lock, ok := t.locks[groupID]
	if !ok {
		lock = &sync.Mutex{}
		t.locks[groupID] = lock
	}
	return lock
}

// CreateGroup starts a new conversation and returns it with its
// assigned identity.
func (t *Threads) CreateGroup(ctx context.Context, name string) (*store.ChatGroup, error) {
	group := &store.ChatGroup{
		Name:      name,
		Timestamp: t.now().UnixMilli(),
	}
	if _, err := t.s.ChatGroups().Create(ctx, group); err != nil {
		return nil, err
	}
	t.log.Debug("created chat group", "id", group.ID, "name", name)
	return group, nil
}

// AppendMessage adds a message to the end of a group's conversation.
// The message's order is one past the group's current maximum, or 0 for
// the first message. Appends to the same group are serialized; appends
// to different groups proceed independently. Appending to a group that
// does not exist fails with ErrConstraint.
func (t *Threads) AppendMessage(ctx context.Context, groupID int64, fromUser bool, text string) (*store.ChatMessage, error) {
	lock := t.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	var msg *store.ChatMessage
	err := t.s.RunInTx(ctx, func(tx store.Store) error {
		if _, err := tx.ChatGroups().Get(ctx, groupID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return store.Wrap("append",
					fmt.Errorf("%w: chat group %d does not exist", store.ErrConstraint, groupID))
			}
			return err
		}

		next := int64(0)
		max, ok, err := tx.ChatMessages().MaxOrder(ctx, groupID)
		if err != nil {
			return err
		}
		if ok {
			next = max + 1
		}

		msg = &store.ChatMessage{
			GroupID:   groupID,
			IsUser:    fromUser,
			Order:     next,
			Message:   text,
			Timestamp: t.now().UnixMilli(),
		}
		_, err = tx.ChatMessages().Create(ctx, msg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// Messages returns a group's conversation in order.
func (t *Threads) Messages(ctx context.Context, groupID int64) ([]store.ChatMessage, error) {
	return t.s.ChatMessages().ListByGroup(ctx, groupID)
}

// WatchMessages returns a live feed of a group's conversation.
func (t *Threads) WatchMessages(ctx context.Context, groupID int64) (*store.Feed[store.ChatMessage], error) {
	return t.s.ChatMessages().WatchByGroup(ctx, groupID)
}

// DeleteMessage removes one message and its transaction associations as
// a unit. Surviving messages keep their order values; the sequence may
// be left with gaps.
func (t *Threads) DeleteMessage(ctx context.Context, messageID int64) error {
	return t.s.RunInTx(ctx, func(tx store.Store) error {
		if err := t.refs.OnChatMessagesDeleted(ctx, tx, messageID); err != nil {
			return err
		}
		return tx.ChatMessages().Delete(ctx, messageID)
	})
}

// DeleteGroup removes a group, all of its messages and their
// transaction associations as one unit. Deleting a group that no longer
// exists succeeds without effect, so concurrent deletes of the same
// group all settle on the same end state.
func (t *Threads) DeleteGroup(ctx context.Context, groupID int64) error {
	lock := t.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	return t.s.RunInTx(ctx, func(tx store.Store) error {
		msgs, err := tx.ChatMessages().ListByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		ids := make([]int64, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}

		if err := t.refs.OnChatMessagesDeleted(ctx, tx, ids...); err != nil {
			return err
		}
		removed, err := tx.ChatMessages().DeleteByGroup(ctx, groupID)
		if err != nil {
			return err
		}

		if err := tx.ChatGroups().Delete(ctx, groupID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		t.log.Debug("deleted chat group", "id", groupID, "messages", removed)
		return nil
	})
}
