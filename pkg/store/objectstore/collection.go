package objectstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/moneta-app/moneta/pkg/store"
)

// Object kinds. The kind plus the object id form the primary key of the
// objects table.
const (
	kindTransaction = "transaction"
	kindChatGroup   = "chat_group"
	kindChatMessage = "chat_message"
	kindCrossRef    = "chat_message_txn_ref"
	kindCurrency    = "currency"
)

// collection is the generic CRUD layer over one object kind. Entities
// are stored as JSON documents; predicates and ordering are evaluated
// in Go because the engine knows nothing about the payload shape.
type collection[T any] struct {
	s        session
	kind     string
	table    string
	id       func(*T) int64
	setID    func(*T, int64)
	validate func(*T) error
	less     func(a, b T) bool // nil means insertion order (id ascending)
}

func (c collection[T]) create(ctx context.Context, obj *T) (int64, error) {
	op := c.kind + "_create"
	if err := c.validate(obj); err != nil {
		return 0, store.Wrap(op, err)
	}

	var created int64
	err := c.s.write(ctx, []string{c.table}, func(r runner) error {
		id := c.id(obj)
		if id == 0 {
			next, err := nextID(ctx, r, c.kind)
			if err != nil {
				return err
			}
			id = next
		} else if err := reserveID(ctx, r, c.kind, id); err != nil {
			return err
		}
		c.setID(obj, id)

		data, err := json.Marshal(obj)
		if err != nil {
			return err
		}
		if _, err := r.ExecContext(ctx,
			`INSERT INTO objects (kind, id, data) VALUES (?, ?, ?)`,
			c.kind, id, string(data)); err != nil {
			return mapEngineErr(err)
		}
		created = id
		return nil
	})
	if err != nil {
		return 0, store.Wrap(op, err)
	}
	return created, nil
}

func (c collection[T]) update(ctx context.Context, obj *T) error {
	op := c.kind + "_update"
	if err := c.validate(obj); err != nil {
		return store.Wrap(op, err)
	}
	id := c.id(obj)
	if id == 0 {
		return store.Wrap(op, store.ErrNotFound)
	}

	err := c.s.write(ctx, []string{c.table}, func(r runner) error {
		data, err := json.Marshal(obj)
		if err != nil {
			return err
		}
		res, err := r.ExecContext(ctx,
			`UPDATE objects SET data = ? WHERE kind = ? AND id = ?`,
			string(data), c.kind, id)
		if err != nil {
			return mapEngineErr(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return store.Unavailable(err)
		}
		if affected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	return store.Wrap(op, err)
}

func (c collection[T]) delete(ctx context.Context, id int64) error {
	op := c.kind + "_delete"
	err := c.s.write(ctx, []string{c.table}, func(r runner) error {
		res, err := r.ExecContext(ctx,
			`DELETE FROM objects WHERE kind = ? AND id = ?`, c.kind, id)
		if err != nil {
			return mapEngineErr(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return store.Unavailable(err)
		}
		if affected == 0 {
			return store.ErrNotFound
		}
		return nil
	})
	return store.Wrap(op, err)
}

func (c collection[T]) get(ctx context.Context, id int64) (*T, error) {
	op := c.kind + "_get"
	r, release, err := c.s.read(ctx)
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	defer release()

	var data string
	err = r.QueryRowContext(ctx,
		`SELECT data FROM objects WHERE kind = ? AND id = ?`, c.kind, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.Wrap(op, store.ErrNotFound)
	}
	if err != nil {
		return nil, store.Wrap(op, store.Unavailable(err))
	}

	var obj T
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, store.Wrap(op, store.Unavailable(err))
	}
	return &obj, nil
}

// list returns the decoded objects passing filter (nil means all),
// ordered by c.less or by insertion.
func (c collection[T]) list(ctx context.Context, filter func(*T) bool) ([]T, error) {
	op := c.kind + "_list"
	r, release, err := c.s.read(ctx)
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	defer release()

	rows, err := r.QueryContext(ctx,
		`SELECT id, data FROM objects WHERE kind = ? ORDER BY id`, c.kind)
	if err != nil {
		return nil, store.Wrap(op, store.Unavailable(err))
	}
	defer func() { _ = rows.Close() }()

	out := []T{}
	for rows.Next() {
		var id int64
		var data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, store.Wrap(op, store.Unavailable(err))
		}
		var obj T
		if err := json.Unmarshal([]byte(data), &obj); err != nil {
			c.s.rootStore().log.Warn("skipping undecodable object", "kind", c.kind, "id", id, "error", err)
			continue
		}
		if filter == nil || filter(&obj) {
			out = append(out, obj)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap(op, store.Unavailable(err))
	}

	if c.less != nil {
		sort.SliceStable(out, func(i, j int) bool { return c.less(out[i], out[j]) })
	}
	return out, nil
}

// deleteWhere removes every object passing filter and returns the count.
func (c collection[T]) deleteWhere(ctx context.Context, filter func(*T) bool) (int64, error) {
	op := c.kind + "_delete_where"
	var removed int64
	err := c.s.write(ctx, []string{c.table}, func(r runner) error {
		rows, err := r.QueryContext(ctx,
			`SELECT id, data FROM objects WHERE kind = ?`, c.kind)
		if err != nil {
			return mapEngineErr(err)
		}
		var ids []int64
		for rows.Next() {
			var id int64
			var data string
			if err := rows.Scan(&id, &data); err != nil {
				_ = rows.Close()
				return store.Unavailable(err)
			}
			var obj T
			if err := json.Unmarshal([]byte(data), &obj); err != nil {
				continue
			}
			if filter(&obj) {
				ids = append(ids, id)
			}
		}
		if err := rows.Close(); err != nil {
			return store.Unavailable(err)
		}

		for _, id := range ids {
			if _, err := r.ExecContext(ctx,
				`DELETE FROM objects WHERE kind = ? AND id = ?`, c.kind, id); err != nil {
				return mapEngineErr(err)
			}
		}
		removed = int64(len(ids))
		return nil
	})
	if err != nil {
		return 0, store.Wrap(op, err)
	}
	return removed, nil
}

// watch opens a live feed over the collection, observing committed
// state through the root store regardless of any surrounding unit.
func (c collection[T]) watch(ctx context.Context, filter func(*T) bool) (*store.Feed[T], error) {
	root := c.s.rootStore()
	rc := c
	rc.s = root
	return store.NewFeed(ctx, root.notifier, c.table, root.log, func(ctx context.Context) ([]T, error) {
		return rc.list(ctx, filter)
	})
}

// nextID allocates the next identity for kind. Runs inside the caller's
// write transaction so concurrent creates never share an id.
func nextID(ctx context.Context, r runner, kind string) (int64, error) {
	if _, err := r.ExecContext(ctx,
		`INSERT INTO sequences (kind, next) VALUES (?, 1) ON CONFLICT(kind) DO NOTHING`, kind); err != nil {
		return 0, mapEngineErr(err)
	}
	var next int64
	if err := r.QueryRowContext(ctx,
		`SELECT next FROM sequences WHERE kind = ?`, kind).Scan(&next); err != nil {
		return 0, store.Unavailable(err)
	}
	if _, err := r.ExecContext(ctx,
		`UPDATE sequences SET next = next + 1 WHERE kind = ?`, kind); err != nil {
		return 0, mapEngineErr(err)
	}
	return next, nil
}

// reserveID bumps the sequence past an explicitly supplied identity.
func reserveID(ctx context.Context, r runner, kind string, id int64) error {
	if _, err := r.ExecContext(ctx,
		`INSERT INTO sequences (kind, next) VALUES (?, ?)
		 ON CONFLICT(kind) DO UPDATE SET next = MAX(next, excluded.next)`,
		kind, id+1); err != nil {
		return mapEngineErr(err)
	}
	return nil
}

// mapEngineErr folds driver failures into the store taxonomy.
func mapEngineErr(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "constraint") {
		return fmt.Errorf("%w: %v", store.ErrConstraint, err)
	}
	return store.Unavailable(err)
}
