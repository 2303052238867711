package objectstore

import (
	"context"
	"encoding/json"

	"github.com/moneta-app/moneta/pkg/store"
)

// crossRefs persists association rows. The engine has no composite
// keys, so each pair is stored as a JSON document under a synthetic id
// and pair uniqueness is enforced here.
type crossRefs struct {
	s session
}

type refRow struct {
	id  int64
	ref store.CrossRef
}

func listRefs(ctx context.Context, r runner) ([]refRow, error) {
	rows, err := r.QueryContext(ctx,
		`SELECT id, data FROM objects WHERE kind = ? ORDER BY id`, kindCrossRef)
	if err != nil {
		return nil, store.Unavailable(err)
	}
	defer func() { _ = rows.Close() }()

	var out []refRow
	for rows.Next() {
		var row refRow
		var data string
		if err := rows.Scan(&row.id, &data); err != nil {
			return nil, store.Unavailable(err)
		}
		if err := json.Unmarshal([]byte(data), &row.ref); err != nil {
			continue
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *crossRefs) Put(ctx context.Context, ref *store.CrossRef) error {
	const op = "cross_ref_put"
	if err := ref.Validate(); err != nil {
		return store.Wrap(op, err)
	}

	err := s.s.write(ctx, []string{store.TableCrossRefs}, func(r runner) error {
		existing, err := listRefs(ctx, r)
		if err != nil {
			return err
		}
		for _, row := range existing {
			if row.ref == *ref {
				return nil // pair already associated
			}
		}

		id, err := nextID(ctx, r, kindCrossRef)
		if err != nil {
			return err
		}
		data, err := json.Marshal(ref)
		if err != nil {
			return err
		}
		if _, err := r.ExecContext(ctx,
			`INSERT INTO objects (kind, id, data) VALUES (?, ?, ?)`,
			kindCrossRef, id, string(data)); err != nil {
			return mapEngineErr(err)
		}
		return nil
	})
	return store.Wrap(op, err)
}

func (s *crossRefs) Delete(ctx context.Context, ref *store.CrossRef) error {
	const op = "cross_ref_delete"
	err := s.s.write(ctx, []string{store.TableCrossRefs}, func(r runner) error {
		existing, err := listRefs(ctx, r)
		if err != nil {
			return err
		}
		for _, row := range existing {
			if row.ref == *ref {
				_, err := r.ExecContext(ctx,
					`DELETE FROM objects WHERE kind = ? AND id = ?`, kindCrossRef, row.id)
				return mapEngineErr(err)
			}
		}
		return store.ErrNotFound
	})
	return store.Wrap(op, err)
}

func (s *crossRefs) ListByMessage(ctx context.Context, messageID int64) ([]store.CrossRef, error) {
	return s.listWhere(ctx, "cross_ref_list_by_message", func(ref store.CrossRef) bool {
		return ref.MessageID == messageID
	})
}

func (s *crossRefs) ListByTransaction(ctx context.Context, transactionID int64) ([]store.CrossRef, error) {
	return s.listWhere(ctx, "cross_ref_list_by_transaction", func(ref store.CrossRef) bool {
		return ref.TransactionID == transactionID
	})
}

func (s *crossRefs) listWhere(ctx context.Context, op string, match func(store.CrossRef) bool) ([]store.CrossRef, error) {
	r, release, err := s.s.read(ctx)
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	defer release()

	rows, err := listRefs(ctx, r)
	if err != nil {
		return nil, store.Wrap(op, err)
	}
	out := []store.CrossRef{}
	for _, row := range rows {
		if match(row.ref) {
			out = append(out, row.ref)
		}
	}
	return out, nil
}

func (s *crossRefs) DeleteByMessage(ctx context.Context, messageID int64) (int64, error) {
	return s.deleteWhere(ctx, "cross_ref_delete_by_message", func(ref store.CrossRef) bool {
		return ref.MessageID == messageID
	})
}

func (s *crossRefs) DeleteByTransaction(ctx context.Context, transactionID int64) (int64, error) {
	return s.deleteWhere(ctx, "cross_ref_delete_by_transaction", func(ref store.CrossRef) bool {
		return ref.TransactionID == transactionID
	})
}

func (s *crossRefs) deleteWhere(ctx context.Context, op string, match func(store.CrossRef) bool) (int64, error) {
	var removed int64
	err := s.s.write(ctx, []string{store.TableCrossRefs}, func(r runner) error {
		existing, err := listRefs(ctx, r)
		if err != nil {
			return err
		}
		for _, row := range existing {
			if !match(row.ref) {
				continue
			}
			if _, err := r.ExecContext(ctx,
				`DELETE FROM objects WHERE kind = ? AND id = ?`, kindCrossRef, row.id); err != nil {
				return mapEngineErr(err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, store.Wrap(op, err)
	}
	return removed, nil
}

func (s *crossRefs) Watch(ctx context.Context) (*store.Feed[store.CrossRef], error) {
	root := s.s.rootStore()
	rootRefs := &crossRefs{s: root}
	return store.NewFeed(ctx, root.notifier, store.TableCrossRefs, root.log, func(ctx context.Context) ([]store.CrossRef, error) {
		return rootRefs.listWhere(ctx, "cross_ref_watch", func(store.CrossRef) bool { return true })
	})
}
