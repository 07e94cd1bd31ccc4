package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/skimreader/skim/internal/skim"
)

// ReconcileIDs applies one Id-synchronizer pass in a single transaction.
//
// Every row is first tombstoned and stripped of its unread/starred/dirty
// bits, then every id still reported by the remote is revived, dirty-marked
// when the remote stamp is fresher than the cached one, and reflagged. The
// unread bit is only ever set for ids that are also in the reading list.
func (r Repo) ReconcileIDs(ctx context.Context, args skim.ReconcileArgs) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting reconcile transaction: %s", err)
	}
	defer tx.Rollback()

	// Tombstone everything; whatever the remote still reports survives.
	if _, err := tx.ExecContext(ctx, `UPDATE items SET to_delete=1, unread=0, starred=0, to_sync=0;`); err != nil {
		return fmt.Errorf("error tombstoning items: %s", err)
	}

	seen := make(map[int64]int64, len(args.ReadingList))
	for _, sets := range [][]skim.IDStamp{args.ReadingList, args.Unread, args.Starred} {
		for _, is := range sets {
			if stamp, ok := seen[is.ID]; !ok || is.Stamp > stamp {
				seen[is.ID] = is.Stamp
			}
		}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	if err := ensureIDs(ctx, tx, ids); err != nil {
		return err
	}

	// Mark rows whose remote stamp is fresher than the last durably fetched
	// content. update_time only advances when content lands, so rows a
	// failed fetch left behind get re-marked on the next pass.
	byStamp := make(map[int64][]int64)
	for id, stamp := range seen {
		byStamp[stamp] = append(byStamp[stamp], id)
	}
	for stamp, group := range byStamp {
		for _, part := range chunk(group, paramChunk) {
			query, qArgs, err := sq.Update("items").Set("to_sync", 1).
				Where(sq.Eq{"id": part}).
				Where(sq.Lt{"update_time": stamp}).ToSql()
			if err != nil {
				return fmt.Errorf("error constructing sql: %s", err)
			}
			if _, err := tx.ExecContext(ctx, query, qArgs...); err != nil {
				return fmt.Errorf("error marking items dirty: %s", err)
			}
		}
	}

	// Unread is defined as the intersection with the reading list.
	inList := make(map[int64]bool, len(args.ReadingList))
	for _, is := range args.ReadingList {
		inList[is.ID] = true
	}
	unread := make([]int64, 0, len(args.Unread))
	for _, is := range args.Unread {
		if inList[is.ID] {
			unread = append(unread, is.ID)
		}
	}
	if err := setColumn(ctx, tx, "unread", unread); err != nil {
		return err
	}

	starred := make([]int64, 0, len(args.Starred))
	for _, is := range args.Starred {
		starred = append(starred, is.ID)
	}
	if err := setColumn(ctx, tx, "starred", starred); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing reconcile transaction: %s", err)
	}

	return nil
}

// ensureIDs inserts any ids not cached yet and clears their tombstones.
func ensureIDs(ctx context.Context, tx *sqlx.Tx, ids []int64) error {
	for _, part := range chunk(ids, paramChunk) {
		ins := sq.Insert("items").Columns("id").Suffix("ON CONFLICT(id) DO NOTHING")
		for _, id := range part {
			ins = ins.Values(id)
		}
		query, qArgs, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("error constructing sql: %s", err)
		}
		if _, err := tx.ExecContext(ctx, query, qArgs...); err != nil {
			return fmt.Errorf("error inserting item ids: %s", err)
		}

		query, qArgs, err = sq.Update("items").Set("to_delete", 0).Where(sq.Eq{"id": part}).ToSql()
		if err != nil {
			return fmt.Errorf("error constructing sql: %s", err)
		}
		if _, err := tx.ExecContext(ctx, query, qArgs...); err != nil {
			return fmt.Errorf("error reviving item ids: %s", err)
		}
	}

	return nil
}

func setColumn(ctx context.Context, tx *sqlx.Tx, column string, ids []int64) error {
	for _, part := range chunk(ids, paramChunk) {
		query, qArgs, err := sq.Update("items").Set(column, 1).Where(sq.Eq{"id": part}).ToSql()
		if err != nil {
			return fmt.Errorf("error constructing sql: %s", err)
		}
		if _, err := tx.ExecContext(ctx, query, qArgs...); err != nil {
			return fmt.Errorf("error setting %s flag: %s", column, err)
		}
	}

	return nil
}

func (r Repo) DirtyItemIDs(ctx context.Context) ([]int64, error) {
	const q = `SELECT id FROM items WHERE to_sync=1;`

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, q); err != nil {
		return nil, fmt.Errorf("error selecting dirty items: %s", err)
	}

	return ids, nil
}

// UpdateItemsContent persists the normalized metadata for one content chunk
// and clears to_sync in the same statement, so the dirty bit only ever drops
// once the row is durable. update_time advances to the fetched stamp here
// and nowhere else; until then the id pass keeps re-marking the row.
func (r Repo) UpdateItemsContent(ctx context.Context, metas []skim.ItemMeta) error {
	if len(metas) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting content transaction: %s", err)
	}
	defer tx.Rollback()

	const q = `UPDATE items SET title=?, author=?, summary=?, href=?, time=?, subscription=?, update_time=?, to_sync=0 WHERE id=?;`
	for _, m := range metas {
		if _, err := tx.ExecContext(ctx, q, m.Title, m.Author, m.Summary, m.Href, m.Time, m.Subscription, m.Stamp, m.ID); err != nil {
			return fmt.Errorf("error updating item content: %s", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing content transaction: %s", err)
	}

	return nil
}

// CollectGarbage deletes every tombstoned row that is not starred. Starred
// items stay cached regardless of the tombstone, which is what makes a star
// act as a pin.
func (r Repo) CollectGarbage(ctx context.Context) ([]int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting gc transaction: %s", err)
	}
	defer tx.Rollback()

	var ids []int64
	if err := tx.SelectContext(ctx, &ids, `SELECT id FROM items WHERE to_delete=1 AND starred=0;`); err != nil {
		return nil, fmt.Errorf("error selecting garbage: %s", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE to_delete=1 AND starred=0;`); err != nil {
		return nil, fmt.Errorf("error deleting garbage: %s", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing gc transaction: %s", err)
	}

	return ids, nil
}

// EvictOver trims the non-starred population down to max rows, oldest first,
// and returns the evicted ids so the caller can drop their blobs.
func (r Repo) EvictOver(ctx context.Context, max int) ([]int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error starting eviction transaction: %s", err)
	}
	defer tx.Rollback()

	const q = `SELECT id FROM items WHERE starred=0 ORDER BY time DESC LIMIT -1 OFFSET ?;`
	var ids []int64
	if err := tx.SelectContext(ctx, &ids, q, max); err != nil {
		return nil, fmt.Errorf("error selecting eviction candidates: %s", err)
	}

	for _, part := range chunk(ids, paramChunk) {
		query, qArgs, err := sq.Delete("items").Where(sq.Eq{"id": part}).ToSql()
		if err != nil {
			return nil, fmt.Errorf("error constructing sql: %s", err)
		}
		if _, err := tx.ExecContext(ctx, query, qArgs...); err != nil {
			return nil, fmt.Errorf("error evicting items: %s", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing eviction transaction: %s", err)
	}

	return ids, nil
}

func (r Repo) Item(ctx context.Context, id int64) (skim.Item, error) {
	const q = `SELECT * FROM items WHERE id = ?;`

	var item skim.Item
	err := r.db.GetContext(ctx, &item, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return skim.Item{}, skim.ErrNotFound
	}
	if err != nil {
		return skim.Item{}, fmt.Errorf("error fetching item: %s", err)
	}

	return item, nil
}

func categoryCond(cat skim.Category) sq.Sqlizer {
	switch cat {
	case skim.CategoryUnread:
		return sq.Eq{"unread": 1}
	case skim.CategoryStarred:
		return sq.Eq{"starred": 1}
	default:
		return sq.Expr("1=1")
	}
}

func (r Repo) ItemsByCategory(ctx context.Context, cat skim.Category, limit int) ([]skim.Item, error) {
	b := sq.Select("*").From("items").Where(categoryCond(cat)).OrderBy("time DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var items []skim.Item
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting items: %s", err)
	}

	return items, nil
}

func (r Repo) ItemsBySubscription(ctx context.Context, subID string, cat skim.Category) ([]skim.Item, error) {
	query, args, err := sq.Select("*").From("items").
		Where(sq.Eq{"subscription": subID}).
		Where(categoryCond(cat)).
		OrderBy("time DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var items []skim.Item
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting items by subscription: %s", err)
	}

	return items, nil
}

func (r Repo) ItemsByLabel(ctx context.Context, labelID string, cat skim.Category) ([]skim.Item, error) {
	query, args, err := sq.Select("items.*").From("labels_fk").
		Join("items ON items.subscription = labels_fk.item_id").
		Where(sq.Eq{"labels_fk.label_id": labelID}).
		Where(categoryCond(cat)).
		OrderBy("items.time DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("error constructing sql: %s", err)
	}

	var items []skim.Item
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("error selecting items by label: %s", err)
	}

	return items, nil
}

func (r Repo) UnreadCount(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(id) FROM items WHERE unread=1;`

	var count int
	if err := r.db.GetContext(ctx, &count, q); err != nil {
		return 0, fmt.Errorf("error counting unread items: %s", err)
	}

	return count, nil
}

func (r Repo) SetUnread(ctx context.Context, id int64, unread bool) error {
	const q = `UPDATE items SET unread=? WHERE id=?;`

	if _, err := r.db.ExecContext(ctx, q, unread, id); err != nil {
		return fmt.Errorf("error setting unread bit: %s", err)
	}

	return nil
}

func (r Repo) SetStarred(ctx context.Context, id int64, starred bool) error {
	const q = `UPDATE items SET starred=? WHERE id=?;`

	if _, err := r.db.ExecContext(ctx, q, starred, id); err != nil {
		return fmt.Errorf("error setting starred bit: %s", err)
	}

	return nil
}
