package sqlite

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/skimreader/skim/internal/skim"
)

// QueueFlag records a local mutation for delivery to the remote. A second
// mutation for the same (item, tag) overwrites the pending row's remove value
// instead of queueing a duplicate.
func (r Repo) QueueFlag(ctx context.Context, itemID int64, tag skim.StateTag, remove bool) error {
	const q = `INSERT INTO flags (item_id, flag, remove) VALUES (?, ?, ?)
	ON CONFLICT(item_id, flag) DO UPDATE SET remove=excluded.remove;`

	if _, err := r.db.ExecContext(ctx, q, itemID, tag, remove); err != nil {
		return fmt.Errorf("error queueing flag: %s", err)
	}

	return nil
}

func (r Repo) PendingFlags(ctx context.Context, tag skim.StateTag, remove bool) ([]skim.PendingFlag, error) {
	const q = `SELECT * FROM flags WHERE flag = ? AND remove = ?;`

	var flags []skim.PendingFlag
	if err := r.db.SelectContext(ctx, &flags, q, tag, remove); err != nil {
		return nil, fmt.Errorf("error selecting pending flags: %s", err)
	}

	return flags, nil
}

// DeleteFlags removes acknowledged mutation rows. Only called once the remote
// has accepted the batch those rows were sent in.
func (r Repo) DeleteFlags(ctx context.Context, ids []int64) error {
	for _, part := range chunk(ids, paramChunk) {
		query, args, err := sq.Delete("flags").Where(sq.Eq{"id": part}).ToSql()
		if err != nil {
			return fmt.Errorf("error constructing sql: %s", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("error deleting flags: %s", err)
		}
	}

	return nil
}
