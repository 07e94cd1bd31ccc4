package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/skimreader/skim/internal/skim"
)

// ReplaceSubscriptions swaps in a whole new subscription/label snapshot.
// There is no incremental mode: the remote resends the full list cheaply, so
// the old rows are dropped and the response reinserted in one transaction.
func (r Repo) ReplaceSubscriptions(ctx context.Context, subs []skim.Subscription, labels []skim.Label, memberships []skim.LabelMembership) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting subscription transaction: %s", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"subscriptions", "labels", "labels_fk"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+";"); err != nil {
			return fmt.Errorf("error clearing %s: %s", table, err)
		}
	}

	const subQ = `INSERT INTO subscriptions (id, url, title) VALUES (:id, :url, :title);`
	for _, sub := range subs {
		if _, err := tx.NamedExecContext(ctx, subQ, sub); err != nil {
			return fmt.Errorf("error inserting subscription: %s", err)
		}
	}

	const labelQ = `INSERT OR IGNORE INTO labels (id, name) VALUES (:id, :name);`
	for _, label := range labels {
		if _, err := tx.NamedExecContext(ctx, labelQ, label); err != nil {
			return fmt.Errorf("error inserting label: %s", err)
		}
	}

	const fkQ = `INSERT INTO labels_fk (item_id, label_id) VALUES (:item_id, :label_id);`
	for _, m := range memberships {
		if _, err := tx.NamedExecContext(ctx, fkQ, m); err != nil {
			return fmt.Errorf("error inserting label membership: %s", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing subscription transaction: %s", err)
	}

	return nil
}

func (r Repo) AllSubscriptions(ctx context.Context) ([]skim.Subscription, error) {
	const q = `SELECT * FROM subscriptions ORDER BY title;`

	var subs []skim.Subscription
	if err := r.db.SelectContext(ctx, &subs, q); err != nil {
		return nil, fmt.Errorf("error selecting subscriptions: %s", err)
	}

	return subs, nil
}

func (r Repo) AllLabels(ctx context.Context) ([]skim.Label, error) {
	const q = `SELECT * FROM labels ORDER BY name;`

	var labels []skim.Label
	if err := r.db.SelectContext(ctx, &labels, q); err != nil {
		return nil, fmt.Errorf("error selecting labels: %s", err)
	}

	return labels, nil
}

func (r Repo) Subscription(ctx context.Context, id string) (skim.Subscription, error) {
	const q = `SELECT * FROM subscriptions WHERE id = ?;`

	var sub skim.Subscription
	err := r.db.GetContext(ctx, &sub, q, id)
	if errors.Is(err, sql.ErrNoRows) {
		return skim.Subscription{}, skim.ErrNotFound
	}
	if err != nil {
		return skim.Subscription{}, fmt.Errorf("error fetching subscription: %s", err)
	}

	return sub, nil
}
