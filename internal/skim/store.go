package skim

import "context"

type (
	// IDStamp pairs an item id with the freshness stamp the remote reported
	// for it, in microseconds.
	IDStamp struct {
		ID    int64
		Stamp int64
	}

	// ReconcileArgs carries the three id sets one Id-synchronizer pass
	// fetched from the remote service.
	ReconcileArgs struct {
		ReadingList []IDStamp
		Unread      []IDStamp
		Starred     []IDStamp
	}

	// ItemMeta is the normalized metadata persisted for an item after its
	// content has been fetched.
	ItemMeta struct {
		ID           int64
		Subscription string
		Title        string
		Author       string
		Summary      string
		Href         string
		Time         int64
		// Stamp is the remote freshness stamp the content was fetched at.
		// The row's update_time advances to it only once the content is
		// durable, so a failed fetch keeps the row eligible for re-marking.
		Stamp int64
	}

	// ItemStore owns the items table. Reconcile and content updates are the
	// Id/Item synchronizers' exclusive domain; the flag bits also move on
	// local user actions.
	ItemStore interface {
		// ReconcileIDs applies a full id-set reconciliation in a single
		// transaction: every row is tombstoned and stripped of its bits,
		// then rows still reported by the remote are revived, dirty-marked
		// when fresher, and reflagged. Nothing partial is ever visible.
		ReconcileIDs(ctx context.Context, args ReconcileArgs) error
		DirtyItemIDs(ctx context.Context) ([]int64, error)
		// UpdateItemsContent persists normalized metadata, records each
		// row's freshness stamp and clears its dirty bit.
		UpdateItemsContent(ctx context.Context, metas []ItemMeta) error
		// CollectGarbage removes every tombstoned, non-starred row and
		// returns the ids so callers can drop the content blobs too.
		CollectGarbage(ctx context.Context) ([]int64, error)
		// EvictOver trims the non-starred population to max rows, oldest
		// first, returning the evicted ids.
		EvictOver(ctx context.Context, max int) ([]int64, error)

		Item(ctx context.Context, id int64) (Item, error)
		ItemsByCategory(ctx context.Context, cat Category, limit int) ([]Item, error)
		ItemsBySubscription(ctx context.Context, subID string, cat Category) ([]Item, error)
		ItemsByLabel(ctx context.Context, labelID string, cat Category) ([]Item, error)
		UnreadCount(ctx context.Context) (int, error)

		SetUnread(ctx context.Context, id int64, unread bool) error
		SetStarred(ctx context.Context, id int64, starred bool) error
	}

	// FlagStore is the durable queue of unacknowledged mutations. User
	// actions write, the flag synchronizer reads and deletes.
	FlagStore interface {
		// QueueFlag records a mutation, overwriting any still-pending row
		// for the same (item, tag).
		QueueFlag(ctx context.Context, itemID int64, tag StateTag, remove bool) error
		PendingFlags(ctx context.Context, tag StateTag, remove bool) ([]PendingFlag, error)
		DeleteFlags(ctx context.Context, ids []int64) error
	}

	// SubscriptionStore owns subscriptions, labels and their memberships,
	// replaced wholesale every subscription sync.
	SubscriptionStore interface {
		ReplaceSubscriptions(ctx context.Context, subs []Subscription, labels []Label, memberships []LabelMembership) error
		AllSubscriptions(ctx context.Context) ([]Subscription, error)
		AllLabels(ctx context.Context) ([]Label, error)
		Subscription(ctx context.Context, id string) (Subscription, error)
	}

	// Store is the full cache surface.
	Store interface {
		ItemStore
		FlagStore
		SubscriptionStore
	}
)
