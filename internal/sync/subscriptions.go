package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/skimreader/skim/internal/reader"
	"github.com/skimreader/skim/internal/skim"
)

// Subscriptions mirrors the remote subscription/label list. Each pass
// replaces the whole local snapshot; a failed request leaves the previous
// snapshot untouched since nothing is deleted until the response is in hand.
type Subscriptions struct {
	store  skim.SubscriptionStore
	client *reader.Client

	running atomic.Bool
}

func NewSubscriptions(store skim.SubscriptionStore, client *reader.Client) *Subscriptions {
	return &Subscriptions{store: store, client: client}
}

func (s *Subscriptions) Sync(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		slog.ErrorContext(ctx, "subscriptions are already being synchronized")
		return skim.ErrBusy
	}
	defer s.running.Store(false)

	remotes, err := s.client.SubscriptionList(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "subscriptions synchronization failed", "error", err)
		return fmt.Errorf("error fetching subscriptions: %w", err)
	}

	subs := make([]skim.Subscription, 0, len(remotes))
	labels := make(map[string]skim.Label)
	var memberships []skim.LabelMembership
	for _, remote := range remotes {
		subs = append(subs, skim.Subscription{
			ID:    remote.ID,
			URL:   remote.HTMLURL,
			Title: remote.Title,
		})
		for _, cat := range remote.Categories {
			id := labelID(cat.ID)
			labels[id] = skim.Label{ID: id, Name: cat.Label}
			memberships = append(memberships, skim.LabelMembership{
				ItemID:  remote.ID,
				LabelID: id,
			})
		}
	}

	labelList := make([]skim.Label, 0, len(labels))
	for _, l := range labels {
		labelList = append(labelList, l)
	}

	if err := s.store.ReplaceSubscriptions(ctx, subs, labelList, memberships); err != nil {
		return fmt.Errorf("error replacing subscriptions: %w", err)
	}

	slog.DebugContext(ctx, "subscriptions synchronization completed", "subscriptions", len(subs), "labels", len(labelList))

	return nil
}

// labelID strips the user prefix from a category id:
// "user/1234/label/Tech" becomes "label/Tech".
func labelID(catID string) string {
	parts := strings.SplitN(catID, "/", 3)
	return parts[len(parts)-1]
}
