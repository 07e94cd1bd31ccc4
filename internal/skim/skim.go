// Package skim holds the domain types for the local feed cache and the
// capability interfaces the synchronizers are built against.
package skim

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("resource not found")
	// ErrBusy is returned when a synchronizer pass is already in flight.
	ErrBusy = errors.New("synchronization already running")
)

// StateTag is a remote state tag attached to an item, in the Reader API's
// vocabulary.
type StateTag string

const (
	TagRead       StateTag = "user/-/state/com.google/read"
	TagKeptUnread StateTag = "user/-/state/com.google/kept-unread"
	TagStarred    StateTag = "user/-/state/com.google/starred"

	// TagReadingList names the stream every subscribed item belongs to.
	TagReadingList StateTag = "user/-/state/com.google/reading-list"
)

// StateTags are the tags a pending flag mutation may carry.
var StateTags = []StateTag{TagRead, TagKeptUnread, TagStarred}

// Category filters item listings.
type Category string

const (
	CategoryAll     Category = "all"
	CategoryUnread  Category = "unread"
	CategoryStarred Category = "starred"
)

type (
	// Item is one cached feed entry. Timestamps are microseconds since the
	// epoch; the remote API's second-precision fields are converted at the
	// client boundary.
	Item struct {
		ID           int64  `db:"id"`
		Subscription string `db:"subscription"`
		Title        string `db:"title"`
		Author       string `db:"author"`
		Summary      string `db:"summary"`
		Href         string `db:"href"`
		Time         int64  `db:"time"`
		Unread       bool   `db:"unread"`
		Starred      bool   `db:"starred"`

		// Control bits, never shown to a client.
		ToSync     bool  `db:"to_sync"`
		ToDelete   bool  `db:"to_delete"`
		UpdateTime int64 `db:"update_time"`
	}

	// Subscription is a remote feed the account follows. URL is the site's
	// html url and doubles as the favicon key.
	Subscription struct {
		ID    string `db:"id"`
		URL   string `db:"url"`
		Title string `db:"title"`
	}

	Label struct {
		ID   string `db:"id"`
		Name string `db:"name"`
	}

	// LabelMembership ties a subscription to a label.
	LabelMembership struct {
		ItemID  string `db:"item_id"`
		LabelID string `db:"label_id"`
	}

	// PendingFlag is one locally made read/unread/starred mutation that the
	// remote service has not acknowledged yet. At most one row exists per
	// (item, tag); a newer mutation overwrites Remove instead of appending.
	PendingFlag struct {
		ID     int64    `db:"id"`
		ItemID int64    `db:"item_id"`
		Tag    StateTag `db:"flag"`
		Remove bool     `db:"remove"`
	}
)

// Authenticator supplies credentials for remote calls. Credential storage and
// the login handshake live outside this module; the synchronizers only ever
// see this capability.
type Authenticator interface {
	// Token returns the session token placed on every request.
	Token(ctx context.Context) (string, error)
	// EditToken returns the short-lived authorization required by mutating
	// endpoints, refreshing it when expired.
	EditToken(ctx context.Context) (string, error)
	// Invalidate drops cached credentials, typically after a 403.
	Invalidate()
}
