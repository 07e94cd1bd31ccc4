package reader

// Wire shapes for the Reader API's JSON responses. Every field is optional
// in practice, whatever the documentation implies; the sync layer treats the
// raw item as untrusted and normalizes it.

type idsResponse struct {
	ItemRefs []itemRef `json:"itemRefs"`
}

type itemRef struct {
	ID            string `json:"id"`
	TimestampUsec string `json:"timestampUsec"`
}

type contentsResponse struct {
	Items []RawItem `json:"items"`
}

type (
	// RawItem is one entry from stream/items/contents, as sent.
	RawItem struct {
		ID            string   `json:"id"`
		Title         string   `json:"title"`
		Author        string   `json:"author"`
		Published     int64    `json:"published"`
		Updated       int64    `json:"updated"`
		TimestampUsec string   `json:"timestampUsec"`
		Alternate     []Link   `json:"alternate"`
		Canonical     []Link   `json:"canonical"`
		Summary       *Content `json:"summary"`
		Content       *Content `json:"content"`
		Origin        Origin   `json:"origin"`
		Categories    []string `json:"categories"`
	}

	Link struct {
		Href string `json:"href"`
		Type string `json:"type,omitempty"`
	}

	Content struct {
		Direction string `json:"direction"`
		Content   string `json:"content"`
	}

	Origin struct {
		StreamID string `json:"streamId"`
		Title    string `json:"title"`
		HTMLURL  string `json:"htmlUrl"`
	}
)

type subscriptionListResponse struct {
	Subscriptions []RemoteSubscription `json:"subscriptions"`
}

type (
	// RemoteSubscription is one entry from subscription/list.
	RemoteSubscription struct {
		ID         string           `json:"id"`
		Title      string           `json:"title"`
		HTMLURL    string           `json:"htmlUrl"`
		Categories []RemoteCategory `json:"categories"`
	}

	// RemoteCategory is a label attached to a subscription. Its id has the
	// form user/<uid>/label/<name>.
	RemoteCategory struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
)

type quickAddResponse struct {
	StreamID string `json:"streamId"`
	Query    string `json:"query"`
}
