package sync

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/skimreader/skim/internal/reader"
	"github.com/skimreader/skim/internal/skim"
)

// Remote items come with no guarantees at all: any field may be missing.
// Normalization fills every gap with a usable default so the cache never
// carries a half-parsed row.

const (
	// summaryLimit caps the stored summary text; a trimmed summary gets an
	// ellipsis appended.
	summaryLimit = 140
	// stripLimit bounds how much of the body is even considered for the
	// summary before trimming.
	stripLimit = 1000
)

// Placeholders are the user-facing defaults for absent metadata.
type Placeholders struct {
	Untitled      string
	UnknownAuthor string
}

// DefaultPlaceholders matches the reference client's wording.
var DefaultPlaceholders = Placeholders{
	Untitled:      "Untitled",
	UnknownAuthor: "Stranger",
}

var (
	stripPolicy   = bluemonday.StrictPolicy()
	contentPolicy = bluemonday.UGCPolicy()
)

// ShortID derives the signed 64-bit cache key from a remote long id such as
// "tag:google.com,2005:reader/item/00f0767f816c86a8". The trailing 16 hex
// digits are decoded two's-complement, so suffixes with the top bit set come
// out negative. Plain decimal ids pass through unchanged.
func ShortID(longID string) (int64, error) {
	if !strings.Contains(longID, "/") {
		return strconv.ParseInt(longID, 10, 64)
	}

	suffix := longID[strings.LastIndex(longID, "/")+1:]
	u, err := strconv.ParseUint(suffix, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("error decoding item id %q: %s", longID, err)
	}

	return int64(u), nil
}

// stripText removes markup, entities and embedded line noise from a snippet.
func stripText(s string) string {
	s = stripPolicy.Sanitize(s)
	s = html.UnescapeString(s)
	s = strings.NewReplacer("\n", "", "\t", "", "\r", "").Replace(s)
	return strings.TrimSpace(s)
}

// usec is one second in cache time units.
const usec int64 = 1_000_000

// crawlStamp is the item's remote freshness stamp in microseconds, the same
// value the id listings report for it.
func crawlStamp(raw reader.RawItem) int64 {
	t, err := strconv.ParseInt(raw.TimestampUsec, 10, 64)
	if err != nil {
		return raw.Published * usec
	}
	return t
}

// itemTime resolves the item timestamp in microseconds. The crawl stamp has
// the finer resolution, but when the feed's own updated stamp is earlier the
// crawl time is just clock skew, so the minimum of the two wins.
func itemTime(raw reader.RawItem) int64 {
	t := crawlStamp(raw)
	if raw.Updated > 0 && raw.Updated*usec < t {
		t = raw.Updated * usec
	}
	return t
}

// normalizeItem turns one raw remote item into persistable metadata plus the
// sanitized content body destined for the blob store.
func normalizeItem(raw reader.RawItem, ph Placeholders) (skim.ItemMeta, string, error) {
	id, err := ShortID(raw.ID)
	if err != nil {
		return skim.ItemMeta{}, "", err
	}

	var body string
	switch {
	case raw.Summary != nil && raw.Summary.Content != "":
		body = raw.Summary.Content
	case raw.Content != nil:
		body = raw.Content.Content
	}

	// An empty body must also empty the summary; a stale summary from an
	// earlier sync must not survive the refetch.
	var summary string
	if body != "" {
		stripped := []rune(stripText(body))
		if len(stripped) > stripLimit {
			stripped = stripped[:stripLimit]
		}
		if len(stripped) > summaryLimit {
			summary = string(stripped[:summaryLimit-1]) + "…"
		} else {
			summary = string(stripped)
		}
	}

	title := ph.Untitled
	if raw.Title != "" {
		if t := stripText(raw.Title); t != "" {
			title = t
		}
	}

	author := ph.UnknownAuthor
	if raw.Author != "" {
		author = html.UnescapeString(raw.Author)
	}

	href := raw.Origin.HTMLURL
	if len(raw.Alternate) > 0 && raw.Alternate[0].Href != "" {
		href = raw.Alternate[0].Href
	}

	meta := skim.ItemMeta{
		ID:           id,
		Subscription: raw.Origin.StreamID,
		Title:        title,
		Author:       author,
		Summary:      summary,
		Href:         href,
		Time:         itemTime(raw),
		Stamp:        crawlStamp(raw),
	}

	return meta, contentPolicy.Sanitize(body), nil
}
