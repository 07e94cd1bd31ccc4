package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	readability "github.com/go-shiori/go-readability"
	"github.com/gorilla/mux"
	"github.com/sym01/htmlsanitizer"

	"github.com/skimreader/skim/internal/blob"
	skimerrs "github.com/skimreader/skim/internal/errors"
	"github.com/skimreader/skim/internal/serverutil"
	"github.com/skimreader/skim/internal/skim"
)

type ItemResp struct {
	ID           int64  `json:"id"`
	Subscription string `json:"subscription"`
	Title        string `json:"title"`
	Author       string `json:"author"`
	Summary      string `json:"summary"`
	Href         string `json:"href"`
	Time         int64  `json:"time"`
	Unread       bool   `json:"unread"`
	Starred      bool   `json:"starred"`
}

func toItemResp(item skim.Item) ItemResp {
	return ItemResp{
		ID:           item.ID,
		Subscription: item.Subscription,
		Title:        item.Title,
		Author:       item.Author,
		Summary:      item.Summary,
		Href:         item.Href,
		Time:         item.Time,
		Unread:       item.Unread,
		Starred:      item.Starred,
	}
}

func itemID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["itemID"], 10, 64)
	if err != nil {
		return 0, skimerrs.E(http.StatusBadRequest, "item id must be an integer")
	}
	return id, nil
}

func category(r *http.Request) (skim.Category, error) {
	switch cat := r.URL.Query().Get("category"); cat {
	case "", string(skim.CategoryAll):
		return skim.CategoryAll, nil
	case string(skim.CategoryUnread):
		return skim.CategoryUnread, nil
	case string(skim.CategoryStarred):
		return skim.CategoryStarred, nil
	default:
		return "", skimerrs.E(http.StatusBadRequest, fmt.Sprintf("unknown category %q", cat))
	}
}

// getItems lists cached items, filterable by category and narrowed to a
// single subscription or label.
func (s *Server) getItems(w http.ResponseWriter, r *http.Request) error {
	cat, err := category(r)
	if err != nil {
		return err
	}

	var limit int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return skimerrs.E(http.StatusBadRequest, "limit must be a non-negative integer")
		}
	}

	var (
		q     = r.URL.Query()
		items []skim.Item
	)
	switch {
	case q.Get("subscription") != "":
		items, err = s.store.ItemsBySubscription(r.Context(), q.Get("subscription"), cat)
	case q.Get("label") != "":
		items, err = s.store.ItemsByLabel(r.Context(), q.Get("label"), cat)
	default:
		items, err = s.store.ItemsByCategory(r.Context(), cat, limit)
	}
	if err != nil {
		return err
	}

	resp := make([]ItemResp, 0, len(items))
	for _, item := range items {
		resp = append(resp, toItemResp(item))
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) error {
	id, err := itemID(r)
	if err != nil {
		return err
	}

	item, err := s.store.Item(r.Context(), id)
	if errors.Is(err, skim.ErrNotFound) {
		return skimerrs.E(http.StatusNotFound, "no such item")
	}
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, toItemResp(item))
}

type ItemContentResp struct {
	ID      int64  `json:"id"`
	Content string `json:"content"`
}

// getItemContent returns the cached article body. With ?readable=true the
// original page is fetched and stripped down to its article instead, which
// is slower but much nicer for truncated feeds.
func (s *Server) getItemContent(w http.ResponseWriter, r *http.Request) error {
	id, err := itemID(r)
	if err != nil {
		return err
	}

	if r.URL.Query().Get("readable") == "true" {
		return s.getReadableContent(w, r, id)
	}

	content, err := s.blobs.Read(id)
	if errors.Is(err, blob.ErrNotFound) {
		return skimerrs.E(http.StatusNotFound, "no content cached for item")
	}
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, ItemContentResp{ID: id, Content: content})
}

func (s *Server) getReadableContent(w http.ResponseWriter, r *http.Request, id int64) error {
	// Cache results for less processing and prevent refetches
	if content, ok := s.readableCache.Get(id); ok {
		return serverutil.WriteJSON(w, http.StatusOK, ItemContentResp{ID: id, Content: content})
	}

	item, err := s.store.Item(r.Context(), id)
	if errors.Is(err, skim.ErrNotFound) {
		return skimerrs.E(http.StatusNotFound, "no such item")
	}
	if err != nil {
		return err
	}
	if item.Href == "" {
		return skimerrs.E(http.StatusNotFound, "item has no source page")
	}

	u, err := url.Parse(item.Href)
	if err != nil {
		return fmt.Errorf("error with the item's url: %s", err)
	}

	// Fetch the actual site
	resp, err := s.fetchClient.Get(item.Href)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// Strip it for readability and sanitize
	parser := readability.NewParser()
	article, err := parser.Parse(resp.Body, u)
	if err != nil {
		return err
	}

	sanitizer := htmlsanitizer.NewHTMLSanitizer()
	content, err := sanitizer.SanitizeString(article.Content)
	if err != nil {
		return err
	}

	// Add to the cache for next time
	s.readableCache.Add(id, content)

	return serverutil.WriteJSON(w, http.StatusOK, ItemContentResp{ID: id, Content: content})
}

type ItemSummaryResp struct {
	ID      int64  `json:"id"`
	Summary string `json:"summary"`
}

func (s *Server) getItemSummary(w http.ResponseWriter, r *http.Request) error {
	if s.summarizer == nil {
		return skimerrs.E(http.StatusNotImplemented, "summarization is not configured")
	}

	id, err := itemID(r)
	if err != nil {
		return err
	}

	item, err := s.store.Item(r.Context(), id)
	if errors.Is(err, skim.ErrNotFound) {
		return skimerrs.E(http.StatusNotFound, "no such item")
	}
	if err != nil {
		return err
	}

	content, err := s.blobs.Read(id)
	if errors.Is(err, blob.ErrNotFound) {
		return skimerrs.E(http.StatusNotFound, "no content cached for item")
	}
	if err != nil {
		return err
	}

	sum, err := s.summarizer.Summarize(r.Context(), item.Title, content)
	if err != nil {
		return fmt.Errorf("error summarizing item: %w", err)
	}

	return serverutil.WriteJSON(w, http.StatusOK, ItemSummaryResp{ID: id, Summary: sum})
}

func (s *Server) getUnreadCount(w http.ResponseWriter, r *http.Request) error {
	count, err := s.store.UnreadCount(r.Context())
	if err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, map[string]int{"unread": count})
}

// postMark flips an item's unread bit locally and queues the matching tag
// mutations for the next flag pass. Marking unread means adding kept-unread
// and retracting read; marking read is the mirror image.
func (s *Server) postMark(add, remove skim.StateTag, unread bool) serverutil.HandlerFuncE {
	return func(w http.ResponseWriter, r *http.Request) error {
		id, err := itemID(r)
		if err != nil {
			return err
		}
		if _, err := s.store.Item(r.Context(), id); errors.Is(err, skim.ErrNotFound) {
			return skimerrs.E(http.StatusNotFound, "no such item")
		} else if err != nil {
			return err
		}

		if err := s.store.SetUnread(r.Context(), id, unread); err != nil {
			return err
		}
		if err := s.store.QueueFlag(r.Context(), id, add, false); err != nil {
			return err
		}
		if err := s.store.QueueFlag(r.Context(), id, remove, true); err != nil {
			return err
		}

		return serverutil.WriteJSON(w, http.StatusOK, map[string]bool{"unread": unread})
	}
}

func (s *Server) postStar(starred bool) serverutil.HandlerFuncE {
	return func(w http.ResponseWriter, r *http.Request) error {
		id, err := itemID(r)
		if err != nil {
			return err
		}
		if _, err := s.store.Item(r.Context(), id); errors.Is(err, skim.ErrNotFound) {
			return skimerrs.E(http.StatusNotFound, "no such item")
		} else if err != nil {
			return err
		}

		if err := s.store.SetStarred(r.Context(), id, starred); err != nil {
			return err
		}
		if err := s.store.QueueFlag(r.Context(), id, skim.TagStarred, !starred); err != nil {
			return err
		}

		return serverutil.WriteJSON(w, http.StatusOK, map[string]bool{"starred": starred})
	}
}
