package server

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	skimerrs "github.com/skimreader/skim/internal/errors"
	"github.com/skimreader/skim/internal/serverutil"
	"github.com/skimreader/skim/internal/skim"
)

type SubscriptionResp struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

func (s *Server) getSubscriptions(w http.ResponseWriter, r *http.Request) error {
	subs, err := s.store.AllSubscriptions(r.Context())
	if err != nil {
		return err
	}

	resp := make([]SubscriptionResp, 0, len(subs))
	for _, sub := range subs {
		resp = append(resp, SubscriptionResp{ID: sub.ID, URL: sub.URL, Title: sub.Title})
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

type AddSubscriptionReq struct {
	URL string `json:"url"`
}

func (req AddSubscriptionReq) Validate() error {
	if req.URL == "" {
		return errors.New("url is required")
	}
	return nil
}

// postSubscriptions subscribes the account to a new feed and refreshes the
// local subscription snapshot so it shows up right away.
func (s *Server) postSubscriptions(w http.ResponseWriter, r *http.Request) error {
	req, err := serverutil.DecodeValid[AddSubscriptionReq](r.Body)
	if err != nil {
		return skimerrs.E(http.StatusBadRequest, err)
	}

	streamID, err := s.client.QuickAdd(r.Context(), req.URL)
	if err != nil {
		return fmt.Errorf("error adding subscription: %w", err)
	}
	if streamID == "" {
		return skimerrs.E(http.StatusUnprocessableEntity, "the service could not find a feed at that url")
	}

	if err := s.orch.SyncSubscriptions(r.Context()); err != nil && !errors.Is(err, skim.ErrBusy) {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusCreated, map[string]string{"id": streamID})
}

type EditLabelReq struct {
	Subscription string `json:"subscription"`
	Label        string `json:"label"`
	Remove       bool   `json:"remove"`
}

func (req EditLabelReq) Validate() error {
	if req.Subscription == "" {
		return errors.New("subscription is required")
	}
	if req.Label == "" {
		return errors.New("label is required")
	}
	return nil
}

// postSubscriptionLabel attaches or detaches a label on a subscription
// remotely, then refreshes the snapshot to pick up the change.
func (s *Server) postSubscriptionLabel(w http.ResponseWriter, r *http.Request) error {
	req, err := serverutil.DecodeValid[EditLabelReq](r.Body)
	if err != nil {
		return skimerrs.E(http.StatusBadRequest, err)
	}

	if _, err := s.store.Subscription(r.Context(), req.Subscription); errors.Is(err, skim.ErrNotFound) {
		return skimerrs.E(http.StatusNotFound, "no such subscription")
	} else if err != nil {
		return err
	}

	if err := s.client.EditSubscriptionLabel(r.Context(), req.Subscription, req.Label, !req.Remove); err != nil {
		return fmt.Errorf("error editing subscription label: %w", err)
	}

	if err := s.orch.SyncSubscriptions(r.Context()); err != nil && !errors.Is(err, skim.ErrBusy) {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getSubscriptionIcon serves the cached favicon for a subscription's site.
// An empty file is a recorded fetch failure and reads as "no icon".
func (s *Server) getSubscriptionIcon(w http.ResponseWriter, r *http.Request) error {
	siteURL := r.URL.Query().Get("url")
	if siteURL == "" {
		return skimerrs.E(http.StatusBadRequest, "url is required")
	}

	path := s.icons.Path(siteURL)
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return skimerrs.E(http.StatusNotFound, "no icon cached")
	}

	http.ServeFile(w, r, path)
	return nil
}

type LabelResp struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (s *Server) getLabels(w http.ResponseWriter, r *http.Request) error {
	labels, err := s.store.AllLabels(r.Context())
	if err != nil {
		return err
	}

	resp := make([]LabelResp, 0, len(labels))
	for _, l := range labels {
		resp = append(resp, LabelResp{ID: l.ID, Name: l.Name})
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}
