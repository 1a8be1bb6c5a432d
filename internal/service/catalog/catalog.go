// Package catalog reads the constitution catalog exposed by the document backend.
package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/constitution-portal/backend/internal/model/document"
)

const (
	listPath  = "/api/constitutions/db/list"
	filesPath = "/api/constitutions/files/"

	// findPageSize and findMaxPages bound the scan done by FindByFilename.
	findPageSize = 100
	findMaxPages = 50
)

// Files builds file endpoint URLs.
type Files struct {
	BaseURL string
}

// FileURL returns the URL serving filename. The name is escaped as a single
// path segment.
func (f Files) FileURL(filename string) string {
	return strings.TrimRight(f.BaseURL, "/") + filesPath + url.PathEscape(filename)
}

// Filter narrows a catalog listing.
type Filter struct {
	Year   *int
	Status document.Status
	Skip   int
	Limit  int
}

// RemoteStore implements document.Store against the backend list endpoint.
type RemoteStore struct {
	Files
	client *resty.Client
	log    zerolog.Logger
}

// NewRemoteStore creates a catalog client rooted at baseURL.
func NewRemoteStore(baseURL string, timeout time.Duration, log zerolog.Logger) *RemoteStore {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &RemoteStore{Files: Files{BaseURL: baseURL}, client: client, log: log}
}

// List returns the backend's default listing: no status or year filter, and
// the server's default page.
func (s *RemoteStore) List(ctx context.Context) ([]document.Document, error) {
	return s.ListFiltered(ctx, Filter{})
}

// ListFiltered returns the documents matching f.
func (s *RemoteStore) ListFiltered(ctx context.Context, f Filter) ([]document.Document, error) {
	req := s.client.R().SetContext(ctx)
	if f.Year != nil {
		req.SetQueryParam("year", strconv.Itoa(*f.Year))
	}
	if f.Status != "" {
		req.SetQueryParam("status", string(f.Status))
	}
	if f.Skip > 0 {
		req.SetQueryParam("skip", strconv.Itoa(f.Skip))
	}
	if f.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(f.Limit))
	}

	var docs []document.Document
	resp, err := req.SetResult(&docs).Get(listPath)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("list documents: unexpected status %d", resp.StatusCode())
	}

	s.log.Debug().Int("count", len(docs)).Msg("catalog listed")
	return docs, nil
}

// FindByFilename pages through the whole catalog, any status, for filename.
func (s *RemoteStore) FindByFilename(ctx context.Context, filename string) (document.Document, bool, error) {
	for page := 0; page < findMaxPages; page++ {
		docs, err := s.ListFiltered(ctx, Filter{Skip: page * findPageSize, Limit: findPageSize})
		if err != nil {
			return document.Document{}, false, err
		}
		for _, doc := range docs {
			if doc.Filename == filename {
				return doc, true, nil
			}
		}
		if len(docs) < findPageSize {
			return document.Document{}, false, nil
		}
	}
	s.log.Warn().Str("filename", filename).Int("pages", findMaxPages).Msg("catalog scan stopped at page limit")
	return document.Document{}, false, nil
}

var _ document.Store = (*RemoteStore)(nil)
