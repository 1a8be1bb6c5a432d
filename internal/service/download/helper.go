// Package download fetches remote files and hands them to the user under a
// chosen filename.
package download

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// DefaultReleaseDelay is how long a blob outlives the save trigger.
const DefaultReleaseDelay = time.Second

// StatusError is a non-2xx answer from the file endpoint.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Échec du téléchargement (%d)", e.Status)
}

// Options tune a Helper.
type Options struct {
	ReleaseDelay time.Duration
	Logger       zerolog.Logger
}

// Helper downloads files through a blob store and a saver.
type Helper struct {
	client  *resty.Client
	blobs   BlobStore
	saver   Saver
	delay   time.Duration
	pending *sync.WaitGroup
	log     zerolog.Logger
}

// NewHelper builds a Helper. A nil client uses resty defaults.
func NewHelper(client *resty.Client, blobs BlobStore, saver Saver, opts Options) *Helper {
	if client == nil {
		client = resty.New()
	}
	delay := opts.ReleaseDelay
	if delay <= 0 {
		delay = DefaultReleaseDelay
	}
	return &Helper{
		client:  client,
		blobs:   blobs,
		saver:   saver,
		delay:   delay,
		pending: &sync.WaitGroup{},
		log:     opts.Logger,
	}
}

// With returns a Helper that saves through s and shares everything else.
func (h *Helper) With(s Saver) *Helper {
	clone := *h
	clone.saver = s
	return &clone
}

// DownloadFromURL fetches url and triggers exactly one save under filename.
// The temporary blob is released ReleaseDelay later whether or not the save
// succeeded.
func (h *Helper) DownloadFromURL(ctx context.Context, url, filename string) error {
	blob, err := h.fetch(ctx, url)
	if err != nil {
		return err
	}
	defer h.scheduleRelease(blob)

	content, err := h.blobs.Open(blob)
	if err != nil {
		return fmt.Errorf("open blob: %w", err)
	}
	defer content.Close()

	if err := h.saver.Save(ctx, content, blob, filename); err != nil {
		h.log.Warn().Err(err).Str("filename", filename).Msg("save failed")
		return err
	}

	h.log.Info().
		Str("filename", filename).
		Int64("size", blob.Size).
		Msg("download saved")
	return nil
}

// CreateObjectURL fetches url into a blob for in-page viewing. The caller owns
// the blob and must Release it.
func (h *Helper) CreateObjectURL(ctx context.Context, url string) (Blob, error) {
	return h.fetch(ctx, url)
}

// Open reads a blob created by CreateObjectURL.
func (h *Helper) Open(b Blob) (io.ReadCloser, error) {
	return h.blobs.Open(b)
}

// Release schedules b for revocation.
func (h *Helper) Release(b Blob) {
	h.scheduleRelease(b)
}

// Wait blocks until every scheduled release has run.
func (h *Helper) Wait() {
	h.pending.Wait()
}

func (h *Helper) fetch(ctx context.Context, url string) (Blob, error) {
	resp, err := h.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return Blob{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		h.log.Warn().Int("status", resp.StatusCode()).Str("url", url).Msg("file endpoint rejected request")
		return Blob{}, &StatusError{Status: resp.StatusCode()}
	}

	blob, err := h.blobs.Create(body, resp.Header().Get("Content-Type"))
	if err != nil {
		return Blob{}, err
	}
	return blob, nil
}

func (h *Helper) scheduleRelease(b Blob) {
	h.pending.Add(1)
	time.AfterFunc(h.delay, func() {
		defer h.pending.Done()
		if err := h.blobs.Revoke(b); err != nil {
			h.log.Warn().Err(err).Str("blob", b.ID).Msg("release blob failed")
		}
	})
}
