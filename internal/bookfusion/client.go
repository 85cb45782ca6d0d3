// Package bookfusion implements the three-phase upload exchange with the
// BookFusion calibre API: init, transfer to the presigned target, finalize.
package bookfusion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/imroc/req/v3"

	"github.com/shelfmark/shelfsync/internal/library"
	"github.com/shelfmark/shelfsync/internal/version"
)

const (
	uploadsInit     = "/uploads/init"
	uploadsFinalize = "/uploads/finalize"

	// A stuck phase would hold the run lock, so every request gets a hard
	// deadline. No phase is retried; retry happens on the next run.
	requestTimeout = 5 * time.Minute
)

// Result is the outcome of one upload attempt. Message names the failed
// phase for diagnostics.
type Result struct {
	OK      bool
	Message string
}

type initResponse struct {
	URL    string            `json:"url"`
	Params map[string]string `json:"params"`
}

// Client talks to the BookFusion calibre API with a single credential. The
// transfer target returned by init is presigned, so it is called without the
// Authorization header on a separate plain client.
type Client struct {
	api      *req.Client
	transfer *req.Client
}

// New builds a client for the given API base URL and key. The key is sent as
// the Basic auth username with an empty password.
func New(baseURL, apiKey string) *Client {
	ua := version.AppName + "/" + version.Version
	api := req.C().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetCommonBasicAuth(apiKey, "").
		SetUserAgent(ua).
		SetTimeout(requestTimeout)

	transfer := req.C().
		SetUserAgent(ua).
		SetTimeout(requestTimeout)

	return &Client{api: api, transfer: transfer}
}

// Upload runs the three phases for one file. It never retries internally;
// any non-accepted status aborts with a phase-naming message. meta supplies
// the descriptive fields sent during finalize.
func (c *Client) Upload(ctx context.Context, filename, path, digest string, meta *library.Metadata) Result {
	init, res := c.uploadInit(ctx, filename, digest)
	if !res.OK {
		return res
	}

	if res := c.uploadTransfer(ctx, init, path); !res.OK {
		return res
	}

	return c.uploadFinalize(ctx, init.Params["key"], digest, meta)
}

func (c *Client) uploadInit(ctx context.Context, filename, digest string) (*initResponse, Result) {
	var parsed initResponse
	resp, err := c.api.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"filename": filename,
			"digest":   digest,
		}).
		EnableForceMultipart().
		SetSuccessResult(&parsed).
		Post(uploadsInit)
	if err != nil {
		return nil, Result{Message: fmt.Sprintf("Init failed: %v", err)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, Result{Message: fmt.Sprintf("Init failed: %d", resp.StatusCode)}
	}
	if parsed.URL == "" || parsed.Params["key"] == "" {
		return nil, Result{Message: "Init failed: malformed response"}
	}
	return &parsed, Result{OK: true}
}

func (c *Client) uploadTransfer(ctx context.Context, init *initResponse, path string) Result {
	if info, err := os.Stat(path); err == nil {
		slog.Info("upload transfer", "file", path, "size", humanize.Bytes(uint64(info.Size())))
	}

	// Init's params are single-use; they are forwarded verbatim and never
	// refreshed here.
	form := url.Values{}
	for k, v := range init.Params {
		form.Set(k, v)
	}

	resp, err := c.transfer.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		SetFile("file", path).
		Post(init.URL)
	if err != nil {
		return Result{Message: fmt.Sprintf("S3 upload failed: %v", err)}
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return Result{OK: true}
	default:
		return Result{Message: fmt.Sprintf("S3 upload failed: %d", resp.StatusCode)}
	}
}

func (c *Client) uploadFinalize(ctx context.Context, key, digest string, meta *library.Metadata) Result {
	form := url.Values{}
	form.Set("key", key)
	form.Set("digest", digest)
	form.Set("metadata[calibre_metadata_digest]", digest)
	form.Set("metadata[title]", meta.Title)
	for _, author := range meta.Authors {
		form.Add("metadata[author_list][]", author)
	}
	for _, tag := range meta.Tags {
		form.Add("metadata[tag_list][]", tag)
	}
	if meta.Summary != "" {
		form.Set("metadata[summary]", meta.Summary)
	}
	if meta.ISBN != "" {
		form.Set("metadata[isbn]", meta.ISBN)
	}
	if meta.Language != "" {
		form.Set("metadata[language]", meta.Language)
	}

	resp, err := c.api.R().
		SetContext(ctx).
		SetFormDataFromValues(form).
		EnableForceMultipart().
		Post(uploadsFinalize)
	if err != nil {
		return Result{Message: fmt.Sprintf("Finalize failed: %v", err)}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Result{Message: fmt.Sprintf("Finalize failed: %d", resp.StatusCode)}
	}

	return Result{OK: true, Message: "Uploaded"}
}
