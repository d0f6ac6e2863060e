package crates

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/matzehuels/crateindex/pkg/buildinfo"
	"github.com/matzehuels/crateindex/pkg/cache"
	"github.com/matzehuels/crateindex/pkg/httputil"
	"github.com/matzehuels/crateindex/pkg/integrations"
)

const (
	apiURL      = "https://crates.io/api/v1"
	downloadURL = "https://static.crates.io/crates"
)

// CrateInfo holds metadata for a Rust crate from crates.io.
//
// LatestVersion is the highest stable version, or the highest version when
// the crate has no stable release.
type CrateInfo struct {
	Name          string    `json:"name"`
	LatestVersion string    `json:"latest_version"`
	MaxVersion    string    `json:"max_version"`
	Description   string    `json:"description,omitempty"`
	Repository    string    `json:"repository,omitempty"`
	HomePage      string    `json:"homepage,omitempty"`
	Downloads     int       `json:"downloads"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Client provides access to the crates.io registry API and its static
// download host.
//
// All methods are safe for concurrent use by multiple goroutines.
//
// Note: crates.io requires a User-Agent header; this client sets one automatically.
type Client struct {
	*integrations.Client
	baseURL     string
	downloadURL string
}

// NewClient creates a crates.io client with the given cache backend.
// Metadata responses are cached for cacheTTL.
func NewClient(backend cache.Cache, cacheTTL time.Duration) *Client {
	return &Client{
		Client:      integrations.NewClient(backend, "crates", cacheTTL, defaultHeaders()),
		baseURL:     apiURL,
		downloadURL: downloadURL,
	}
}

// WithEndpoints returns a copy of c that talks to a registry mirror: apiURL
// replaces https://crates.io/api/v1 and downloadURL the static download host.
func (c *Client) WithEndpoints(apiURL, downloadURL string) *Client {
	cp := *c
	cp.baseURL = strings.TrimSuffix(apiURL, "/")
	cp.downloadURL = strings.TrimSuffix(downloadURL, "/")
	return &cp
}

func defaultHeaders() map[string]string {
	return map[string]string{
		"User-Agent": fmt.Sprintf("crateindex/%s (https://github.com/matzehuels/crateindex)", buildinfo.Read().Version),
	}
}

// FetchCrate retrieves metadata for a crate.
//
// If refresh is true, the cache is bypassed and a fresh API call is made.
//
// Returns:
//   - [integrations.ErrNotFound] if the crate doesn't exist
//   - [integrations.ErrNetwork] for HTTP failures (timeout, 5xx, etc.)
func (c *Client) FetchCrate(ctx context.Context, crate string, refresh bool) (*CrateInfo, error) {
	var info CrateInfo
	err := c.Cached(ctx, crate, refresh, &info, func() error {
		return c.fetch(ctx, crate, &info)
	})
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// LatestVersion returns the version a bare crate name resolves to.
func (c *Client) LatestVersion(ctx context.Context, crate string, refresh bool) (string, error) {
	info, err := c.FetchCrate(ctx, crate, refresh)
	if err != nil {
		return "", err
	}
	if info.LatestVersion == "" {
		return "", fmt.Errorf("%w: crate %s has no published version", integrations.ErrNotFound, crate)
	}
	return info.LatestVersion, nil
}

// DownloadURL returns the archive location for one release.
func (c *Client) DownloadURL(crate, version string) string {
	name := url.PathEscape(crate)
	return fmt.Sprintf("%s/%s/%s-%s.crate", c.downloadURL, name, name, url.PathEscape(version))
}

// Download writes the .crate archive of one release to path, replacing any
// existing file. Transient failures are retried from scratch.
func (c *Client) Download(ctx context.Context, crate, version, path string) error {
	src := c.DownloadURL(crate, version)
	err := httputil.RetryWithBackoff(ctx, func() error {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		_, err = c.Client.Download(ctx, src, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	})
	if err != nil {
		os.Remove(path)
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: crate %s version %s", err, crate, version)
		}
		return err
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, crate string, info *CrateInfo) error {
	var data crateResponse
	if err := c.Get(ctx, fmt.Sprintf("%s/crates/%s", c.baseURL, url.PathEscape(crate)), &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: crate %s", err, crate)
		}
		return err
	}

	latest := data.Crate.MaxStableVersion
	if latest == "" {
		latest = data.Crate.MaxVersion
	}
	*info = CrateInfo{
		Name:          data.Crate.Name,
		LatestVersion: latest,
		MaxVersion:    data.Crate.MaxVersion,
		Description:   data.Crate.Description,
		Repository:    integrations.NormalizeRepoURL(data.Crate.Repository),
		HomePage:      data.Crate.HomePage,
		Downloads:     data.Crate.Downloads,
		UpdatedAt:     data.Crate.UpdatedAt,
	}
	return nil
}

type crateResponse struct {
	Crate struct {
		Name             string    `json:"name"`
		MaxVersion       string    `json:"max_version"`
		MaxStableVersion string    `json:"max_stable_version"`
		Description      string    `json:"description"`
		Repository       string    `json:"repository"`
		HomePage         string    `json:"homepage"`
		Downloads        int       `json:"downloads"`
		UpdatedAt        time.Time `json:"updated_at"`
	} `json:"crate"`
}
