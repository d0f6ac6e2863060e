// Package registry resolves package versions and materializes their
// sources on local disk.
package registry

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/crateindex/pkg/archive"
	"github.com/matzehuels/crateindex/pkg/catalog"
	"github.com/matzehuels/crateindex/pkg/errors"
	"github.com/matzehuels/crateindex/pkg/integrations"
	"github.com/matzehuels/crateindex/pkg/integrations/crates"
)

// Resolver is the boundary between the crawler and a package registry.
//
// ResolveLatest maps a bare name to the version a request without an
// explicit version should use. Fetch returns a local directory holding the
// unpacked sources of name@version; calling it again for a package that is
// already present returns the existing directory.
type Resolver interface {
	ResolveLatest(ctx context.Context, name string) (string, error)
	Fetch(ctx context.Context, name, version string) (string, error)
}

// Describer is implemented by resolvers that can report registry metadata
// for a crate beyond its latest version.
type Describer interface {
	Describe(ctx context.Context, name string) (*crates.CrateInfo, error)
}

// Crates resolves against crates.io and unpacks archives below Dir, one
// directory per package key.
type Crates struct {
	client  *crates.Client
	dir     string
	refresh bool
	logger  *log.Logger
}

// CratesOptions configures [NewCrates].
type CratesOptions struct {
	// Refresh bypasses the metadata cache for version lookups.
	Refresh bool
	Logger  *log.Logger
}

// NewCrates creates a crates.io resolver that stores sources under dir.
func NewCrates(client *crates.Client, dir string, opts CratesOptions) *Crates {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Crates{client: client, dir: dir, refresh: opts.Refresh, logger: opts.Logger}
}

// Dir returns the directory unpacked packages live in.
func (c *Crates) Dir() string { return c.dir }

// Path returns where the sources of key are, or would be, unpacked.
func (c *Crates) Path(key string) string { return filepath.Join(c.dir, key) }

func (c *Crates) ResolveLatest(ctx context.Context, name string) (string, error) {
	info, err := c.Describe(ctx, name)
	if err != nil {
		return "", err
	}
	return info.LatestVersion, nil
}

// Describe returns the crates.io metadata of name. The latest version is
// always set.
func (c *Crates) Describe(ctx context.Context, name string) (*crates.CrateInfo, error) {
	if err := errors.ValidateCrateName(name); err != nil {
		return nil, err
	}
	info, err := c.client.FetchCrate(ctx, name, c.refresh)
	if err != nil {
		return nil, classify(err, "resolve %s", name)
	}
	if info.LatestVersion == "" {
		return nil, errors.New(errors.ErrCodePackageNotFound, "crate %s has no published version", name)
	}
	return info, nil
}

func (c *Crates) Fetch(ctx context.Context, name, version string) (string, error) {
	if err := errors.ValidateCrateName(name); err != nil {
		return "", err
	}
	if err := errors.ValidateVersion(version); err != nil {
		return "", err
	}
	key := catalog.Key(name, version)
	dest := c.Path(key)
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		c.logger.Debug("sources already present", "package", key, "path", dest)
		return dest, nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create %s", c.dir)
	}

	tmpFile, err := os.CreateTemp(c.dir, ".download-*.crate")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create temp file")
	}
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	c.logger.Debug("downloading", "package", key, "url", c.client.DownloadURL(name, version))
	if err := c.client.Download(ctx, name, version, tmpFile.Name()); err != nil {
		return "", classify(err, "download %s", key)
	}

	staging, err := os.MkdirTemp(c.dir, ".unpack-*")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "create staging dir")
	}
	stats, err := archive.ExtractFile(tmpFile.Name(), staging, key)
	if err != nil {
		os.RemoveAll(staging)
		return "", err
	}
	if err := os.Rename(staging, dest); err != nil {
		os.RemoveAll(staging)
		// another fetch of the same key finished first
		if info, statErr := os.Stat(dest); statErr == nil && info.IsDir() {
			return dest, nil
		}
		return "", errors.Wrap(errors.ErrCodeInternal, err, "move sources into %s", dest)
	}
	c.logger.Debug("unpacked", "package", key, "files", stats.Files, "bytes", stats.Bytes, "skipped", stats.Skipped)
	return dest, nil
}

// Remove deletes the unpacked sources of key. Missing sources are not an
// error.
func (c *Crates) Remove(key string) error {
	if _, _, ok := catalog.SplitKey(key); !ok {
		return errors.New(errors.ErrCodeInvalidPackage, "invalid package key %q", key)
	}
	return os.RemoveAll(c.Path(key))
}

func classify(err error, format string, args ...any) error {
	switch {
	case stderrors.Is(err, integrations.ErrNotFound):
		return errors.Wrap(errors.ErrCodePackageNotFound, err, format, args...)
	case stderrors.Is(err, integrations.ErrNetwork):
		return errors.Wrap(errors.ErrCodeNetwork, err, format, args...)
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return err
	}
	return errors.Wrap(errors.ErrCodeNetwork, err, format, args...)
}

var _ Resolver = (*Crates)(nil)
