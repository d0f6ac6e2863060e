// Package archive unpacks registry distribution archives: gzip-compressed
// tarballs whose single top-level directory is named "<name>-<version>/".
package archive

import (
	"archive/tar"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/matzehuels/crateindex/pkg/errors"
)

// MaxEntrySize bounds the size of a single extracted file.
const MaxEntrySize = 256 << 20

// Stats describes one extraction.
type Stats struct {
	Files   int   // regular files written
	Bytes   int64 // total bytes written
	Skipped int   // entries outside the prefix, unsafe paths and links
}

// Extract unpacks the tarball read from r into dest, stripping the leading
// "prefix/" directory. Entries outside the prefix, absolute names, names
// containing ".." and links are skipped. Malformed input yields an
// ARCHIVE_FORMAT error; dest may then hold a partial tree.
func Extract(r io.Reader, dest, prefix string) (*Stats, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeArchiveFormat, err, "open gzip stream")
	}
	defer zr.Close()

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create %s", dest)
	}

	stats := &Stats{}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return stats, nil
		}
		if err != nil {
			return stats, errors.Wrap(errors.ErrCodeArchiveFormat, err, "read tar entry")
		}

		rel, ok := stripPrefix(hdr.Name, prefix)
		if !ok {
			stats.Skipped++
			continue
		}
		if rel == "" {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(rel))

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return stats, errors.Wrap(errors.ErrCodeInternal, err, "create %s", rel)
			}
		case tar.TypeReg, tar.TypeRegA:
			if hdr.Size > MaxEntrySize {
				return stats, errors.New(errors.ErrCodeArchiveFormat, "entry %s is %d bytes, limit %d", rel, hdr.Size, MaxEntrySize)
			}
			n, err := writeFile(target, tr, hdr.FileInfo().Mode())
			if err != nil {
				return stats, err
			}
			stats.Files++
			stats.Bytes += n
		default:
			// symlinks, hard links, devices and the like
			stats.Skipped++
		}
	}
}

// ExtractFile is [Extract] over the archive stored at src.
func ExtractFile(src, dest, prefix string) (*Stats, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeNotFound, err, "open archive %s", src)
	}
	defer f.Close()
	return Extract(f, dest, prefix)
}

// stripPrefix returns the slash-separated path of name below prefix, and
// false when the entry lies outside it or is unsafe.
func stripPrefix(name, prefix string) (string, bool) {
	name = strings.TrimPrefix(name, "./")
	if path.IsAbs(name) || strings.Contains(name, `\`) {
		return "", false
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", false
		}
	}
	if name == prefix || name == prefix+"/" {
		return "", true
	}
	rest, ok := strings.CutPrefix(name, prefix+"/")
	if !ok {
		return "", false
	}
	return path.Clean(rest), true
}

func writeFile(target string, r io.Reader, mode os.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "create %s", filepath.Dir(target))
	}
	perm := os.FileMode(0o644)
	if mode&0o111 != 0 {
		perm = 0o755
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeInternal, err, "create %s", target)
	}
	n, err := io.Copy(f, io.LimitReader(r, MaxEntrySize))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, errors.Wrap(errors.ErrCodeArchiveFormat, err, "write %s", target)
	}
	return n, nil
}
