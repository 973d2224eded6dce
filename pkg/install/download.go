package install

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/modelrt/corerun/pkg/manifest"
	"github.com/modelrt/corerun/pkg/modelerror"
)

// Downloader fetches and atomically installs individual artifacts. A single
// Downloader may back many concurrent Pipeline.Install calls; its
// singleflight.Group deduplicates concurrent fetches of the identical
// artifact (same URL), which happens whenever two model items share a
// tokenizer or config file.
type Downloader struct {
	fetch FetchFunc
	sf    singleflight.Group
}

// NewDownloader constructs a Downloader using fetch to open artifact byte streams.
func NewDownloader(fetch FetchFunc) *Downloader {
	return &Downloader{fetch: fetch}
}

// artifactResult is the shape cached/shared by the singleflight group: since
// two callers racing to fetch the same artifact may be writing into two
// different version directories, the singleflight function fetches once
// into a shared temp location and each caller copies from there into its
// own destination.
type artifactResult struct {
	tmpPath string
	sha256  string
	size    int64
}

// fetchOnce downloads url's content into a temp file shared across
// concurrent callers keyed by url, verifying nothing itself — verification
// is the caller's responsibility since expected hashes are per-artifact.
func (d *Downloader) fetchOnce(ctx context.Context, url string, onBytes func(n int64)) (artifactResult, error) {
	v, err, _ := d.sf.Do(url, func() (any, error) {
		body, _, err := d.fetch(ctx, url)
		if err != nil {
			return nil, modelerror.New(modelerror.DownloadFailed, "fetch failed",
				modelerror.WithDetail("url", url), modelerror.WithCause(err))
		}
		defer body.Close()

		tmpFile, err := os.CreateTemp("", "modelrt-fetch-*")
		if err != nil {
			return nil, err
		}
		defer tmpFile.Close()

		digester := digest.Canonical.Digester()
		counting := &countingReader{r: io.TeeReader(body, digester.Hash()), onRead: onBytes}
		size, err := io.Copy(tmpFile, counting)
		if err != nil {
			os.Remove(tmpFile.Name())
			return nil, modelerror.New(modelerror.DownloadFailed, "read failed mid-stream",
				modelerror.WithDetail("url", url), modelerror.WithCause(err))
		}

		return artifactResult{
			tmpPath: tmpFile.Name(),
			sha256:  digester.Digest().Encoded(),
			size:    size,
		}, nil
	})
	if err != nil {
		return artifactResult{}, err
	}
	return v.(artifactResult), nil
}

type countingReader struct {
	r      io.Reader
	onRead func(n int64)
	total  int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.total += int64(n)
		if c.onRead != nil {
			c.onRead(int64(n))
		}
	}
	return n, err
}

// installArtifact fetches a to destDir, verifies its sha256 against the
// manifest value, and atomically renames it into place. On hash mismatch
// the tmp file is deleted and a MODEL_VERIFY_FAILED error is returned; the
// next attempt always starts the download over, never resuming a corrupt
// file.
func installArtifact(ctx context.Context, dl *Downloader, baseURL, destDir string, a manifest.Artifact, onBytes func(n int64)) error {
	url := artifactURL(baseURL, a.Path)

	result, err := dl.fetchOnce(ctx, url, onBytes)
	if err != nil {
		return err
	}

	if result.sha256 != a.SHA256 {
		os.Remove(result.tmpPath)
		return modelerror.New(modelerror.ModelVerifyFailed, "artifact hash mismatch",
			modelerror.WithDetail("artifact", a.Name),
			modelerror.WithDetail("expectedSha256", a.SHA256),
			modelerror.WithDetail("actualSha256", result.sha256),
		)
	}

	finalPath := filepath.Join(destDir, a.Path)
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		os.Remove(result.tmpPath)
		return err
	}

	// Stage the verified content as a sibling tmp file within destDir so the
	// final rename is guaranteed to be same-filesystem and atomic, then
	// remove the original (possibly cross-filesystem) temp file.
	siblingTmp, err := sameFSCopy(result.tmpPath, finalPath)
	os.Remove(result.tmpPath)
	if err != nil {
		return err
	}

	if err := os.Rename(siblingTmp, finalPath); err != nil {
		os.Remove(siblingTmp)
		return err
	}
	return nil
}

// sameFSCopy copies src into a sibling *.tmp.{rand} file next to dst so a
// later os.Rename onto dst is a same-filesystem atomic rename.
func sameFSCopy(src, dst string) (string, error) {
	suffix, err := randomSuffix()
	if err != nil {
		return "", err
	}
	tmpPath := dst + ".tmp." + suffix

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

func randomSuffix() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func artifactURL(baseURL, relPath string) string {
	return fmt.Sprintf("%s/%s", trimTrailingSlash(baseURL), relPath)
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
