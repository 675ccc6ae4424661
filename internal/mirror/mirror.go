// Package mirror implements the mirror stage (spec.md §4.3): download a
// source from Apple's CDN, verify it by hash or size, and upload it
// create-only into the mirror namespace. internal/mirror/ota.go and
// ipsw.go wire this core against the two metadata stores as
// pipeline.Stage implementations; this file holds the domain-agnostic
// download/verify/upload mechanics.
package mirror

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cheggaaa/pb"
	"github.com/getsentry/symx/internal/artifact"
	"github.com/getsentry/symx/internal/objstore"
	"github.com/pkg/errors"
)

// DefaultRetries is the default number of fresh-connection download
// attempts (spec.md §4.3 step 3).
const DefaultRetries = 5

// Source is the domain-agnostic view of one mirror candidate: an OTA
// artifact or a single IPSW source.
type Source struct {
	Domain   artifact.Domain
	Platform string
	Version  string
	Build    string
	FileName string
	URL      string
	// SHA1 is the expected hex-encoded content hash, empty if unknown.
	SHA1 string
	// Size is the expected content length in bytes, 0 if unknown.
	Size int64
}

// Key computes the mirror blob's object store key (spec.md §6,
// bit-exact): mirror/{domain}/{platform}/{version}/{build}/{file_name}.
func (s Source) Key() string {
	return s.Domain.MirrorPrefix() + "/" + s.Platform + "/" + s.Version + "/" + s.Build + "/" + s.FileName
}

// Outcome is the result of attempting to mirror one source.
type Outcome int

const (
	// Mirrored indicates the blob is now present at Source.Key() (either
	// this call uploaded it, or an earlier worker already had).
	Mirrored Outcome = iota
	// Failed indicates a verification or upload mismatch; the caller
	// should mark the source MIRRORING_FAILED.
	Failed
)

// Downloader fetches a URL to a local path with bounded retry, each
// attempt a fresh connection (spec.md §4.3 step 3).
type Downloader struct {
	Client  *http.Client
	Retries int
	Logger  *log.Logger
	// ShowProgress renders a cheggaaa/pb progress bar while downloading,
	// for interactive -v runs.
	ShowProgress bool
}

// Fetch downloads url to destPath, retrying up to Retries times.
func (d *Downloader) Fetch(ctx context.Context, url, destPath string) error {
	retries := d.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	var lastErr error
	for attempt := 1; attempt <= retries; attempt++ {
		if err := d.fetchOnce(ctx, client, url, destPath); err != nil {
			lastErr = err
			d.logf("download attempt %d/%d for %s failed: %v", attempt, retries, url, err)
			continue
		}
		return nil
	}
	return errors.Wrapf(lastErr, "downloading %s after %d attempts", url, retries)
}

func (d *Downloader) fetchOnce(ctx context.Context, client *http.Client, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Close = true
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "issuing request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return errors.Wrap(err, "creating scratch file")
	}
	defer f.Close()
	var w io.Writer = f
	if d.ShowProgress {
		bar := pb.New64(resp.ContentLength)
		bar.SetUnits(pb.U_BYTES)
		bar.Start()
		defer bar.Finish()
		w = io.MultiWriter(f, bar)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return errors.Wrap(err, "streaming response body")
	}
	return nil
}

func (d *Downloader) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

// Mirrorer performs the download/verify/upload sequence of spec.md §4.3
// steps 3-6 for one Source.
type Mirrorer struct {
	Store      objstore.Store
	Downloader *Downloader
	ScratchDir string
}

// Mirror downloads, verifies, and uploads src, returning the outcome and
// (on success) the mirror key to record as download_path/mirror_path.
func (m *Mirrorer) Mirror(ctx context.Context, src Source) (key string, outcome Outcome, err error) {
	scratch := m.ScratchDir
	if scratch == "" {
		scratch = os.TempDir()
	}
	localPath := filepath.Join(scratch, time.Now().UTC().Format("20060102T150405.000000000")+"-"+src.FileName)
	defer os.Remove(localPath)

	if err := m.Downloader.Fetch(ctx, src.URL, localPath); err != nil {
		return "", Failed, nil // download failure after retries: caller marks MIRRORING_FAILED, doesn't abort the run.
	}

	if ok, verr := verify(localPath, src); verr != nil {
		return "", Failed, errors.Wrap(verr, "verifying downloaded file")
	} else if !ok {
		return "", Failed, nil
	}

	key = src.Key()
	localMD5, err := md5File(localPath)
	if err != nil {
		return "", Failed, errors.Wrap(err, "hashing downloaded file")
	}

	uploadErr := uploadCreateOnly(ctx, m.Store, key, localPath)
	if uploadErr == nil {
		return key, Mirrored, nil
	}
	if !errors.Is(uploadErr, objstore.ErrPreconditionFailed) {
		return "", Failed, errors.Wrap(uploadErr, "uploading mirror blob")
	}
	// Blob already exists (another worker won the race); compare MD5s
	// rather than treat this as a failure (spec.md §4.3 step 6).
	attrs, err := m.Store.Attrs(ctx, key)
	if err != nil {
		return "", Failed, errors.Wrap(err, "reading existing mirror blob attrs")
	}
	if !bytes.Equal(attrs.MD5, localMD5) {
		return "", Failed, nil
	}
	return key, Mirrored, nil
}

// verify checks the downloaded file against whichever of SHA1/Size the
// source record carries (spec.md §4.3 step 4); with neither known, the
// file is accepted unverified.
func verify(path string, src Source) (ok bool, err error) {
	if src.SHA1 != "" {
		sum, err := sha1File(path)
		if err != nil {
			return false, err
		}
		return hex.EncodeToString(sum) == src.SHA1, nil
	}
	if src.Size > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return false, err
		}
		return info.Size() == src.Size, nil
	}
	return true, nil
}

func sha1File(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha1.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func md5File(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func uploadCreateOnly(ctx context.Context, store objstore.Store, key, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return errors.Wrap(err, "reading file for upload")
	}
	return store.WriteIfGenerationMatch(ctx, key, data, 0)
}
