package mnist

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Options controls Fetch.
type Options struct {
	Dir        string       // Cache directory, created if missing.
	Mirrors    []string     // Base URLs tried in order.
	Client     *http.Client // Defaults to http.DefaultClient.
	SkipVerify bool         // Accept files regardless of their digest.
}

// Fetch makes sure both splits are available in opts.Dir.
//
// A split whose IDX files are already extracted in opts.Dir is left alone.
// Cached archives with the expected digest are kept. Missing or corrupt files
// are downloaded from the first mirror that serves a valid copy. Downloads
// land in a temporary file and are renamed into place only after the
// digest matched, so an interrupted run never leaves a truncated archive
// behind.
func Fetch(ctx context.Context, opts Options) error {
	if opts.Dir == "" {
		return errors.New("mnist: cache directory not set")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}

	for _, split := range []Split{Train, Test} {
		if extractedPresent(opts.Dir, split) {
			log.Printf("mnist: split=%s already extracted, skipping download", split)
			continue
		}
		img, lbl := split.archives()
		for _, f := range []file{img, lbl} {
			if err := fetchFile(ctx, client, opts, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// extractedPresent reports whether both IDX files of split exist without
// compression, which Load accepts in place of the archives.
func extractedPresent(dir string, split Split) bool {
	img, lbl := split.archives()
	return exists(filepath.Join(dir, img.extracted())) && exists(filepath.Join(dir, lbl.extracted()))
}

func fetchFile(ctx context.Context, client *http.Client, opts Options, f file) error {
	path := filepath.Join(opts.Dir, f.name)
	if exists(path) {
		err := verify(path, f, opts.SkipVerify)
		if err == nil {
			return nil
		}
		log.Printf("mnist: cached file=%s invalid, refetching: %v", f.name, err)
	}

	if len(opts.Mirrors) == 0 {
		return fmt.Errorf("%w: %s missing and no mirrors configured", ErrNotFound, f.name)
	}

	var lastErr error
	for _, mirror := range opts.Mirrors {
		if err := ctx.Err(); err != nil {
			return err
		}
		url := strings.TrimSuffix(mirror, "/") + "/" + f.name
		log.Printf("mnist: downloading url=%s", url)
		lastErr = download(ctx, client, url, path, f, opts.SkipVerify)
		if lastErr == nil {
			return nil
		}
		log.Printf("mnist: mirror failed url=%s err=%v", url, lastErr)
	}
	return fmt.Errorf("fetch %s: %w", f.name, lastErr)
}

func download(ctx context.Context, client *http.Client, url, dst string, f file, skipVerify bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), f.name+".part-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, h), resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", f.name, err)
	}

	if !skipVerify {
		if got := hex.EncodeToString(h.Sum(nil)); got != f.sha256 {
			return fmt.Errorf("%w: %s has sha256 %s", ErrChecksum, f.name, got)
		}
	}
	return os.Rename(tmp.Name(), dst)
}

func verify(path string, f file, skip bool) error {
	if skip {
		return nil
	}
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	h := sha256.New()
	if _, err := io.Copy(h, in); err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != f.sha256 {
		return fmt.Errorf("%w: %s has sha256 %s", ErrChecksum, f.name, got)
	}
	return nil
}
