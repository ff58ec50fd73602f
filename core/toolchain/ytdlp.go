package toolchain

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// rawOutputPrefix is the filename prefix the downloader writes its output
// under; the extension depends on the source container.
const rawOutputPrefix = "raw."

// Downloader wraps the yt-dlp binary.
type Downloader struct {
	runner     Runner
	path       string
	cookiesB64 string
}

// NewDownloader creates a Downloader. cookiesB64 is an optional
// base64-encoded cookie jar; when set it is written to a scoped temp file
// per run and never logged or persisted.
func NewDownloader(runner Runner, path, cookiesB64 string) *Downloader {
	return &Downloader{runner: runner, path: path, cookiesB64: cookiesB64}
}

// Download fetches the best audio for the URL into dir as raw.<ext> and
// returns the title the downloader printed.
func (d *Downloader) Download(ctx context.Context, sourceURL, dir string) (string, error) {
	args := []string{
		"--no-playlist",
		"-f", "ba/b",
		"--print", "title",
		"--no-simulate",
		"-o", filepath.Join(dir, rawOutputPrefix+"%(ext)s"),
	}

	if d.cookiesB64 != "" {
		cookies, err := base64.StdEncoding.DecodeString(d.cookiesB64)
		if err != nil {
			return "", fmt.Errorf("failed to decode downloader cookies: %w", err)
		}
		cookiesPath := filepath.Join(dir, "cookies.txt")
		if err := os.WriteFile(cookiesPath, cookies, 0600); err != nil {
			return "", fmt.Errorf("failed to write cookies file: %w", err)
		}
		args = append(args, "--cookies", cookiesPath)
	}

	args = append(args, sourceURL)

	out, err := d.runner.Run(ctx, d.path, args, dir)
	if err != nil {
		return "", err
	}

	title := strings.TrimSpace(strings.SplitN(out.Stdout, "\n", 2)[0])
	return title, nil
}

// LocateOutput returns the first file in dir matching the downloader's
// output prefix, or "" when none was produced.
func LocateOutput(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read download dir: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), rawOutputPrefix) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", nil
}
