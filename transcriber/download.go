package transcriber

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"murmur/log"
)

// Progress is told how far a download has got. Total is -1 when the
// server did not send a length.
type Progress func(read, total int64)

type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	lastPct  int
	callback Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if p.callback != nil {
		p.callback(p.read, p.total)
	}
	if p.total > 0 {
		pct := int(p.read * 100 / p.total)
		if pct/10 > p.lastPct/10 {
			log.Infof("model download %d%% (%d / %d KB)", pct, p.read/1024, p.total/1024)
		}
		p.lastPct = pct
	}
	return n, err
}

// download fetches url into a temp file inside dir and returns its path.
// The caller owns the file. A non-empty wantSum is checked against the
// SHA-256 of the body.
func download(ctx context.Context, client *http.Client, url, dir, wantSum string, progress Progress) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create model dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s: %s", url, resp.Status)
	}

	// Same directory as the destination so the final rename is atomic.
	tmpFile, err := os.CreateTemp(dir, ".murmur-download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	total := resp.ContentLength
	if total <= 0 {
		total = -1
	}
	hasher := sha256.New()
	src := &progressReader{r: resp.Body, total: total, callback: progress}
	n, err := io.Copy(io.MultiWriter(tmpFile, hasher), src)
	closeErr := tmpFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("write download: %w", err)
	}

	if wantSum != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(got, wantSum) {
			os.Remove(tmpPath)
			return "", fmt.Errorf("checksum mismatch: got %s, want %s", got[:12], strings.ToLower(wantSum))
		}
	}

	log.ModelDownload(url, n, time.Since(start))
	return tmpPath, nil
}

// archiveKind reports how a model URL is packaged.
func archiveKind(url string) string {
	name := strings.ToLower(filepath.Base(strings.SplitN(url, "?", 2)[0]))
	switch {
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return "tar.gz"
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tzst"):
		return "tar.zst"
	case strings.HasSuffix(name, ".tar.bz2"), strings.HasSuffix(name, ".tbz2"):
		return "tar.bz2"
	case strings.HasSuffix(name, ".tar"):
		return "tar"
	}
	return ""
}
