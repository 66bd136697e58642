package feed

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"resty.dev/v3"
)

// Source provides repeatable read access to the feed document. The reader
// opens it twice per run (category pass, then offer pass), so a remote feed
// is downloaded once into a temp file and both passes stream from disk.
type Source struct {
	path       string
	httpClient *resty.Client
	localPath  string
}

func NewSource(path string, timeout time.Duration, maxRetries int) *Source {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(maxRetries).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second)

	return &Source{
		path:       path,
		httpClient: client,
	}
}

// Open returns a fresh reader positioned at the start of the feed.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	if !isRemote(s.path) {
		return os.Open(s.path)
	}

	if s.localPath == "" {
		if err := s.download(ctx); err != nil {
			return nil, err
		}
	}
	return os.Open(s.localPath)
}

func (s *Source) download(ctx context.Context) error {
	log.Infof("Downloading feed from %s", s.path)

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(s.path)
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return fmt.Errorf("feed fetch HTTP error: %d %s", resp.StatusCode(), resp.Status())
	}

	tmp, err := os.CreateTemp("", "feed-*.xml")
	if err != nil {
		return fmt.Errorf("failed to create temp feed file: %w", err)
	}

	// stream straight to disk, the feed may not fit in memory
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write temp feed file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp feed file: %w", err)
	}

	s.localPath = tmp.Name()
	log.Infof("Feed downloaded to %s", s.localPath)
	return nil
}

// Close removes any downloaded copy. Idempotent.
func (s *Source) Close() error {
	if s.localPath == "" {
		return nil
	}
	path := s.localPath
	s.localPath = ""
	return os.Remove(path)
}

func isRemote(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}
