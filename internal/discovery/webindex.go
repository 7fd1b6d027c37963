package discovery

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/mborgeson/dashboard-interface-project-sub000/internal"
)

// WebIndexSource scrapes an HTTP directory index for spreadsheet links
// and downloads anything not already sitting in the inbox.
type WebIndexSource struct {
	IndexURL string
	InboxDir string
	Client   *http.Client
}

func (s WebIndexSource) Name() string { return "web-index" }

func (s WebIndexSource) Discover(ctx context.Context) ([]internal.FileCandidate, error) {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	base, err := url.Parse(s.IndexURL)
	if err != nil {
		return nil, fmt.Errorf("parse index url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.IndexURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("index fetch: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, err
	}

	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if IsSpreadsheet(abs.Path) {
			links = append(links, abs)
		}
	})

	var out []internal.FileCandidate
	for _, link := range links {
		filename := path.Base(link.Path)
		localPath, err := s.download(ctx, client, link, filename)
		if err != nil {
			// One bad link never sinks the crawl.
			continue
		}

		info, err := os.Stat(localPath)
		if err != nil {
			continue
		}
		candidate := internal.FileCandidate{
			Name:       path.Base(localPath),
			Path:       localPath,
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		}
		if hash, err := HashFile(localPath); err == nil {
			candidate.ContentHash = hash
		}
		out = append(out, candidate)
	}
	return out, nil
}

func (s WebIndexSource) download(ctx context.Context, client *http.Client, link *url.URL, filename string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", filename, resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return SaveToInbox(s.InboxDir, filename, content)
}
