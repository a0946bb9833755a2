// Package sitemap writes a sitemap of the pages a reindex run put into the
// search index.
package sitemap

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/govdata/cms-search-sync/internal/storage"
)

const (
	maxSitemapURLs = 50000
	sitemapNS      = "http://www.sitemaps.org/schemas/sitemap/0.9"
	dir            = "sitemaps"
	IndexFile      = dir + "/sitemap-index.xml"
)

// Entry is one indexed page. Path is the page slug; Modified is the
// document's modification timestamp.
type Entry struct {
	Path     string
	Modified string
}

type sitemapURL struct {
	XMLName xml.Name `xml:"url"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name          `xml:"sitemapindex"`
	XMLNS    string            `xml:"xmlns,attr"`
	Sitemaps []sitemapIndexRef `xml:"sitemap"`
}

type sitemapIndexRef struct {
	XMLName xml.Name `xml:"sitemap"`
	Loc     string   `xml:"loc"`
	LastMod string   `xml:"lastmod,omitempty"`
}

// Generator writes page sitemaps plus a sitemap index below Storage.
type Generator struct {
	SiteURL string // e.g. "https://www.govdata.de"
	Storage *storage.FSStorage
	// Now defaults to time.Now.
	Now func() time.Time
}

// Generate writes sitemaps/sitemap-pages[-N].xml and sitemaps/sitemap-index.xml.
func (g *Generator) Generate(ctx context.Context, entries []Entry) error {
	if g.Storage == nil {
		return errors.New("sitemap generator has no storage")
	}
	siteURL := strings.TrimRight(g.SiteURL, "/")
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	today := now().UTC().Format("2006-01-02")

	urls := make([]sitemapURL, 0, len(entries))
	for _, e := range entries {
		urls = append(urls, sitemapURL{Loc: siteURL + pagePath(e.Path), LastMod: lastMod(e.Modified)})
	}

	var refs []sitemapIndexRef
	chunks := splitURLs(urls, maxSitemapURLs)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := "sitemap-pages"
		if len(chunks) > 1 {
			name = fmt.Sprintf("%s-%d", name, i+1)
		}
		name += ".xml"
		if err := g.Storage.WriteXML(ctx, dir+"/"+name, sitemapURLSet{XMLNS: sitemapNS, URLs: chunk}); err != nil {
			return fmt.Errorf("write sitemap %s: %w", name, err)
		}
		refs = append(refs, sitemapIndexRef{Loc: siteURL + "/" + dir + "/" + name, LastMod: today})
	}

	if err := g.Storage.WriteXML(ctx, IndexFile, sitemapIndex{XMLNS: sitemapNS, Sitemaps: refs}); err != nil {
		return fmt.Errorf("write sitemap index: %w", err)
	}
	return nil
}

func pagePath(slug string) string {
	if !strings.HasPrefix(slug, "/") {
		return "/" + slug
	}
	return slug
}

// lastMod keeps the date part of an ISO-8601 timestamp.
func lastMod(modified string) string {
	if len(modified) < len("2006-01-02") {
		return ""
	}
	return modified[:len("2006-01-02")]
}

func splitURLs(urls []sitemapURL, maxPerFile int) [][]sitemapURL {
	if len(urls) <= maxPerFile {
		return [][]sitemapURL{urls}
	}
	var chunks [][]sitemapURL
	for i := 0; i < len(urls); i += maxPerFile {
		end := min(i+maxPerFile, len(urls))
		chunks = append(chunks, urls[i:end])
	}
	return chunks
}
