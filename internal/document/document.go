package document

import (
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// TimestampLayout renders modification times as ISO-8601 seconds without an offset.
const TimestampLayout = "2006-01-02T15:04:05"

// Document is the canonical index entry for one page.
type Document struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Preamble   string `json:"preamble"`
	TargetLink string `json:"targetlink"`
	Metadata   string `json:"metadata"`

	Modified string `json:"-"`
	Type     string `json:"-"`
}

// Metadata is the page attribute set serialized into Document.Metadata.
// Field order is fixed so repeated builds produce byte-identical payloads.
type Metadata struct {
	UID         int64  `json:"uid"`
	PID         int64  `json:"pid"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Doktype     int    `json:"doktype"`
	Abstract    string `json:"abstract"`
	Description string `json:"description"`
	NoSearch    bool   `json:"no_search"`
	Tstamp      int64  `json:"tstamp"`
	Modified    string `json:"modified"`
	Type        string `json:"type"`
}

// TypeMap maps page doktypes to the type label stored in the index. Only
// doktypes present in the map are indexable.
type TypeMap map[int]string

func (m TypeMap) Label(doktype int) (string, bool) {
	label, ok := m[doktype]
	return label, ok
}

// Doktypes returns the indexable doktypes in ascending order.
func (m TypeMap) Doktypes() []int {
	doktypes := make([]int, 0, len(m))
	for doktype := range m {
		doktypes = append(doktypes, doktype)
	}
	sort.Ints(doktypes)
	return doktypes
}

// StripTags returns the text content of an HTML fragment.
func StripTags(body string) string {
	if !strings.ContainsAny(body, "<&") {
		return body
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	return doc.Text()
}

func formatTimestamp(ts int64, loc *time.Location) string {
	return time.Unix(ts, 0).In(loc).Format(TimestampLayout)
}
