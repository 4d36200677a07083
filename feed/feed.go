// Package feed implements the RSS collaborator of spec §6: polls one or
// more feed URLs on an interval, dedupes by (feed, entry-id) against a
// persisted FeedCursor, and inserts a Download per new entry after it
// passes through the policy hook. Grounded on the source's RSSHandler,
// generalised from feedparser's single-threaded scheduler callback to a
// per-feed polling loop over github.com/mmcdole/gofeed.
package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/mmcdole/gofeed"

	"github.com/seedboxsh/rssbox/hooks"
	"github.com/seedboxsh/rssbox/model"
	"github.com/seedboxsh/rssbox/store"
)

// Poller watches a fixed set of feed URLs and inserts new entries as
// Downloads, one FeedCursor document per URL.
type Poller struct {
	s        store.Store
	h        hooks.Hooks
	parser   *gofeed.Parser
	feedURLs []string
	interval time.Duration
}

func New(s store.Store, h hooks.Hooks, feedURLs []string, interval time.Duration) *Poller {
	return &Poller{
		s:        s,
		h:        h,
		parser:   gofeed.NewParser(),
		feedURLs: feedURLs,
		interval: interval,
	}
}

// Run polls every feed once immediately, then on Poller's interval, until
// ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.pollAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *Poller) pollAll(ctx context.Context) {
	for _, url := range p.feedURLs {
		if err := p.poll(ctx, url); err != nil {
			glog.Warningf("feed: polling %s: %v", url, err)
		}
	}
}

// poll fetches one feed, finds entries newer than the persisted cursor, and
// inserts a Download for each that survives hook.OnNewEntry - spec §6's
// "dedupes by (feed, entry-id); emits new entries to a callback which,
// after passing through hook.on_new_entry, inserts a Download".
func (p *Poller) poll(ctx context.Context, feedURL string) error {
	parsed, err := p.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return fmt.Errorf("feed: fetching %s: %w", feedURL, err)
	}

	var cursor model.FeedCursor
	err = p.s.Get(store.WatchRSS, feedURL, &cursor)
	seen := err == nil
	if err != nil && err != store.ErrNotFound {
		return fmt.Errorf("feed: loading cursor for %s: %w", feedURL, err)
	}

	newEntries := newSince(parsed.Items, cursor.LastEntryID, seen)
	if len(newEntries) == 0 {
		return nil
	}
	glog.Infof("feed: %d new entries from %s", len(newEntries), feedURL)

	for _, item := range newEntries {
		p.ingest(item)
	}

	cursor.FeedURL = feedURL
	cursor.LastEntryID = entryID(newEntries[0])
	cursor.UpdatedAt = time.Now()
	if seen {
		if err := p.s.UpdateOne(store.WatchRSS, feedURL, &cursor); err != nil {
			return fmt.Errorf("feed: updating cursor for %s: %w", feedURL, err)
		}
	} else if _, err := p.s.Insert(store.WatchRSS, feedURL, &cursor, ""); err != nil {
		return fmt.Errorf("feed: inserting cursor for %s: %w", feedURL, err)
	}
	return nil
}

func (p *Poller) ingest(item *gofeed.Item) {
	entry := hooks.Entry{ID: entryID(item), Title: item.Title, Link: item.Link}
	entry, ok := p.h.OnNewEntry(entry)
	if !ok {
		return
	}

	d := model.NewDownload(entry.Link, entry.Link, entry.Title)
	if _, err := p.s.Insert(store.Downloads, d.ID, d, "url"); err != nil && err != store.ErrConflict {
		glog.Warningf("feed: inserting download for %q: %v", entry.Title, err)
	}
}

func entryID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

// newSince returns every item more recent than lastSeenID, in feed order
// (newest first, as gofeed preserves it), or every item if the cursor has
// never seen this feed before. A feed whose lastSeenID is no longer present
// (the provider rotated its window) is treated as "everything is new" -
// the downloads collection's unique index on url absorbs any duplicate.
func newSince(items []*gofeed.Item, lastSeenID string, seen bool) []*gofeed.Item {
	if !seen || lastSeenID == "" {
		return items
	}
	for i, item := range items {
		if entryID(item) == lastSeenID {
			return items[:i]
		}
	}
	return items
}
