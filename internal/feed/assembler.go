package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/statusky/statusky/internal/pds"
	"github.com/statusky/statusky/internal/status"
)

// HandleResolver maps account identifiers to handles. Implemented by
// identity.Resolver.
type HandleResolver interface {
	ResolveHandles(ctx context.Context, dids []string) map[string]string
}

// Entry is one feed line: an account and its current status.
type Entry struct {
	DID       string
	Handle    string
	Status    string
	UpdatedAt time.Time
}

// Feed is the view-model handed to rendering.
type Feed struct {
	Entries   []Entry
	OwnStatus *Entry
	Profile   *pds.Profile
	// Viewer is the signed-in account's DID, empty for anonymous requests.
	Viewer string
}

// Assembler builds the aggregate status feed from the local cache.
type Assembler struct {
	repo     status.Repository
	resolver HandleResolver
	pageSize int
	log      *slog.Logger
}

// NewAssembler creates an Assembler with the given feed page size.
func NewAssembler(repo status.Repository, resolver HandleResolver, pageSize int, log *slog.Logger) *Assembler {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &Assembler{
		repo:     repo,
		resolver: resolver,
		pageSize: pageSize,
		log:      log.With("component", "feed_assembler"),
	}
}

// BuildFeed reads the most recent statuses plus the viewer's own status,
// joins in resolved handles, and enriches with the viewer's live profile.
// Handle and profile lookups degrade instead of failing the feed: an
// unresolved handle falls back to the raw DID, and a profile fetch failure
// is logged and omitted.
func (a *Assembler) BuildFeed(ctx context.Context, agent *pds.Agent) (*Feed, error) {
	rows, err := a.repo.ListRecent(ctx, a.pageSize)
	if err != nil {
		return nil, fmt.Errorf("reading status feed: %w", err)
	}

	var own *status.CachedStatus
	if agent != nil {
		own, err = a.repo.GetByDID(ctx, agent.DID())
		if err != nil && !errors.Is(err, status.ErrNotFound) {
			return nil, fmt.Errorf("reading own status: %w", err)
		}
	}

	dids := make([]string, 0, len(rows)+1)
	for _, row := range rows {
		dids = append(dids, row.DID)
	}
	if agent != nil {
		dids = append(dids, agent.DID())
	}
	handles := a.resolver.ResolveHandles(ctx, dids)

	feed := &Feed{Entries: make([]Entry, 0, len(rows))}
	for _, row := range rows {
		feed.Entries = append(feed.Entries, toEntry(row, handles))
	}
	if own != nil {
		entry := toEntry(*own, handles)
		feed.OwnStatus = &entry
	}

	if agent != nil {
		feed.Viewer = agent.DID()
		profile, err := agent.GetProfile(ctx)
		if err != nil {
			a.log.Warn("profile fetch degraded", "did", agent.DID(), "error", err)
		} else {
			feed.Profile = profile
		}
	}

	return feed, nil
}

// toEntry joins a cached row with its resolved handle, falling back to the
// raw DID when unresolved.
func toEntry(row status.CachedStatus, handles map[string]string) Entry {
	handle, ok := handles[row.DID]
	if !ok || handle == "" {
		handle = row.DID
	}
	return Entry{
		DID:       row.DID,
		Handle:    handle,
		Status:    row.Status,
		UpdatedAt: row.UpdatedAt,
	}
}
