package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/statusky/statusky/internal/lexicon"
	"github.com/statusky/statusky/internal/pds"
)

// ErrUnauthenticated is returned when publishing is attempted without a
// capability. Reported to the caller as a rejection, not an internal error.
var ErrUnauthenticated = errors.New("not authenticated")

// ErrInvalidInput is returned when the candidate record fails schema
// validation. No remote or local write happens in that case.
var ErrInvalidInput = errors.New("invalid status")

// ErrPublishFailed is returned when the authoritative repository write fails.
// The local cache is guaranteed untouched.
var ErrPublishFailed = errors.New("publish failed")

// Publisher writes status records to the authoritative repository and mirrors
// them into the local cache.
type Publisher struct {
	repo Repository
	log  *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(repo Repository, log *slog.Logger) *Publisher {
	return &Publisher{
		repo: repo,
		log:  log.With("component", "status_publisher"),
	}
}

// Publish validates rawStatus, writes it to the account's repository at the
// fixed status slot, and mirrors the result into the local cache.
//
// The repository write is the durability boundary: once it succeeds the call
// reports success regardless of the cache mirror's outcome. A failed mirror
// is logged and left for the firehose consumer to repair; it is never
// retried here and never surfaced to the caller.
func (p *Publisher) Publish(ctx context.Context, agent *pds.Agent, rawStatus string) (lexicon.StatusRecord, error) {
	if agent == nil {
		return lexicon.StatusRecord{}, ErrUnauthenticated
	}

	now := time.Now().UTC()
	record := lexicon.NewStatusRecord(rawStatus, now)
	if err := lexicon.Validate(record); err != nil {
		return lexicon.StatusRecord{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if err := agent.PutRecord(ctx, lexicon.StatusNSID, lexicon.StatusRKey, record); err != nil {
		return lexicon.StatusRecord{}, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	row := &CachedStatus{
		DID:       agent.DID(),
		Status:    record.Status,
		UpdatedAt: now,
		IndexedAt: time.Now().UTC(),
	}
	if err := p.repo.Upsert(ctx, row); err != nil {
		p.log.Warn("cache mirror write failed, firehose will repair",
			"did", agent.DID(), "error", err)
	}

	return record, nil
}
