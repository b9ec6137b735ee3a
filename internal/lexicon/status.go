package lexicon

import (
	"errors"
	"fmt"
	"time"

	"github.com/rivo/uniseg"
)

// StatusNSID is the collection NSID for status records.
const StatusNSID = "app.statusky.status"

// StatusRKey is the fixed record key: each account holds at most one live
// status record, overwritten in place.
const StatusRKey = "self"

// maxStatusBytes bounds the encoded size of the status value. A status is a
// single grapheme cluster (typically one emoji), which can span multiple
// code points.
const maxStatusBytes = 32

// ErrInvalidRecord is returned when a record does not conform to the status schema.
var ErrInvalidRecord = errors.New("invalid status record")

// StatusRecord is the authoritative status document stored in the user's repository.
type StatusRecord struct {
	Type      string `json:"$type"`
	Status    string `json:"status"`
	UpdatedAt string `json:"updatedAt"`
}

// NewStatusRecord builds a candidate status record stamped with the given time.
func NewStatusRecord(status string, updatedAt time.Time) StatusRecord {
	return StatusRecord{
		Type:      StatusNSID,
		Status:    status,
		UpdatedAt: updatedAt.UTC().Format(time.RFC3339),
	}
}

// Validate checks the record against the status schema. It must run before
// any remote write; the repository write itself skips schema validation.
func Validate(rec StatusRecord) error {
	if rec.Type != StatusNSID {
		return fmt.Errorf("%w: unexpected $type %q", ErrInvalidRecord, rec.Type)
	}
	if rec.Status == "" {
		return fmt.Errorf("%w: status is required", ErrInvalidRecord)
	}
	if len(rec.Status) > maxStatusBytes {
		return fmt.Errorf("%w: status exceeds %d bytes", ErrInvalidRecord, maxStatusBytes)
	}
	if uniseg.GraphemeClusterCount(rec.Status) != 1 {
		return fmt.Errorf("%w: status must be a single grapheme", ErrInvalidRecord)
	}
	if _, err := time.Parse(time.RFC3339, rec.UpdatedAt); err != nil {
		return fmt.Errorf("%w: updatedAt is not RFC3339: %v", ErrInvalidRecord, err)
	}
	return nil
}
