package export

import (
	"context"
	"fmt"

	"github.com/Arclight-Systems/casetrail/pkg/audit"
	"github.com/Arclight-Systems/casetrail/pkg/identity"
	"github.com/Arclight-Systems/casetrail/pkg/redaction"
)

// Columns is the flattened export column order. Both serializers emit
// columns in this order so re-runs of the same range are byte-identical.
var Columns = []string{
	"id", "org_id", "event_type", "actor_user_id", "actor_name",
	"target_type", "target_id", "details", "ip_address", "user_agent",
	"request_id", "prev_hash", "entry_hash", "created_at",
}

// Row is one flattened, possibly-redacted export row.
type Row map[string]any

// ChainMetadata describes the hash-chain of an exported range.
//
// ChainContiguous collapses the whole range to one boolean; it does not
// localize the first break. Auditors who need to localize tampering need
// an enhanced report, which this export deliberately does not produce.
type ChainMetadata struct {
	// RangeStartPrevHash is the first row's prev_hash, nil for an empty
	// range. Verifiers splice partial extracts against the wider trail
	// with it.
	RangeStartPrevHash *string `json:"range_start_prev_hash"`
	// ChainContiguous is true iff every row has a non-null entry_hash and
	// every row after the first links to its predecessor.
	ChainContiguous bool `json:"chain_contiguous"`
}

// RowBuilder joins raw audit rows with actor names, applies redaction,
// and computes chain metadata.
type RowBuilder struct {
	directory identity.Directory
	engine    *redaction.Engine
}

// NewRowBuilder creates a row builder.
func NewRowBuilder(directory identity.Directory, engine *redaction.Engine) *RowBuilder {
	return &RowBuilder{directory: directory, engine: engine}
}

// Build flattens entries into export rows in their given order. Actor
// display names are resolved in one batch lookup; a missing actor omits
// the name, never fails the export. Chain metadata is computed over the
// raw entries before any redaction.
func (b *RowBuilder) Build(ctx context.Context, orgID string, entries []audit.Entry, mode RedactMode) ([]Row, ChainMetadata, error) {
	names, err := b.resolveActors(ctx, entries)
	if err != nil {
		return nil, ChainMetadata{}, fmt.Errorf("export: resolve actor names: %w", err)
	}

	meta := chainMetadata(entries)

	rows := make([]Row, 0, len(entries))
	for _, entry := range entries {
		row := flatten(entry, names)
		if mode == RedactModeRedacted {
			personLinked := redaction.PersonLinked(entry.TargetType, entry.ActorUserID, entry.Details)
			row = b.engine.RedactRecord(row, personLinked)
		}
		rows = append(rows, row)
	}
	return rows, meta, nil
}

func (b *RowBuilder) resolveActors(ctx context.Context, entries []audit.Entry) (map[string]string, error) {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ActorUserID != "" {
			ids = append(ids, e.ActorUserID)
		}
	}
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	return b.directory.DisplayNames(ctx, ids)
}

func flatten(e audit.Entry, names map[string]string) Row {
	row := Row{
		"id":            e.ID,
		"org_id":        e.OrgID,
		"event_type":    e.EventType,
		"actor_user_id": e.ActorUserID,
		"actor_name":    "",
		"target_type":   e.TargetType,
		"target_id":     e.TargetID,
		"details":       e.Details,
		"ip_address":    e.IPAddress,
		"user_agent":    e.UserAgent,
		"request_id":    e.RequestID,
		"prev_hash":     deref(e.PrevHash),
		"entry_hash":    deref(e.EntryHash),
		"created_at":    e.CreatedAt,
	}
	if name, ok := names[e.ActorUserID]; ok {
		row["actor_name"] = name
	}
	return row
}

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// chainMetadata checks link-by-link contiguity over the ordered range. A
// single break anywhere collapses the flag for the whole range.
func chainMetadata(entries []audit.Entry) ChainMetadata {
	meta := ChainMetadata{ChainContiguous: true}
	if len(entries) == 0 {
		return meta
	}
	meta.RangeStartPrevHash = entries[0].PrevHash

	for i, e := range entries {
		if e.EntryHash == nil {
			meta.ChainContiguous = false
			break
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1].EntryHash
		if e.PrevHash == nil || prev == nil || *e.PrevHash != *prev {
			meta.ChainContiguous = false
			break
		}
	}
	return meta
}
