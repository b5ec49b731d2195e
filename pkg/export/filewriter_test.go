package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() []Row {
	created := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	return []Row{
		{
			"id": "e1", "org_id": "org-1", "event_type": "case.updated",
			"actor_user_id": "u1", "actor_name": "Dana Ops",
			"target_type": "case", "target_id": "c1",
			"details":    map[string]any{"field": "status", "to": "active"},
			"ip_address": "203.0.113.45", "user_agent": "cli", "request_id": "r1",
			"prev_hash": "sha256:aaa", "entry_hash": "sha256:bbb",
			"created_at": created,
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFileWriter().WriteCSV(&buf, sampleRows()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, Columns, records[0])

	row := records[1]
	assert.Equal(t, "e1", row[0])
	assert.Equal(t, "Dana Ops", row[4])
	// Nested details serialize as canonical JSON with sorted keys.
	assert.Equal(t, `{"field":"status","to":"active"}`, row[7])
	assert.Equal(t, "2025-05-01T09:30:00Z", row[13])
}

func TestWriteCSVEmptyRangeYieldsEmptyFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFileWriter().WriteCSV(&buf, nil))
	assert.Zero(t, buf.Len())
}

func TestWriteCSVGuardsFormulaInjection(t *testing.T) {
	rows := sampleRows()
	rows[0]["actor_name"] = "=HYPERLINK(\"http://evil\")"
	rows[0]["user_agent"] = "+sum(a1:a9)"
	rows[0]["request_id"] = "@cmd"
	rows[0]["target_id"] = "-2+3"

	var buf bytes.Buffer
	require.NoError(t, NewFileWriter().WriteCSV(&buf, rows))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	row := records[1]
	assert.True(t, strings.HasPrefix(row[4], "'="))
	assert.True(t, strings.HasPrefix(row[9], "'+"))
	assert.True(t, strings.HasPrefix(row[10], "'@"))
	assert.True(t, strings.HasPrefix(row[6], "'-"))
}

func TestGuardFormula(t *testing.T) {
	assert.Equal(t, "'=1+1", guardFormula("=1+1"))
	assert.Equal(t, "plain", guardFormula("plain"))
	assert.Equal(t, "", guardFormula(""))
	// Guarded cells no longer begin with a trigger, so a second pass is a
	// no-op.
	assert.Equal(t, "'=1+1", guardFormula(guardFormula("=1+1")))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFileWriter().WriteJSON(&buf, sampleRows()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "[\n"))
	assert.True(t, strings.HasSuffix(out, "\n]\n"))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "e1", decoded[0]["id"])
	assert.Equal(t, "2025-05-01T09:30:00Z", decoded[0]["created_at"])
	details := decoded[0]["details"].(map[string]any)
	assert.Equal(t, "status", details["field"])
}

func TestWriteJSONEmptyRange(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFileWriter().WriteJSON(&buf, nil))

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Empty(t, decoded)
}

func TestNewSidecar(t *testing.T) {
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	chain := ChainMetadata{ChainContiguous: true}

	t.Run("redacted export is never chain verifiable", func(t *testing.T) {
		sc := NewSidecar("job-1", RedactModeRedacted, 10, chain, at)
		assert.True(t, sc.Redacted)
		assert.Equal(t, "year-month", sc.DateRedaction)
		assert.True(t, sc.ChainContiguous)
		assert.False(t, sc.ChainVerifiable)
		assert.Equal(t, disclaimerRedacted, sc.Disclaimer)
	})

	t.Run("full export inherits contiguity", func(t *testing.T) {
		sc := NewSidecar("job-2", RedactModeFull, 10, chain, at)
		assert.False(t, sc.Redacted)
		assert.Equal(t, "none", sc.DateRedaction)
		assert.True(t, sc.ChainVerifiable)
		assert.Equal(t, disclaimerFull, sc.Disclaimer)
	})

	t.Run("broken chain blocks verifiability in full mode", func(t *testing.T) {
		sc := NewSidecar("job-3", RedactModeFull, 10, ChainMetadata{}, at)
		assert.False(t, sc.ChainVerifiable)
	})
}

func TestWriteSidecar(t *testing.T) {
	sc := NewSidecar("job-1", RedactModeRedacted, 3, ChainMetadata{ChainContiguous: true}, time.Now())
	var buf bytes.Buffer
	require.NoError(t, NewFileWriter().WriteSidecar(&buf, sc))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "job-1", decoded["export_id"])
	assert.Equal(t, float64(3), decoded["record_count"])
	assert.Equal(t, false, decoded["chain_verifiable"])
	assert.Contains(t, decoded["disclaimer"], "masked")
}
