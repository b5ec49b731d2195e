package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
)

// Disclaimers recorded in the metadata sidecar per redact mode.
const (
	disclaimerRedacted = "PII has been masked for disclosure. Hash-chain verification is not " +
		"possible against redacted content; chain_contiguous reflects the source trail at export time."
	disclaimerFull = "Unredacted extract for internal or legal use. chain_verifiable reflects " +
		"whether every entry in the range links to its predecessor."
)

// Sidecar is the metadata document written next to every export artifact.
type Sidecar struct {
	ExportID      string    `json:"export_id"`
	CreatedAt     time.Time `json:"created_at"`
	Redacted      bool      `json:"redacted"`
	DateRedaction string    `json:"date_redaction"`
	RecordCount   int       `json:"record_count"`
	// ChainContiguous is recorded for reference in every mode.
	ChainContiguous bool `json:"chain_contiguous"`
	// ChainVerifiable is forced false whenever the export is redacted:
	// redaction discards the exactness needed to trust the chain claim.
	ChainVerifiable bool   `json:"chain_verifiable"`
	Disclaimer      string `json:"disclaimer"`
}

// NewSidecar derives the sidecar for a finished export.
func NewSidecar(jobID string, mode RedactMode, recordCount int, chain ChainMetadata, at time.Time) Sidecar {
	redacted := mode == RedactModeRedacted
	sc := Sidecar{
		ExportID:        jobID,
		CreatedAt:       at.UTC(),
		Redacted:        redacted,
		DateRedaction:   "none",
		RecordCount:     recordCount,
		ChainContiguous: chain.ChainContiguous,
		ChainVerifiable: !redacted && chain.ChainContiguous,
		Disclaimer:      disclaimerFull,
	}
	if redacted {
		sc.DateRedaction = "year-month"
		sc.Disclaimer = disclaimerRedacted
	}
	return sc
}

// FileWriter serializes export rows to CSV or JSON.
type FileWriter struct{}

// NewFileWriter creates a file writer.
func NewFileWriter() *FileWriter {
	return &FileWriter{}
}

// Write serializes rows in the requested format.
func (w *FileWriter) Write(dst io.Writer, rows []Row, format Format) error {
	switch format {
	case FormatCSV:
		return w.WriteCSV(dst, rows)
	case FormatJSON:
		return w.WriteJSON(dst, rows)
	default:
		return fmt.Errorf("export: unsupported format %q", format)
	}
}

// WriteCSV writes a header row followed by one record per row. Every cell
// is string-serialized, then passed through the formula-injection guard.
// An empty range produces an empty file.
func (w *FileWriter) WriteCSV(dst io.Writer, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	cw := csv.NewWriter(dst)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("export: write csv header: %w", err)
	}
	record := make([]string, len(Columns))
	for _, row := range rows {
		for i, col := range Columns {
			cell, err := serializeCell(row[col])
			if err != nil {
				return fmt.Errorf("export: serialize column %s: %w", col, err)
			}
			record[i] = guardFormula(cell)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("export: write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: flush csv: %w", err)
	}
	return nil
}

// WriteJSON writes rows as a JSON array, one canonical object per entry,
// incrementally so the whole export is never materialized as one value.
func (w *FileWriter) WriteJSON(dst io.Writer, rows []Row) error {
	if _, err := io.WriteString(dst, "[\n"); err != nil {
		return fmt.Errorf("export: write json: %w", err)
	}
	for i, row := range rows {
		raw, err := json.Marshal(orderedRow(row))
		if err != nil {
			return fmt.Errorf("export: serialize json row: %w", err)
		}
		canonical, err := jcs.Transform(raw)
		if err != nil {
			return fmt.Errorf("export: canonicalize json row: %w", err)
		}
		if i > 0 {
			if _, err := io.WriteString(dst, ",\n"); err != nil {
				return fmt.Errorf("export: write json: %w", err)
			}
		}
		if _, err := dst.Write(canonical); err != nil {
			return fmt.Errorf("export: write json: %w", err)
		}
	}
	if _, err := io.WriteString(dst, "\n]\n"); err != nil {
		return fmt.Errorf("export: write json: %w", err)
	}
	return nil
}

// WriteSidecar writes the metadata sidecar document.
func (w *FileWriter) WriteSidecar(dst io.Writer, sc Sidecar) error {
	enc := json.NewEncoder(dst)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sc); err != nil {
		return fmt.Errorf("export: write sidecar: %w", err)
	}
	return nil
}

// orderedRow normalizes a row for JSON output: time values become
// ISO-8601 strings and absent columns become nulls.
func orderedRow(row Row) map[string]any {
	out := make(map[string]any, len(Columns))
	for _, col := range Columns {
		v := row[col]
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339)
		}
		out[col] = v
	}
	return out
}

// serializeCell renders one value as a CSV cell: maps and lists as
// canonical compact JSON, datetimes as ISO-8601, scalars verbatim.
func serializeCell(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case time.Time:
		return val.UTC().Format(time.RFC3339), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case map[string]any, []any:
		raw, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		canonical, err := jcs.Transform(raw)
		if err != nil {
			return "", err
		}
		return string(canonical), nil
	default:
		return fmt.Sprintf("%v", val), nil
	}
}

// guardFormula defends against spreadsheet formula injection: any cell
// beginning with =, +, - or @ is prefixed with a single quote. The guard
// is idempotent over canonical source values because the quoted form no
// longer begins with a trigger character.
func guardFormula(cell string) string {
	if cell == "" {
		return cell
	}
	if strings.ContainsRune("=+-@", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
