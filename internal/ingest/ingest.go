// Package ingest streams the five-table CSV tier into IntegrationSnapshots
// (SPEC_FULL.md §4.1). The parent integrations table is read and emitted
// row by row so memory stays bounded on large inputs; the four child
// tables are indexed by integrationId up front (see DESIGN.md for the
// memory-bound tradeoff this implies).
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/catherinevee/integration-auditor/internal/apperrors"
	"github.com/catherinevee/integration-auditor/internal/model"
)

// Sources names the five tiered CSV streams. Tests construct one directly
// from strings.Reader; OpenTierDir constructs one from a directory.
type Sources struct {
	Integrations io.Reader
	Imports      io.Reader
	Exports      io.Reader
	Flows        io.Reader
	Connections  io.Reader
}

var tierFiles = []string{"integrations.csv", "imports.csv", "exports.csv", "flows.csv", "connections.csv"}

// OpenTierDir opens the five fixed-name CSV files in dir. It validates the
// full manifest (all five files present) before opening any of them,
// matching the tier-override supplement in SPEC_FULL.md's "SUPPLEMENTED
// FEATURES" section.
func OpenTierDir(dir string) (Sources, []io.Closer, error) {
	var missing []string
	for _, name := range tierFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Sources{}, nil, fmt.Errorf("%w: tier %s missing files: %v", apperrors.ErrConfigInvalid, dir, missing)
	}

	var closers []io.Closer
	open := func(name string) (io.Reader, error) {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		closers = append(closers, f)
		return f, nil
	}

	integrations, err := open("integrations.csv")
	if err != nil {
		return Sources{}, closers, err
	}
	imports, err := open("imports.csv")
	if err != nil {
		return Sources{}, closers, err
	}
	exports, err := open("exports.csv")
	if err != nil {
		return Sources{}, closers, err
	}
	flows, err := open("flows.csv")
	if err != nil {
		return Sources{}, closers, err
	}
	connections, err := open("connections.csv")
	if err != nil {
		return Sources{}, closers, err
	}

	return Sources{
		Integrations: integrations,
		Imports:      imports,
		Exports:      exports,
		Flows:        flows,
		Connections:  connections,
	}, closers, nil
}

// CloseAll closes every opened file, ignoring individual errors (the files
// are read-only sources; a close failure has no data-integrity
// consequence).
func CloseAll(closers []io.Closer) {
	for _, c := range closers {
		_ = c.Close()
	}
}

// Ingestor streams snapshots from a Sources. BufferSize sizes the output
// channel, bounding how far the consumer can lag the producer (SPEC_FULL.md
// §5's backpressure requirement). Progress, if set, is called once per
// parent row read, for CLI progress-bar wiring on large inputs.
type Ingestor struct {
	BufferSize int
	Progress   func(rowsRead int)
}

// New returns an Ingestor with a default channel buffer.
func New() *Ingestor {
	return &Ingestor{BufferSize: 64}
}

// Stream joins the five tables and emits one IntegrationSnapshot per
// integrations.csv row on the returned channel, closing it when the parent
// table is exhausted or ctx is canceled. A header mismatch on any table is
// a hard error delivered on the error channel before any snapshot is sent.
// A later read error on integrations.csv is also delivered on the error
// channel and ends the stream; malformed settings degrade to a warning on
// the snapshot, never an error.
func (ing *Ingestor) Stream(ctx context.Context, src Sources) (<-chan model.IntegrationSnapshot, <-chan error) {
	out := make(chan model.IntegrationSnapshot, ing.BufferSize)
	errCh := make(chan error, 1)

	imports, err := indexByIntegrationID(src.Imports, importsHeader)
	if err != nil {
		errCh <- err
		close(out)
		close(errCh)
		return out, errCh
	}
	exports, err := indexByIntegrationID(src.Exports, exportsHeader)
	if err != nil {
		errCh <- err
		close(out)
		close(errCh)
		return out, errCh
	}
	flows, err := indexByIntegrationID(src.Flows, flowsHeader)
	if err != nil {
		errCh <- err
		close(out)
		close(errCh)
		return out, errCh
	}
	connections, err := indexByIntegrationID(src.Connections, connectionsHeader)
	if err != nil {
		errCh <- err
		close(out)
		close(errCh)
		return out, errCh
	}

	parent, err := openTable(src.Integrations, integrationsHeader)
	if err != nil {
		errCh <- err
		close(out)
		close(errCh)
		return out, errCh
	}

	go func() {
		defer close(out)
		defer close(errCh)

		rowsRead := 0
		for {
			row, err := parent.next()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- fmt.Errorf("%w: %v", apperrors.ErrHeaderMismatch, err)
				return
			}

			rowsRead++
			if ing.Progress != nil {
				ing.Progress(rowsRead)
			}

			id := row["INTEGRATIONID"]
			snapshot := buildSnapshot(row, imports[id], exports[id], flows[id], connections[id])

			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, errCh
}

// buildSnapshot assembles one IntegrationSnapshot from its parent row and
// already-indexed child rows. Malformed SETTINGS JSON degrades the
// snapshot rather than aborting it, per SPEC_FULL.md §4.1.
func buildSnapshot(row map[string]string, importRows, exportRows, flowRows, connectionRows []map[string]string) model.IntegrationSnapshot {
	raw := make(map[string]interface{}, len(row))
	for k, v := range row {
		raw[toLowerASCII(k)] = v
	}

	snapshot := model.IntegrationSnapshot{
		ID:               row["INTEGRATIONID"],
		Email:            row["EMAIL"],
		UserID:           row["USERID"],
		Version:          row["VERSION"],
		StoreCount:       parseInt(row["STORECOUNT"]),
		LicenseEdition:   model.LicenseEdition(row["LICENSEEDITION"]),
		UpdateInProgress: parseBool(row["UPDATEINPROGRESS"]),
		Raw:              raw,
		Imports:          toResources(importRows),
		Exports:          toResources(exportRows),
		Flows:            toResources(flowRows),
		Connections:      toConnections(connectionRows),
	}

	settings, warnings := parseSettingsCell(row["SETTINGS"])
	snapshot.Settings = settings
	snapshot.Warnings = warnings

	return snapshot
}

func parseSettingsCell(cell string) (model.Settings, []string) {
	m, err := parseSettings(cell)
	if err != nil {
		return model.Settings{Raw: map[string]interface{}{}}, []string{
			fmt.Sprintf("%v: %v", apperrors.ErrSettingsMalformed, err),
		}
	}

	settings := model.Settings{Raw: m}
	if ce, ok := m["connectorEdition"].(string); ok {
		settings.ConnectorEdition = ce
	}
	if rawSections, ok := m["sections"].([]interface{}); ok {
		for _, rs := range rawSections {
			if sm, ok := rs.(map[string]interface{}); ok {
				settings.Sections = append(settings.Sections, model.Section{Raw: sm})
			}
		}
	}
	if sized, err := json.Marshal(m); err == nil {
		settings.SizeBytes = len(sized)
	}

	return settings, nil
}

func toResources(rows []map[string]string) []model.Resource {
	out := make([]model.Resource, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Resource{
			ExternalID: row["_ID"],
			Name:       row["NAME"],
			Raw:        stringRowToRaw(row),
		})
	}
	return out
}

func toConnections(rows []map[string]string) []model.Connection {
	out := make([]model.Connection, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Connection{
			ExternalID: row["_ID"],
			Offline:    parseBool(row["OFFLINE"]),
			Target:     row["TARGET"],
			Raw:        stringRowToRaw(row),
		})
	}
	return out
}

func stringRowToRaw(row map[string]string) map[string]interface{} {
	raw := make(map[string]interface{}, len(row))
	for k, v := range row {
		raw[toLowerASCII(k)] = v
	}
	return raw
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
