package cleave

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	manifestSchemaName    = "cleave-manifest"
	manifestFormatVersion = "1.0.0"

	runsDir      = "runs"
	manifestFile = "manifest.json"
	dataFileBase = "data"
	splitLabel   = "split"
)

// ErrManifestInvalid indicates a manifest that cannot be used to load a run.
var ErrManifestInvalid = errors.New("invalid manifest")

// -----------------------------------------------------------------------------
// Manifest
// -----------------------------------------------------------------------------

// Manifest describes one exported partition set.
//
// A manifest is written after all of its data files, so its presence marks
// the run as complete.
type Manifest struct {
	// SchemaName identifies the manifest schema ("cleave-manifest").
	SchemaName string `json:"schema_name"`

	// FormatVersion identifies the manifest schema version.
	FormatVersion string `json:"format_version"`

	// RunID uniquely identifies the export.
	RunID string `json:"run_id"`

	// CreatedAt records when the export was committed.
	CreatedAt time.Time `json:"created_at"`

	// Metadata contains caller-provided key-value pairs.
	Metadata Metadata `json:"metadata"`

	// Splits lists one entry per partition key, in ascending key order.
	Splits []SplitRef `json:"splits"`

	// RowCount is the total number of rows across all splits.
	RowCount int64 `json:"row_count"`

	// Codec records the table codec (e.g., "jsonl").
	Codec string `json:"codec"`

	// Compressor records the compression format (e.g., "gzip", "noop").
	Compressor string `json:"compressor"`
}

// SplitRef describes the data file holding one partition key.
type SplitRef struct {
	Key       int      `json:"key"`
	Path      string   `json:"path"`
	Columns   []string `json:"columns"`
	RowCount  int64    `json:"row_count"`
	SizeBytes int64    `json:"size_bytes"`
}

// -----------------------------------------------------------------------------
// Exporter configuration
// -----------------------------------------------------------------------------

type exportConfig struct {
	codec      Codec
	compressor Compressor
	prefix     string
}

// ExportOption configures an Exporter.
type ExportOption func(*exportConfig)

// WithCodec sets the table codec. Default: NewJSONLCodec().
func WithCodec(c Codec) ExportOption {
	return func(cfg *exportConfig) {
		cfg.codec = c
	}
}

// WithCompressor sets the compressor. Default: NewNoOpCompressor().
func WithCompressor(c Compressor) ExportOption {
	return func(cfg *exportConfig) {
		cfg.compressor = c
	}
}

// WithPrefix places every run under prefix within the store.
func WithPrefix(prefix string) ExportOption {
	return func(cfg *exportConfig) {
		cfg.prefix = strings.Trim(prefix, "/")
	}
}

// -----------------------------------------------------------------------------
// Exporter
// -----------------------------------------------------------------------------

// Exporter persists partition sets to a Store and loads them back.
//
// Layout:
//
//	<prefix>/runs/<run_id>/
//	  manifest.json
//	  split=<key>/data<codec ext><compressor ext>
type Exporter struct {
	store      Store
	codec      Codec
	compressor Compressor
	prefix     string
}

// NewExporter creates an Exporter over the store built by factory.
func NewExporter(factory StoreFactory, opts ...ExportOption) (*Exporter, error) {
	if factory == nil {
		return nil, errors.New("cleave: store factory is required")
	}
	store, err := factory()
	if err != nil {
		return nil, fmt.Errorf("cleave: store factory failed: %w", err)
	}
	if store == nil {
		return nil, errors.New("cleave: store factory returned nil store")
	}

	cfg := &exportConfig{
		codec:      NewJSONLCodec(),
		compressor: NewNoOpCompressor(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.codec == nil {
		return nil, errors.New("cleave: codec must not be nil")
	}
	if cfg.compressor == nil {
		return nil, errors.New("cleave: compressor must not be nil")
	}

	return &Exporter{
		store:      store,
		codec:      cfg.codec,
		compressor: cfg.compressor,
		prefix:     cfg.prefix,
	}, nil
}

// Export writes every partition of p as its own data file followed by a
// manifest, and returns the manifest.
func (e *Exporter) Export(ctx context.Context, p *Partitions, metadata Metadata) (*Manifest, error) {
	if p == nil {
		return nil, errors.New("cleave: partitions must be non-nil")
	}
	if metadata == nil {
		return nil, errors.New("cleave: metadata must be non-nil (use empty map {} for no metadata)")
	}

	runID := uuid.NewString()
	manifest := &Manifest{
		SchemaName:    manifestSchemaName,
		FormatVersion: manifestFormatVersion,
		RunID:         runID,
		Metadata:      metadata,
		Splits:        []SplitRef{},
		Codec:         e.codec.Name(),
		Compressor:    e.compressor.Name(),
	}

	for _, key := range p.Keys() {
		t, _ := p.Get(key)
		ref, err := e.writeSplit(ctx, runID, key, t)
		if err != nil {
			return nil, fmt.Errorf("cleave: failed to write split %d: %w", key, err)
		}
		manifest.Splits = append(manifest.Splits, ref)
		manifest.RowCount += ref.RowCount
	}

	manifest.CreatedAt = time.Now().UTC()
	data, err := jsonCodec.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("cleave: failed to encode manifest: %w", err)
	}
	if err := e.store.Put(ctx, e.manifestPath(runID), bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("cleave: failed to write manifest: %w", err)
	}

	return manifest, nil
}

// Manifest reads the manifest of a run. It returns ErrNotFound for unknown runs.
func (e *Exporter) Manifest(ctx context.Context, runID string) (*Manifest, error) {
	if runID == "" {
		return nil, errors.New("cleave: run ID must not be empty")
	}
	rc, err := e.store.Get(ctx, e.manifestPath(runID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("cleave: run %s: %w", runID, ErrNotFound)
		}
		return nil, fmt.Errorf("cleave: failed to get manifest: %w", err)
	}
	defer closer(rc)()

	var m Manifest
	if err := jsonCodec.NewDecoder(rc).Decode(&m); err != nil {
		return nil, fmt.Errorf("cleave: %w: %w", ErrManifestInvalid, err)
	}
	if m.SchemaName != manifestSchemaName {
		return nil, fmt.Errorf("cleave: %w: schema %q", ErrManifestInvalid, m.SchemaName)
	}
	if m.RunID != runID {
		return nil, fmt.Errorf("cleave: %w: run ID %q stored under %q", ErrManifestInvalid, m.RunID, runID)
	}
	return &m, nil
}

// Load reads a run back into a Partitions keyed as it was exported.
func (e *Exporter) Load(ctx context.Context, runID string) (*Partitions, *Manifest, error) {
	m, err := e.Manifest(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	if m.Codec != e.codec.Name() {
		return nil, nil, fmt.Errorf("cleave: codec mismatch: run uses %q but exporter configured with %q",
			m.Codec, e.codec.Name())
	}
	if m.Compressor != e.compressor.Name() {
		return nil, nil, fmt.Errorf("cleave: compressor mismatch: run uses %q but exporter configured with %q",
			m.Compressor, e.compressor.Name())
	}

	p := NewPartitions()
	for _, ref := range m.Splits {
		t, err := e.readSplit(ctx, ref)
		if err != nil {
			return nil, nil, fmt.Errorf("cleave: failed to read split %d: %w", ref.Key, err)
		}
		p.Initialize(ref.Key, t)
	}
	return p, m, nil
}

// Runs lists the IDs of completed runs, oldest first. Runs whose manifest
// is invalid are skipped.
func (e *Exporter) Runs(ctx context.Context) ([]string, error) {
	paths, err := e.store.List(ctx, e.join(runsDir))
	if err != nil {
		return nil, fmt.Errorf("cleave: failed to list runs: %w", err)
	}

	var manifests []*Manifest
	for _, p := range paths {
		runID, ok := e.parseManifestPath(p)
		if !ok {
			continue
		}
		m, err := e.Manifest(ctx, runID)
		if errors.Is(err, ErrManifestInvalid) {
			continue
		}
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}

	sort.SliceStable(manifests, func(i, j int) bool {
		return manifests[i].CreatedAt.Before(manifests[j].CreatedAt)
	})
	ids := make([]string, len(manifests))
	for i, m := range manifests {
		ids[i] = m.RunID
	}
	return ids, nil
}

func (e *Exporter) writeSplit(ctx context.Context, runID string, key int, t *Table) (SplitRef, error) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, t, e.codec, e.compressor); err != nil {
		return SplitRef{}, err
	}

	filePath := e.dataFilePath(runID, key)
	size := int64(buf.Len())
	if err := e.store.Put(ctx, filePath, &buf); err != nil {
		return SplitRef{}, err
	}

	return SplitRef{
		Key:       key,
		Path:      filePath,
		Columns:   t.Columns(),
		RowCount:  int64(t.Len()),
		SizeBytes: size,
	}, nil
}

func (e *Exporter) readSplit(ctx context.Context, ref SplitRef) (*Table, error) {
	rc, err := e.store.Get(ctx, ref.Path)
	if err != nil {
		return nil, err
	}
	defer closer(rc)()

	t, err := ReadTable(rc, e.codec, e.compressor)
	if err != nil {
		return nil, err
	}
	if int64(t.Len()) != ref.RowCount {
		return nil, fmt.Errorf("%w: split %d has %d rows, manifest records %d",
			ErrManifestInvalid, ref.Key, t.Len(), ref.RowCount)
	}
	// Schemaless codecs cannot carry the columns of an empty split.
	if ref.Columns != nil {
		t = NewTable(ref.Columns, t.Rows()...)
	}
	return t, nil
}

// -----------------------------------------------------------------------------
// Paths
// -----------------------------------------------------------------------------

func (e *Exporter) join(parts ...string) string {
	if e.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{e.prefix}, parts...)...)
}

func (e *Exporter) manifestPath(runID string) string {
	return e.join(runsDir, runID, manifestFile)
}

func (e *Exporter) dataFilePath(runID string, key int) string {
	name := dataFileBase + e.codec.Extension() + e.compressor.Extension()
	return e.join(runsDir, runID, splitSegment(key), name)
}

// parseManifestPath extracts the run ID from <prefix>/runs/<run>/manifest.json.
func (e *Exporter) parseManifestPath(p string) (string, bool) {
	rel := p
	if e.prefix != "" {
		if !strings.HasPrefix(p, e.prefix+"/") {
			return "", false
		}
		rel = strings.TrimPrefix(p, e.prefix+"/")
	}
	parts := strings.Split(rel, "/")
	if len(parts) != 3 || parts[0] != runsDir || parts[1] == "" || parts[2] != manifestFile {
		return "", false
	}
	return parts[1], true
}

// splitSegment renders a partition key as a Hive-style path component.
func splitSegment(key int) string {
	return splitLabel + "=" + url.PathEscape(strconv.Itoa(key))
}
