// Package job runs configured split jobs: it loads the input table, applies the
// stratified or uniform splitter and exports the result.
package job

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/pithecene-io/cleave/cleave"
	cleaves3 "github.com/pithecene-io/cleave/cleave/s3"
	"github.com/pithecene-io/cleave/internal/config"
)

// Runner executes jobs described by one configuration.
type Runner struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	exporter *cleave.Exporter
}

// NewRunner validates cfg and opens the output store.
func NewRunner(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("job: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("job: invalid config: %w", err)
	}

	factory, err := storeFactory(ctx, cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("job: output store: %w", err)
	}
	codec, err := outputCodec(cfg)
	if err != nil {
		return nil, fmt.Errorf("job: output codec: %w", err)
	}
	compressor, err := cleave.CompressorByName(cfg.Output.Compression)
	if err != nil {
		return nil, fmt.Errorf("job: output compressor: %w", err)
	}

	exporter, err := cleave.NewExporter(factory,
		cleave.WithCodec(codec),
		cleave.WithCompressor(compressor),
		cleave.WithPrefix(cfg.Output.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("job: %w", err)
	}

	return &Runner{
		cfg:      cfg,
		log:      log.WithField("store", cfg.Output.Store),
		exporter: exporter,
	}, nil
}

// RunStratify splits the input table by category and exports the partitions.
func (r *Runner) RunStratify(ctx context.Context) (*cleave.Manifest, error) {
	if err := r.cfg.ValidateStratify(); err != nil {
		return nil, fmt.Errorf("job: %w", err)
	}
	sc := r.cfg.Stratify

	table, err := r.loadInput()
	if err != nil {
		return nil, err
	}

	categories := sc.Categories
	switch {
	case len(categories) == 0:
		if categories, err = cleave.Categories(table, sc.Column); err != nil {
			return nil, fmt.Errorf("job: %w", err)
		}
	case r.cfg.Input.Format == "csv":
		categories = textCategories(categories)
	}
	mode, err := cleave.ParseStratifyMode(sc.Mode)
	if err != nil {
		return nil, fmt.Errorf("job: %w", err)
	}

	log := r.log.WithFields(logrus.Fields{
		"column":         sc.Column,
		"category_count": len(categories),
		"mode":           mode.String(),
	})
	log.Debug("Stratifying table")

	p, err := cleave.Stratify(nil, table, cleave.StratifyRequest{
		Categories: categories,
		Column:     sc.Column,
		Fractions:  sc.Fractions,
		KeyOffset:  sc.KeyOffset,
		Mode:       mode,
	})
	if err != nil {
		return nil, fmt.Errorf("job: %w", err)
	}

	meta := r.metadata("stratify")
	meta["column"] = sc.Column
	meta["categories"] = categories
	meta["fractions"] = sc.Fractions
	meta["key_offset"] = sc.KeyOffset
	meta["mode"] = mode.String()

	return r.export(ctx, log, p, meta)
}

// RunSplit shuffles the input rows into length-specified splits and exports
// them. The permutation is recorded in the manifest metadata.
func (r *Runner) RunSplit(ctx context.Context) (*cleave.Manifest, error) {
	if err := r.cfg.ValidateSplit(); err != nil {
		return nil, fmt.Errorf("job: %w", err)
	}
	sc := r.cfg.Split

	table, err := r.loadInput()
	if err != nil {
		return nil, err
	}

	lengths := sc.Lengths
	if len(lengths) == 0 {
		if lengths, err = cleave.Lengths(table.Len(), sc.Fractions); err != nil {
			return nil, fmt.Errorf("job: %w", err)
		}
	}

	permuter := cleave.RandomPermuter()
	if sc.Seed != nil {
		permuter = cleave.SeededPermuter(*sc.Seed)
	}

	log := r.log.WithField("lengths", lengths)
	log.Debug("Splitting table")

	perm, views, err := cleave.Split[cleave.Record](table, lengths, cleave.WithPermuter(permuter))
	if err != nil {
		return nil, fmt.Errorf("job: %w", err)
	}

	p := cleave.NewPartitions()
	for k, v := range views {
		rows, err := v.Collect()
		if err != nil {
			return nil, fmt.Errorf("job: split %d: %w", k, err)
		}
		p.Initialize(k, cleave.NewTable(table.Columns(), rows...))
	}

	meta := r.metadata("split")
	meta["lengths"] = lengths
	meta["permutation"] = perm
	if sc.Seed != nil {
		meta["seed"] = *sc.Seed
	}

	return r.export(ctx, log, p, meta)
}

// Inspect returns the manifest of runID, or of the newest run when runID is
// empty.
func (r *Runner) Inspect(ctx context.Context, runID string) (*cleave.Manifest, error) {
	if runID == "" {
		runs, err := r.exporter.Runs(ctx)
		if err != nil {
			return nil, err
		}
		if len(runs) == 0 {
			return nil, fmt.Errorf("job: no runs: %w", cleave.ErrNotFound)
		}
		runID = runs[len(runs)-1]
	}
	return r.exporter.Manifest(ctx, runID)
}

// Runs lists completed run IDs, oldest first.
func (r *Runner) Runs(ctx context.Context) ([]string, error) {
	return r.exporter.Runs(ctx)
}

// Load reads an exported run back into partitions.
func (r *Runner) Load(ctx context.Context, runID string) (*cleave.Partitions, *cleave.Manifest, error) {
	return r.exporter.Load(ctx, runID)
}

func (r *Runner) export(ctx context.Context, log logrus.FieldLogger, p *cleave.Partitions, meta cleave.Metadata) (*cleave.Manifest, error) {
	for _, key := range p.Keys() {
		t, _ := p.Get(key)
		log.WithFields(logrus.Fields{"split_key": key, "rows": t.Len()}).Debug("Split ready")
	}

	m, err := r.exporter.Export(ctx, p, meta)
	if err != nil {
		return nil, fmt.Errorf("job: export: %w", err)
	}
	log.WithFields(logrus.Fields{
		"run_id": m.RunID,
		"splits": len(m.Splits),
		"rows":   m.RowCount,
	}).Info("Export complete")
	return m, nil
}

func (r *Runner) metadata(command string) cleave.Metadata {
	meta := make(cleave.Metadata, len(r.cfg.Metadata)+8)
	for k, v := range r.cfg.Metadata {
		meta[k] = v
	}
	meta["command"] = command
	meta["source"] = r.cfg.Input.Path
	return meta
}

func (r *Runner) loadInput() (*cleave.Table, error) {
	in := r.cfg.Input
	codec, err := inputCodec(in)
	if err != nil {
		return nil, fmt.Errorf("job: input codec: %w", err)
	}
	compressor, err := cleave.CompressorByName(in.Compression)
	if err != nil {
		return nil, fmt.Errorf("job: input compressor: %w", err)
	}

	f, err := os.Open(in.Path)
	if err != nil {
		return nil, fmt.Errorf("job: open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	table, err := cleave.ReadTable(f, codec, compressor)
	if err != nil {
		return nil, fmt.Errorf("job: read %s: %w", in.Path, err)
	}
	r.log.WithFields(logrus.Fields{
		"path":    in.Path,
		"rows":    table.Len(),
		"columns": len(table.Columns()),
	}).Info("Loaded input")
	return table, nil
}

// textCategories renders configured categories as text. CSV cells always
// decode as strings, so a YAML `1` must become "1" to match them.
func textCategories(categories []any) []any {
	out := make([]any, len(categories))
	for i, c := range categories {
		switch v := c.(type) {
		case string:
			out[i] = v
		case nil:
			out[i] = ""
		default:
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}

func inputCodec(in config.InputConfig) (cleave.Codec, error) {
	switch in.Format {
	case "csv":
		var opts []cleave.CSVOption
		if d := []rune(in.CSVDelimiter); len(d) == 1 {
			opts = append(opts, cleave.WithCSVDelimiter(d[0]))
		}
		return cleave.NewCSVCodec(opts...), nil
	case "parquet":
		schema, err := config.ParquetSchema(in.Schema)
		if err != nil {
			return nil, err
		}
		return cleave.NewParquetCodec(schema)
	default:
		return cleave.CodecByName(in.Format)
	}
}

func outputCodec(cfg *config.Config) (cleave.Codec, error) {
	if cfg.Output.Format != "parquet" {
		return cleave.CodecByName(cfg.Output.Format)
	}
	fields := cfg.Output.Schema
	if len(fields) == 0 {
		fields = cfg.Input.Schema
	}
	schema, err := config.ParquetSchema(fields)
	if err != nil {
		return nil, err
	}
	return cleave.NewParquetCodec(schema)
}

func storeFactory(ctx context.Context, out config.OutputConfig) (cleave.StoreFactory, error) {
	switch out.Store {
	case config.StoreFS:
		if err := os.MkdirAll(out.Root, 0o755); err != nil {
			return nil, err
		}
		return cleave.NewFSFactory(out.Root), nil
	case config.StoreMemory:
		return cleave.NewMemoryFactory(), nil
	case config.StoreS3:
		client, err := cleaves3.NewClient(ctx, cleaves3.ClientConfig{
			Region:          out.S3.Region,
			Endpoint:        out.S3.Endpoint,
			UsePathStyle:    out.S3.UsePathStyle,
			AccessKeyID:     out.S3.AccessKeyID,
			SecretAccessKey: out.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return cleaves3.Factory(client, cleaves3.Config{Bucket: out.S3.Bucket, Prefix: out.S3.Prefix}), nil
	default:
		return nil, fmt.Errorf("unknown store %q", out.Store)
	}
}
