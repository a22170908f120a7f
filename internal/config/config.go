// Package config loads cleave job files.
//
// A job file is YAML:
//
//	input:
//	  path: data/records.jsonl
//	  format: jsonl
//	stratify:
//	  column: label
//	  fractions: [0.7, 0.2, 0.1]
//	split:
//	  fractions: [0.8, 0.2]
//	  seed: 42
//	output:
//	  store: fs
//	  root: ./splits
//	  compression: gzip
//	logging:
//	  level: info
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/cleave/cleave"
	"github.com/pithecene-io/cleave/internal/logging"
)

// Store kinds.
const (
	StoreFS     = "fs"
	StoreMemory = "memory"
	StoreS3     = "s3"
)

// Config is a complete job file.
type Config struct {
	Input    InputConfig    `yaml:"input"`
	Stratify StratifyConfig `yaml:"stratify"`
	Split    SplitConfig    `yaml:"split"`
	Output   OutputConfig   `yaml:"output"`
	Metadata map[string]any `yaml:"metadata"`
	Logging  logging.Config `yaml:"logging"`
}

// InputConfig locates and describes the source table.
type InputConfig struct {
	Path         string        `yaml:"path"`
	Format       string        `yaml:"format"`
	Compression  string        `yaml:"compression"`
	CSVDelimiter string        `yaml:"csv_delimiter"`
	Schema       []FieldConfig `yaml:"schema"`
}

// FieldConfig is one Parquet column.
type FieldConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Nullable bool   `yaml:"nullable"`
}

// StratifyConfig parameterizes the stratify command. An empty category list
// selects every category of the column in order of first appearance.
type StratifyConfig struct {
	Column     string    `yaml:"column"`
	Categories []any     `yaml:"categories"`
	Fractions  []float64 `yaml:"fractions"`
	KeyOffset  int       `yaml:"key_offset"`
	Mode       string    `yaml:"mode"`
}

// SplitConfig parameterizes the split command. Exactly one of Lengths and
// Fractions is set. A nil Seed draws a fresh permutation.
type SplitConfig struct {
	Lengths   []int     `yaml:"lengths"`
	Fractions []float64 `yaml:"fractions"`
	Seed      *uint64   `yaml:"seed"`
}

// OutputConfig selects where and how splits are written.
type OutputConfig struct {
	Store       string        `yaml:"store"`
	Root        string        `yaml:"root"`
	Prefix      string        `yaml:"prefix"`
	Format      string        `yaml:"format"`
	Compression string        `yaml:"compression"`
	Schema      []FieldConfig `yaml:"schema"`
	S3          S3Config      `yaml:"s3"`
}

// S3Config configures the s3 store.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Default returns a configuration with every optional field set.
func Default() *Config {
	return &Config{
		Input: InputConfig{
			Format:       "jsonl",
			Compression:  "none",
			CSVDelimiter: ",",
		},
		Stratify: StratifyConfig{
			Mode: cleave.InitializeFirst.String(),
		},
		Output: OutputConfig{
			Store:       StoreFS,
			Root:        "splits",
			Format:      "jsonl",
			Compression: "none",
		},
		Metadata: map[string]any{},
		Logging:  logging.NewConfig(),
	}
}

// Load reads a job file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a job file over the defaults. Unknown fields are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if cfg.Metadata == nil {
		cfg.Metadata = map[string]any{}
	}
	return cfg, nil
}

// Validate checks the sections shared by every command.
func (c *Config) Validate() error {
	var errs []error

	if c.Input.Path == "" {
		errs = append(errs, errors.New("input.path is required"))
	}
	errs = append(errs, validateFormat("input", c.Input.Format, c.Input.Schema)...)
	if _, err := cleave.CompressorByName(c.Input.Compression); err != nil {
		errs = append(errs, fmt.Errorf("input.compression: %w", err))
	}
	if len([]rune(c.Input.CSVDelimiter)) > 1 {
		errs = append(errs, fmt.Errorf("input.csv_delimiter %q must be a single character", c.Input.CSVDelimiter))
	}

	outSchema := c.Output.Schema
	if len(outSchema) == 0 {
		outSchema = c.Input.Schema
	}
	errs = append(errs, validateFormat("output", c.Output.Format, outSchema)...)
	if _, err := cleave.CompressorByName(c.Output.Compression); err != nil {
		errs = append(errs, fmt.Errorf("output.compression: %w", err))
	}
	switch c.Output.Store {
	case StoreFS:
		if c.Output.Root == "" {
			errs = append(errs, errors.New("output.root is required for the fs store"))
		}
	case StoreMemory:
	case StoreS3:
		if c.Output.S3.Bucket == "" {
			errs = append(errs, errors.New("output.s3.bucket is required for the s3 store"))
		}
		if c.Output.S3.Region == "" {
			errs = append(errs, errors.New("output.s3.region is required for the s3 store"))
		}
	default:
		errs = append(errs, fmt.Errorf("output.store %q must be one of fs, memory, s3", c.Output.Store))
	}

	if _, err := cleave.ParseStratifyMode(c.Stratify.Mode); err != nil {
		errs = append(errs, fmt.Errorf("stratify.mode: %w", err))
	}

	return errors.Join(errs...)
}

// ValidateStratify checks the stratify section.
func (c *Config) ValidateStratify() error {
	if c.Stratify.Column == "" {
		return errors.New("stratify.column is required")
	}
	if _, err := cleave.Lengths(0, c.Stratify.Fractions); err != nil {
		return fmt.Errorf("stratify.fractions: %w", err)
	}
	return nil
}

// ValidateSplit checks the split section.
func (c *Config) ValidateSplit() error {
	switch {
	case len(c.Split.Lengths) > 0 && len(c.Split.Fractions) > 0:
		return errors.New("split: set lengths or fractions, not both")
	case len(c.Split.Lengths) > 0:
		for i, n := range c.Split.Lengths {
			if n < 0 {
				return fmt.Errorf("split.lengths[%d] is negative", i)
			}
		}
	case len(c.Split.Fractions) > 0:
		if _, err := cleave.Lengths(0, c.Split.Fractions); err != nil {
			return fmt.Errorf("split.fractions: %w", err)
		}
	default:
		return errors.New("split: lengths or fractions is required")
	}
	return nil
}

// ParquetSchema converts field definitions to a cleave schema.
func ParquetSchema(fields []FieldConfig) (cleave.ParquetSchema, error) {
	schema := cleave.ParquetSchema{Fields: make([]cleave.ParquetField, 0, len(fields))}
	for _, f := range fields {
		typ, err := cleave.ParseParquetType(f.Type)
		if err != nil {
			return cleave.ParquetSchema{}, fmt.Errorf("field %q: %w", f.Name, err)
		}
		schema.Fields = append(schema.Fields, cleave.ParquetField{Name: f.Name, Type: typ, Nullable: f.Nullable})
	}
	return schema, nil
}

func validateFormat(section, format string, schema []FieldConfig) []error {
	switch format {
	case "jsonl", "csv":
		return nil
	case "parquet":
		if len(schema) == 0 {
			return []error{fmt.Errorf("%s.schema is required for parquet", section)}
		}
		if _, err := ParquetSchema(schema); err != nil {
			return []error{fmt.Errorf("%s.schema: %w", section, err)}
		}
		return nil
	default:
		return []error{fmt.Errorf("%s.format %q must be one of jsonl, csv, parquet", section, format)}
	}
}
