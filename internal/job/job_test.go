package job

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithecene-io/cleave/cleave"
	"github.com/pithecene-io/cleave/internal/config"
	"github.com/pithecene-io/cleave/internal/logging"
)

// writeAnimals writes n cats followed by m dogs as JSONL.
func writeAnimals(t *testing.T, cats, dogs int) string {
	t.Helper()
	var sb strings.Builder
	id := 0
	for range cats {
		fmt.Fprintf(&sb, "{\"id\":%d,\"label\":\"cat\"}\n", id)
		id++
	}
	for range dogs {
		fmt.Fprintf(&sb, "{\"id\":%d,\"label\":\"dog\"}\n", id)
		id++
	}
	path := filepath.Join(t.TempDir(), "animals.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
	return path
}

func memoryConfig(input string) *config.Config {
	cfg := config.Default()
	cfg.Input.Path = input
	cfg.Output.Store = config.StoreMemory
	return cfg
}

func TestRunStratify(t *testing.T) {
	cfg := memoryConfig(writeAnimals(t, 100, 50))
	cfg.Stratify.Column = "label"
	cfg.Stratify.Fractions = []float64{0.5, 0.5}
	cfg.Metadata["owner"] = "research"

	r, err := NewRunner(t.Context(), cfg, logging.Noop())
	require.NoError(t, err)

	m, err := r.RunStratify(t.Context())
	require.NoError(t, err)

	require.Len(t, m.Splits, 2)
	assert.Equal(t, int64(75), m.Splits[0].RowCount)
	assert.Equal(t, int64(75), m.Splits[1].RowCount)
	assert.Equal(t, "stratify", m.Metadata["command"])
	assert.Equal(t, "research", m.Metadata["owner"])
	assert.Equal(t, []any{"cat", "dog"}, m.Metadata["categories"])

	p, _, err := r.Load(t.Context(), m.RunID)
	require.NoError(t, err)
	first, ok := p.Get(0)
	require.True(t, ok)
	row, err := first.At(50)
	require.NoError(t, err)
	assert.Equal(t, "dog", row["label"], "first category's rows come first")
}

func TestRunStratify_ExplicitCategoriesAndOffset(t *testing.T) {
	cfg := memoryConfig(writeAnimals(t, 10, 10))
	cfg.Stratify.Column = "label"
	cfg.Stratify.Categories = []any{"dog"}
	cfg.Stratify.Fractions = []float64{0.8, 0.2}
	cfg.Stratify.KeyOffset = 5

	r, err := NewRunner(t.Context(), cfg, logging.Noop())
	require.NoError(t, err)

	m, err := r.RunStratify(t.Context())
	require.NoError(t, err)

	require.Len(t, m.Splits, 2)
	assert.Equal(t, 5, m.Splits[0].Key)
	assert.Equal(t, 6, m.Splits[1].Key)
	assert.Equal(t, int64(10), m.RowCount)
}

func TestRunStratify_Errors(t *testing.T) {
	input := writeAnimals(t, 4, 4)

	t.Run("missing column", func(t *testing.T) {
		cfg := memoryConfig(input)
		cfg.Stratify.Column = "species"
		cfg.Stratify.Fractions = []float64{1}
		r, err := NewRunner(t.Context(), cfg, logging.Noop())
		require.NoError(t, err)
		_, err = r.RunStratify(t.Context())
		require.ErrorIs(t, err, cleave.ErrColumnNotFound)
	})

	t.Run("no column configured", func(t *testing.T) {
		r, err := NewRunner(t.Context(), memoryConfig(input), logging.Noop())
		require.NoError(t, err)
		_, err = r.RunStratify(t.Context())
		require.Error(t, err)
	})

	t.Run("missing input file", func(t *testing.T) {
		cfg := memoryConfig(filepath.Join(t.TempDir(), "nope.jsonl"))
		cfg.Stratify.Column = "label"
		cfg.Stratify.Fractions = []float64{1}
		r, err := NewRunner(t.Context(), cfg, logging.Noop())
		require.NoError(t, err)
		_, err = r.RunStratify(t.Context())
		require.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestRunStratify_CSVWithNumericCategories(t *testing.T) {
	dir := t.TempDir()
	var sb strings.Builder
	sb.WriteString("id,label\n")
	for i := range 10 {
		fmt.Fprintf(&sb, "%d,%d\n", i, i%2+1)
	}
	input := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(input, []byte(sb.String()), 0o644))

	cfg, err := config.Parse(strings.NewReader(`
input:
  path: ` + input + `
  format: csv
stratify:
  column: label
  categories: [1, 2]
  fractions: [0.6, 0.4]
output:
  store: memory
`))
	require.NoError(t, err)
	require.Equal(t, []any{1, 2}, cfg.Stratify.Categories)

	r, err := NewRunner(t.Context(), cfg, logging.Noop())
	require.NoError(t, err)
	m, err := r.RunStratify(t.Context())
	require.NoError(t, err)

	require.Len(t, m.Splits, 2)
	assert.Equal(t, int64(10), m.RowCount)
	assert.Equal(t, int64(6), m.Splits[0].RowCount)
	assert.Equal(t, int64(4), m.Splits[1].RowCount)
	assert.Equal(t, []any{"1", "2"}, m.Metadata["categories"])
}

func TestTextCategories(t *testing.T) {
	got := textCategories([]any{1, "a", 2.5, true, nil})
	assert.Equal(t, []any{"1", "a", "2.5", "true", ""}, got)
}

func TestRunSplit_SeededIsReproducible(t *testing.T) {
	input := writeAnimals(t, 6, 4)
	seed := uint64(7)

	run := func() *cleave.Manifest {
		cfg := memoryConfig(input)
		cfg.Split.Fractions = []float64{0.8, 0.2}
		cfg.Split.Seed = &seed
		r, err := NewRunner(t.Context(), cfg, logging.Noop())
		require.NoError(t, err)
		m, err := r.RunSplit(t.Context())
		require.NoError(t, err)
		return m
	}

	m1, m2 := run(), run()
	assert.Equal(t, []int{8, 2}, m1.Metadata["lengths"])
	perm, ok := m1.Metadata["permutation"].([]int)
	require.True(t, ok)
	assert.Len(t, perm, 10)
	assert.Equal(t, m1.Metadata["permutation"], m2.Metadata["permutation"])
	assert.Equal(t, seed, m1.Metadata["seed"])
}

func TestRunSplit_LengthsMustMatch(t *testing.T) {
	cfg := memoryConfig(writeAnimals(t, 3, 3))
	cfg.Split.Lengths = []int{2, 2}

	r, err := NewRunner(t.Context(), cfg, logging.Noop())
	require.NoError(t, err)
	_, err = r.RunSplit(t.Context())
	require.ErrorIs(t, err, cleave.ErrLengthMismatch)
}

func TestRunSplit_CSVToParquetOnFS(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(input, []byte("id;label\n1;a\n2;b\n3;c\n"), 0o644))

	cfg := config.Default()
	cfg.Input.Path = input
	cfg.Input.Format = "csv"
	cfg.Input.CSVDelimiter = ";"
	cfg.Output.Root = filepath.Join(dir, "out")
	cfg.Output.Format = "parquet"
	cfg.Output.Compression = "gzip"
	cfg.Output.Schema = []config.FieldConfig{
		{Name: "id", Type: "string"},
		{Name: "label", Type: "string"},
	}
	cfg.Split.Lengths = []int{2, 1}

	var logs bytes.Buffer
	logCfg := logging.NewConfig()
	logCfg.AddTimestamp = false
	log, err := logging.New(&logs, logCfg)
	require.NoError(t, err)

	r, err := NewRunner(t.Context(), cfg, log)
	require.NoError(t, err)
	m, err := r.RunSplit(t.Context())
	require.NoError(t, err)

	assert.Equal(t, "parquet", m.Codec)
	assert.Equal(t, "gzip", m.Compressor)
	_, err = os.Stat(filepath.Join(cfg.Output.Root, m.Splits[0].Path))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(m.Splits[0].Path, "data.parquet.gz"))

	assert.Contains(t, logs.String(), `msg="Loaded input"`)
	assert.Contains(t, logs.String(), "run_id="+m.RunID)
}

func TestInspect(t *testing.T) {
	cfg := memoryConfig(writeAnimals(t, 2, 2))
	cfg.Split.Lengths = []int{1, 3}

	r, err := NewRunner(t.Context(), cfg, logging.Noop())
	require.NoError(t, err)

	_, err = r.Inspect(t.Context(), "")
	require.ErrorIs(t, err, cleave.ErrNotFound)

	m, err := r.RunSplit(t.Context())
	require.NoError(t, err)

	got, err := r.Inspect(t.Context(), "")
	require.NoError(t, err)
	assert.Equal(t, m.RunID, got.RunID)
	assert.Len(t, got.Metadata["permutation"], 4)

	got, err = r.Inspect(t.Context(), m.RunID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.RowCount)

	_, err = r.Inspect(t.Context(), "missing")
	require.ErrorIs(t, err, cleave.ErrNotFound)

	runs, err := r.Runs(t.Context())
	require.NoError(t, err)
	assert.Equal(t, []string{m.RunID}, runs)
}

func TestNewRunner_InvalidConfig(t *testing.T) {
	_, err := NewRunner(t.Context(), nil, logging.Noop())
	require.Error(t, err)

	cfg := config.Default()
	_, err = NewRunner(t.Context(), cfg, logging.Noop())
	require.Error(t, err, "input path required")
}
