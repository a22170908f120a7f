package cleave

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/parquet-go/parquet-go"
)

// -----------------------------------------------------------------------------
// Parquet schema
// -----------------------------------------------------------------------------

// ParquetType enumerates supported Parquet column types.
type ParquetType int

// Parquet column types.
const (
	ParquetInt32 ParquetType = iota
	ParquetInt64
	ParquetFloat32
	ParquetFloat64
	ParquetString
	ParquetBool
	ParquetBytes
	ParquetTimestamp
	parquetTypeMax
)

var parquetTypeNames = map[string]ParquetType{
	"int32":     ParquetInt32,
	"int64":     ParquetInt64,
	"float32":   ParquetFloat32,
	"float64":   ParquetFloat64,
	"string":    ParquetString,
	"bool":      ParquetBool,
	"bytes":     ParquetBytes,
	"timestamp": ParquetTimestamp,
}

// ParseParquetType maps a type name such as "int64" or "timestamp" to its
// ParquetType.
func ParseParquetType(name string) (ParquetType, error) {
	t, ok := parquetTypeNames[name]
	if !ok {
		return 0, fmt.Errorf("%w: unknown parquet type %q", ErrSchemaViolation, name)
	}
	return t, nil
}

// ParquetField defines one column of a Parquet schema.
type ParquetField struct {
	Name     string
	Type     ParquetType
	Nullable bool
}

// ParquetSchema lists the columns of a Parquet-encoded table. Decoded tables
// use the field order given here.
type ParquetSchema struct {
	Fields []ParquetField
}

// ParquetCompression selects Parquet's internal page compression.
type ParquetCompression int

// Parquet page compression options.
const (
	ParquetCompressionNone ParquetCompression = iota
	ParquetCompressionSnappy
	ParquetCompressionGzip
	ParquetCompressionZstd
)

// ParquetOption configures the Parquet codec.
type ParquetOption func(*parquetCodec)

// WithParquetCompression sets internal page compression. Default: Snappy.
func WithParquetCompression(c ParquetCompression) ParquetOption {
	return func(p *parquetCodec) {
		p.compression = c
	}
}

// Parquet errors.
var (
	// ErrSchemaViolation indicates a schema definition or a row that does not
	// conform to it.
	ErrSchemaViolation = errors.New("parquet: schema violation")

	// ErrInvalidFormat indicates input that is not a readable Parquet file.
	ErrInvalidFormat = errors.New("parquet: invalid format")
)

// -----------------------------------------------------------------------------
// Parquet codec
// -----------------------------------------------------------------------------

type parquetCodec struct {
	fields      []ParquetField
	compression ParquetCompression
	schema      *parquet.Schema
	// physical maps a field name to its column index; parquet-go orders
	// group columns by name, not declaration order.
	physical map[string]int
}

// NewParquetCodec creates a Parquet codec for tables matching schema.
//
// Columns not in the schema are dropped on encode. A nil or missing value in a
// non-nullable column is a schema violation. The whole table is written as a
// single row group, so the codec buffers the file in memory.
func NewParquetCodec(schema ParquetSchema, opts ...ParquetOption) (Codec, error) {
	if len(schema.Fields) == 0 {
		return nil, fmt.Errorf("%w: schema has no fields", ErrSchemaViolation)
	}
	seen := make(map[string]bool, len(schema.Fields))
	group := make(parquet.Group, len(schema.Fields))
	for _, f := range schema.Fields {
		if f.Name == "" {
			return nil, fmt.Errorf("%w: field name cannot be empty", ErrSchemaViolation)
		}
		if f.Type < 0 || f.Type >= parquetTypeMax {
			return nil, fmt.Errorf("%w: invalid type %d for field %q", ErrSchemaViolation, f.Type, f.Name)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrSchemaViolation, f.Name)
		}
		seen[f.Name] = true
		group[f.Name] = parquetNode(f)
	}

	c := &parquetCodec{
		fields:      append([]ParquetField(nil), schema.Fields...),
		compression: ParquetCompressionSnappy,
		schema:      parquet.NewSchema("row", group),
		physical:    make(map[string]int, len(schema.Fields)),
	}
	for _, opt := range opts {
		opt(c)
	}
	for i, f := range c.schema.Fields() {
		c.physical[f.Name()] = i
	}
	return c, nil
}

func (c *parquetCodec) Name() string {
	return "parquet"
}

func (c *parquetCodec) Extension() string {
	return ".parquet"
}

func (c *parquetCodec) Encode(w io.Writer, t *Table) error {
	buf := parquet.NewBuffer(c.schema)
	for i, rec := range t.rows {
		row, err := c.toRow(rec, i)
		if err != nil {
			return err
		}
		if _, err := buf.WriteRows([]parquet.Row{row}); err != nil {
			return fmt.Errorf("parquet: write row %d: %w", i, err)
		}
	}

	var out bytes.Buffer
	pw := parquet.NewWriter(&out, c.schema, c.compressionOption())
	if _, err := pw.WriteRowGroup(buf); err != nil {
		_ = pw.Close()
		return fmt.Errorf("parquet: write row group: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("parquet: close writer: %w", err)
	}

	_, err := io.Copy(w, &out)
	return err
}

func (c *parquetCodec) Decode(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("parquet: read file: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrInvalidFormat
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}

	columns := make([]string, len(c.fields))
	for i, f := range c.fields {
		columns[i] = f.Name
	}
	table := &Table{columns: columns}
	if file.NumRows() == 0 {
		return table, nil
	}

	reader := parquet.NewReader(file)
	defer func() { _ = reader.Close() }()

	table.rows = make([]Record, 0, file.NumRows())
	batch := make([]parquet.Row, 128)
	for {
		n, err := reader.ReadRows(batch)
		for _, row := range batch[:n] {
			table.rows = append(table.rows, c.fromRow(row))
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: read rows: %w", ErrInvalidFormat, err)
		}
	}
	return table, nil
}

func (c *parquetCodec) compressionOption() parquet.WriterOption {
	switch c.compression {
	case ParquetCompressionSnappy:
		return parquet.Compression(&parquet.Snappy)
	case ParquetCompressionGzip:
		return parquet.Compression(&parquet.Gzip)
	case ParquetCompressionZstd:
		return parquet.Compression(&parquet.Zstd)
	default:
		return parquet.Compression(&parquet.Uncompressed)
	}
}

func (c *parquetCodec) toRow(rec Record, index int) (parquet.Row, error) {
	row := make(parquet.Row, len(c.fields))
	for _, f := range c.fields {
		col := c.physical[f.Name]
		v, ok := rec[f.Name]
		if !ok || v == nil {
			if !f.Nullable {
				return nil, fmt.Errorf("%w: row %d missing required field %q", ErrSchemaViolation, index, f.Name)
			}
			row[col] = parquet.NullValue().Level(0, 0, col)
			continue
		}
		pv, err := toParquetValue(v, f)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d field %q: %w", ErrSchemaViolation, index, f.Name, err)
		}
		def := 0
		if f.Nullable {
			def = 1
		}
		row[col] = pv.Level(0, def, col)
	}
	return row, nil
}

func (c *parquetCodec) fromRow(row parquet.Row) Record {
	rec := make(Record, len(c.fields))
	for _, f := range c.fields {
		col := c.physical[f.Name]
		if col >= len(row) || row[col].IsNull() {
			rec[f.Name] = nil
			continue
		}
		rec[f.Name] = fromParquetValue(row[col], f.Type)
	}
	return rec
}

// int32 and float64-exact integer bounds.
const (
	minInt32     = -1 << 31
	maxInt32     = 1<<31 - 1
	maxSafeInt64 = 1 << 53
)

func toParquetValue(v any, f ParquetField) (parquet.Value, error) {
	switch f.Type {
	case ParquetInt32:
		n, err := integerValue(v, minInt32, maxInt32)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.Int32Value(int32(n)), nil
	case ParquetInt64:
		n, err := integerValue(v, math.MinInt64, math.MaxInt64)
		if err != nil {
			return parquet.Value{}, err
		}
		return parquet.Int64Value(n), nil
	case ParquetFloat32:
		x, ok := numericValue(v)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected number, got %T", v)
		}
		return parquet.FloatValue(float32(x)), nil
	case ParquetFloat64:
		x, ok := numericValue(v)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected number, got %T", v)
		}
		return parquet.DoubleValue(x), nil
	case ParquetString:
		s, ok := v.(string)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected string, got %T", v)
		}
		return parquet.ByteArrayValue([]byte(s)), nil
	case ParquetBool:
		b, ok := v.(bool)
		if !ok {
			return parquet.Value{}, fmt.Errorf("expected bool, got %T", v)
		}
		return parquet.BooleanValue(b), nil
	case ParquetBytes:
		switch b := v.(type) {
		case []byte:
			return parquet.ByteArrayValue(b), nil
		case string:
			return parquet.ByteArrayValue([]byte(b)), nil
		}
		return parquet.Value{}, fmt.Errorf("expected []byte, got %T", v)
	case ParquetTimestamp:
		switch ts := v.(type) {
		case time.Time:
			return parquet.Int64Value(ts.UnixNano()), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return parquet.Value{}, fmt.Errorf("invalid timestamp: %w", err)
			}
			return parquet.Int64Value(parsed.UnixNano()), nil
		}
		return parquet.Value{}, fmt.Errorf("expected time.Time, got %T", v)
	default:
		return parquet.Value{}, fmt.Errorf("unknown type %d", f.Type)
	}
}

// integerValue accepts Go integers and integral float values (JSON numbers)
// within [lo, hi].
func integerValue(v any, lo, hi int64) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		return unsignedValue(uint64(x), hi)
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint64:
		return unsignedValue(x, hi)
	case float32:
		return floatIntegerValue(float64(x), lo, hi)
	case float64:
		return floatIntegerValue(x, lo, hi)
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("value %d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}

func fromParquetValue(v parquet.Value, t ParquetType) any {
	switch t {
	case ParquetInt32:
		return v.Int32()
	case ParquetInt64:
		return v.Int64()
	case ParquetFloat32:
		return v.Float()
	case ParquetFloat64:
		return v.Double()
	case ParquetString:
		return string(v.ByteArray())
	case ParquetBool:
		return v.Boolean()
	case ParquetBytes:
		return bytes.Clone(v.ByteArray())
	case ParquetTimestamp:
		return time.Unix(0, v.Int64()).UTC()
	default:
		return nil
	}
}

func parquetNode(f ParquetField) parquet.Node {
	var node parquet.Node
	switch f.Type {
	case ParquetInt32:
		node = parquet.Int(32)
	case ParquetInt64:
		node = parquet.Int(64)
	case ParquetFloat32:
		node = parquet.Leaf(parquet.FloatType)
	case ParquetFloat64:
		node = parquet.Leaf(parquet.DoubleType)
	case ParquetString:
		node = parquet.String()
	case ParquetBool:
		node = parquet.Leaf(parquet.BooleanType)
	case ParquetBytes:
		node = parquet.Leaf(parquet.ByteArrayType)
	case ParquetTimestamp:
		node = parquet.Timestamp(parquet.Nanosecond)
	}
	if f.Nullable {
		node = parquet.Optional(node)
	}
	return node
}

func unsignedValue(u uint64, hi int64) (int64, error) {
	if u > uint64(hi) {
		return 0, fmt.Errorf("value %d out of range [0, %d]", u, hi)
	}
	return int64(u), nil
}

func floatIntegerValue(x float64, lo, hi int64) (int64, error) {
	if math.Trunc(x) != x {
		return 0, fmt.Errorf("float %v is not an integer", x)
	}
	if x < -maxSafeInt64 || x > maxSafeInt64 {
		return 0, fmt.Errorf("value %v exceeds exact float64 integer range", x)
	}
	n := int64(x)
	if n < lo || n > hi {
		return 0, fmt.Errorf("value %d out of range [%d, %d]", n, lo, hi)
	}
	return n, nil
}
