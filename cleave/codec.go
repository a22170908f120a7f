package cleave

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

const maxScanTokenSize = 10 * 1024 * 1024 // 10MB

// -----------------------------------------------------------------------------
// JSONL Codec
// -----------------------------------------------------------------------------

// jsonlCodec implements Codec using JSON Lines format.
type jsonlCodec struct{}

// NewJSONLCodec creates a JSONL (JSON Lines) codec.
//
// Each row is written as one JSON object with keys in column order. Decoding
// derives the column order from the order keys first appear in the input.
// JSON numbers decode as float64.
func NewJSONLCodec() Codec {
	return &jsonlCodec{}
}

func (j *jsonlCodec) Name() string {
	return "jsonl"
}

func (j *jsonlCodec) Extension() string {
	return ".jsonl"
}

func (j *jsonlCodec) Encode(w io.Writer, t *Table) error {
	stream := jsonCodec.BorrowStream(w)
	defer jsonCodec.ReturnStream(stream)

	for _, row := range t.rows {
		stream.WriteObjectStart()
		first := true
		for _, col := range t.columns {
			v, ok := row[col]
			if !ok {
				continue
			}
			if !first {
				stream.WriteMore()
			}
			first = false
			stream.WriteObjectField(col)
			stream.WriteVal(v)
		}
		stream.WriteObjectEnd()
		stream.WriteRaw("\n")
		if stream.Error != nil {
			return stream.Error
		}
		if err := stream.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (j *jsonlCodec) Decode(r io.Reader) (*Table, error) {
	var columns []string
	seen := make(map[string]bool)
	var rows []Record

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanTokenSize)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		rec, err := decodeObject(data, func(field string) {
			if !seen[field] {
				seen[field] = true
				columns = append(columns, field)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("jsonl: line %d: %w", line, err)
		}
		rows = append(rows, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return &Table{columns: columns, rows: rows}, nil
}

// decodeObject reads a single JSON object, reporting each key in document order.
func decodeObject(data []byte, onField func(string)) (Record, error) {
	iter := jsonCodec.BorrowIterator(data)
	defer jsonCodec.ReturnIterator(iter)

	if iter.WhatIsNext() != jsoniter.ObjectValue {
		return nil, errors.New("expected JSON object")
	}

	rec := make(Record)
	ok := iter.ReadObjectCB(func(it *jsoniter.Iterator, field string) bool {
		onField(field)
		rec[field] = it.Read()
		return it.Error == nil
	})
	if !ok || iter.Error != nil {
		if iter.Error != nil {
			return nil, iter.Error
		}
		return nil, errors.New("malformed JSON object")
	}
	return rec, nil
}

// -----------------------------------------------------------------------------
// CSV Codec
// -----------------------------------------------------------------------------

// CSVOption configures the CSV codec.
type CSVOption func(*csvCodec)

// WithCSVDelimiter sets the field delimiter. Default: ','.
func WithCSVDelimiter(r rune) CSVOption {
	return func(c *csvCodec) {
		c.delimiter = r
	}
}

// csvCodec implements Codec using CSV with a header row.
type csvCodec struct {
	delimiter rune
}

// NewCSVCodec creates a CSV codec.
//
// The first row holds column names. Every decoded value is a string; missing
// and nil values encode as empty fields.
func NewCSVCodec(opts ...CSVOption) Codec {
	c := &csvCodec{delimiter: ','}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *csvCodec) Name() string {
	return "csv"
}

func (c *csvCodec) Extension() string {
	return ".csv"
}

func (c *csvCodec) Encode(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	cw.Comma = c.delimiter

	if err := cw.Write(t.columns); err != nil {
		return err
	}
	fields := make([]string, len(t.columns))
	for _, row := range t.rows {
		for i, col := range t.columns {
			fields[i] = formatCSVValue(row[col])
		}
		if err := cw.Write(fields); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (c *csvCodec) Decode(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = c.delimiter

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return &Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: header: %w", err)
	}
	cr.FieldsPerRecord = len(header)

	var rows []Record
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		rec := make(Record, len(header))
		for i, col := range header {
			rec[col] = fields[i]
		}
		rows = append(rows, rec)
	}
	return &Table{columns: header, rows: rows}, nil
}

func formatCSVValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// -----------------------------------------------------------------------------
// Lookup
// -----------------------------------------------------------------------------

// CodecByName returns the schemaless codec registered under name ("jsonl" or
// "csv"). Parquet needs a schema and is built with NewParquetCodec.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "jsonl":
		return NewJSONLCodec(), nil
	case "csv":
		return NewCSVCodec(), nil
	case "parquet":
		return nil, errors.New("cleave: parquet codec requires a schema; use NewParquetCodec")
	default:
		return nil, fmt.Errorf("cleave: unknown codec %q", name)
	}
}
