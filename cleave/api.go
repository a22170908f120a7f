// Package cleave partitions datasets into disjoint splits for training and
// evaluation workflows.
//
// Cleave provides two splitters: a uniform splitter that cuts any indexable
// collection into length-specified views over a (random or caller-supplied)
// permutation, and a stratified splitter that divides a record table by a
// categorical column so that every category contributes to every split in the
// same proportion. The splitters are pure in-memory transformations; persisting
// split results is handled separately by Exporter.
package cleave

import (
	"context"
	"io"
)

// -----------------------------------------------------------------------------
// Core types
// -----------------------------------------------------------------------------

// Record is a single table row keyed by column name.
type Record = map[string]any

// Metadata holds user-defined key-value pairs stored with an export.
type Metadata map[string]any

// Indexed is a collection with integer-indexed element access.
//
// At returns an error rather than panicking for positions outside [0, Len()).
type Indexed[T any] interface {
	// Len returns the number of elements.
	Len() int

	// At returns the element at position i.
	At(i int) (T, error)
}

// -----------------------------------------------------------------------------
// Store interface
// -----------------------------------------------------------------------------

// Store abstracts the underlying object storage system.
//
// Implementations may target filesystems, S3, or other object stores.
// Put never overwrites: writing an existing path returns ErrPathExists.
type Store interface {
	// Put writes data to the given path.
	Put(ctx context.Context, path string, r io.Reader) error

	// Get retrieves data from the given path.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Exists checks whether a path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns paths under the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the path if it exists.
	Delete(ctx context.Context, path string) error
}

// StoreFactory constructs a Store. Exporters and readers take a factory so the
// store is created lazily and construction errors surface at one place.
type StoreFactory func() (Store, error)

// -----------------------------------------------------------------------------
// Codec interface
// -----------------------------------------------------------------------------

// Codec serializes whole tables.
//
// Codecs are pluggable and orthogonal to storage and compression.
type Codec interface {
	// Name returns the codec identifier (for example, "jsonl" or "parquet").
	Name() string

	// Extension returns the file extension including the dot (for example, ".jsonl").
	Extension() string

	// Encode writes every row of t to w.
	Encode(w io.Writer, t *Table) error

	// Decode reads a table from r.
	Decode(r io.Reader) (*Table, error)
}

// -----------------------------------------------------------------------------
// Compressor interface
// -----------------------------------------------------------------------------

// Compressor handles compression and decompression of data streams.
type Compressor interface {
	// Name returns the compressor identifier (for example, "gzip", "zstd", "noop").
	Name() string

	// Extension returns the file extension (for example, ".gz", ".zst", "").
	Extension() string

	// Compress wraps a writer with compression.
	Compress(w io.Writer) (io.WriteCloser, error)

	// Decompress wraps a reader with decompression.
	Decompress(r io.Reader) (io.ReadCloser, error)
}

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

// Error sentinel values for common conditions.
var (
	// ErrLengthMismatch indicates requested split lengths do not add up to the
	// size of the collection being split.
	ErrLengthMismatch = errLengthMismatch{}

	// ErrColumnNotFound indicates a table lacks a required column.
	ErrColumnNotFound = errColumnNotFound{}

	// ErrOutOfRange indicates a position outside a collection's bounds.
	ErrOutOfRange = errOutOfRange{}

	// ErrInvalidFractions indicates split fractions that are empty, non-positive,
	// or do not sum to 1.
	ErrInvalidFractions = errInvalidFractions{}

	// ErrDuplicateCategory indicates a category listed more than once in a
	// single stratified split.
	ErrDuplicateCategory = errDuplicateCategory{}

	// ErrNotFound indicates a requested resource does not exist.
	ErrNotFound = errNotFound{}

	// ErrPathExists indicates an attempt to write to an existing path.
	ErrPathExists = errPathExists{}
)

type errLengthMismatch struct{}

func (errLengthMismatch) Error() string { return "split lengths do not match dataset length" }

type errColumnNotFound struct{}

func (errColumnNotFound) Error() string { return "column not found" }

type errOutOfRange struct{}

func (errOutOfRange) Error() string { return "index out of range" }

type errInvalidFractions struct{}

func (errInvalidFractions) Error() string { return "invalid split fractions" }

type errDuplicateCategory struct{}

func (errDuplicateCategory) Error() string { return "duplicate category" }

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

type errPathExists struct{}

func (errPathExists) Error() string { return "path exists" }
