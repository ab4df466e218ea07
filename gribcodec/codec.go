// Package gribcodec defines the small external seam the core consumes to
// populate JumpInfo from a GRIB message. The core never links against a
// specific codec; any implementation satisfying Codec can be used,
// including the in-process fake under internal/testcodec used by this
// module's own tests.
package gribcodec

import "io"

// Message is an opened GRIB message handle, positioned at a byte window
// within a parent stream. It must be closed by the caller.
type Message interface {
	// Long returns the value of an integer-valued key.
	Long(key string) (int64, error)
	// Double returns the value of a float-valued key.
	Double(key string) (float64, error)
	// String returns the value of a string-valued key.
	String(key string) (string, error)
	// Size returns the number of elements an array-valued key holds.
	Size(key string) (int64, error)
	// Close releases any resources held by the message.
	Close() error
}

// Codec opens GRIB messages from a byte window at a given offset within a
// seekable source.
type Codec interface {
	// Open parses a single GRIB message starting at offset within r and
	// returns a handle for key lookups. r is read through io.ReaderAt only;
	// the source is supplied by the caller and outlives the Message.
	Open(r io.ReaderAt, offset int64) (Message, error)
}

// ErrKeyNotFound is returned by Message accessors when the named key is
// absent from the message being queried.
type ErrKeyNotFound struct{ Key string }

func (e *ErrKeyNotFound) Error() string { return "gribcodec: key not found: " + e.Key }
