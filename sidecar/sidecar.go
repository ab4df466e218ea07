// Package sidecar implements the flat, fixed-stride per-message metadata
// file described in spec.md §4.4/§6: a stream of fixed-size JumpInfo
// records concatenated in message order, addressed by ordinal with no
// index or framing of its own.
package sidecar

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ecmwf-go/metkit/bitcodec"
	"github.com/ecmwf-go/metkit/jumpinfo"
)

// MetadataSize is the fixed stride of one record, in bytes: it defines the
// layout version-1 on-disk format and must never change within version 1.
//
// The 14 eight-byte scalars are EditionNumber, BinaryScaleFactor,
// DecimalScaleFactor, binaryMultiplier, decimalMultiplier, ReferenceValue,
// BitsPerValue, OffsetBeforeData, OffsetBeforeBitmap, NumberOfDataPoints,
// NumberOfValues, TotalLength, MsgStartOffset, and SphericalHarmonics.
const MetadataSize = 1 + 8*14 + jumpinfo.GridHashSize + jumpinfo.PackingTypeSize

// ErrVersionMismatch is returned by Read when a record's version byte does
// not match jumpinfo.CurrentSidecarVersion.
var ErrVersionMismatch = fmt.Errorf("sidecar: version mismatch")

// native is the host-native byte order version 1 of this format uses;
// a portable layout is left to a future sidecar version (spec.md §6).
var native = binary.NativeEndian

// Write appends (or, if append is false, truncates and writes) a single
// JumpInfo record to path.
func Write(path string, info *jumpinfo.Info, append bool) error {
	flags := os.O_WRONLY | os.O_CREATE
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("sidecar: opening %s: %w", path, err)
	}
	defer f.Close()

	buf := encode(info.ToFields())
	if _, err := f.Write(buf[:]); err != nil {
		return fmt.Errorf("sidecar: writing %s: %w", path, err)
	}
	return nil
}

// Read seeks to msgIndex*MetadataSize in path, reads one record, and
// returns its JumpInfo. It rejects a version mismatch or a record that
// would run past end-of-file.
func Read(path string, msgIndex int) (*jumpinfo.Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sidecar: opening %s: %w", path, err)
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("sidecar: seeking end of %s: %w", path, err)
	}
	offset := int64(msgIndex) * int64(MetadataSize)
	if offset < 0 || offset+int64(MetadataSize) > size {
		return nil, fmt.Errorf("sidecar: record %d in %s runs past end of file (size %d)", msgIndex, path, size)
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("sidecar: seeking to record %d in %s: %w", msgIndex, path, err)
	}

	var buf [MetadataSize]byte
	if _, err := io.ReadFull(f, buf[:]); err != nil {
		return nil, fmt.Errorf("sidecar: reading record %d in %s: %w", msgIndex, path, err)
	}

	fields, err := decode(buf)
	if err != nil {
		return nil, err
	}
	return jumpinfo.FromFields(fields), nil
}

func encode(fields jumpinfo.Fields) [MetadataSize]byte {
	var buf [MetadataSize]byte
	off := 0
	putU8 := func(v uint8) { buf[off] = v; off++ }
	putI64 := func(v int64) { native.PutUint64(buf[off:], uint64(v)); off += 8 }
	putU64 := func(v uint64) { native.PutUint64(buf[off:], v); off += 8 }
	putF64 := func(v float64) { native.PutUint64(buf[off:], math.Float64bits(v)); off += 8 }

	putU8(jumpinfo.CurrentSidecarVersion)
	putI64(fields.EditionNumber)
	putI64(fields.BinaryScaleFactor)
	putI64(fields.DecimalScaleFactor)
	// binaryMultiplier / decimalMultiplier are derived; store the values
	// the fields carried so the file is self-describing, even though Read
	// recomputes them rather than trusting these bytes.
	putF64(bitcodec.PowLong(2, fields.BinaryScaleFactor))
	putF64(bitcodec.PowLong(10, -fields.DecimalScaleFactor))
	putF64(fields.ReferenceValue)
	putU64(fields.BitsPerValue)
	putU64(fields.OffsetBeforeData)
	putU64(fields.OffsetBeforeBitmap)
	putU64(fields.NumberOfDataPoints)
	putU64(fields.NumberOfValues)
	putU64(fields.TotalLength)
	putU64(fields.MsgStartOffset)
	putI64(fields.SphericalHarmonics)
	copy(buf[off:off+jumpinfo.GridHashSize], fields.GridHash[:])
	off += jumpinfo.GridHashSize
	copy(buf[off:off+jumpinfo.PackingTypeSize], []byte(fields.PackingType))

	return buf
}

func decode(buf [MetadataSize]byte) (jumpinfo.Fields, error) {
	off := 0
	getU8 := func() uint8 { v := buf[off]; off++; return v }
	getI64 := func() int64 { v := int64(native.Uint64(buf[off:])); off += 8; return v }
	getU64 := func() uint64 { v := native.Uint64(buf[off:]); off += 8; return v }
	getF64 := func() float64 { v := math.Float64frombits(native.Uint64(buf[off:])); off += 8; return v }

	version := getU8()
	if version != jumpinfo.CurrentSidecarVersion {
		return jumpinfo.Fields{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, version, jumpinfo.CurrentSidecarVersion)
	}

	var fields jumpinfo.Fields
	fields.Version = version
	fields.EditionNumber = getI64()
	fields.BinaryScaleFactor = getI64()
	fields.DecimalScaleFactor = getI64()
	_ = getF64() // stored binaryMultiplier, recomputed by jumpinfo.FromFields
	_ = getF64() // stored decimalMultiplier, recomputed by jumpinfo.FromFields
	fields.ReferenceValue = getF64()
	fields.BitsPerValue = getU64()
	fields.OffsetBeforeData = getU64()
	fields.OffsetBeforeBitmap = getU64()
	fields.NumberOfDataPoints = getU64()
	fields.NumberOfValues = getU64()
	fields.TotalLength = getU64()
	fields.MsgStartOffset = getU64()
	fields.SphericalHarmonics = getI64()
	copy(fields.GridHash[:], buf[off:off+jumpinfo.GridHashSize])
	off += jumpinfo.GridHashSize
	fields.PackingType = trimZero(buf[off : off+jumpinfo.PackingTypeSize])

	return fields, nil
}

func trimZero(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
