// Package jumpinfo holds the compact per-GRIB-message metadata ("JumpInfo")
// that the range extractor (package gribjump) needs to decode value ranges
// without touching the full-field decode path. It is populated once per
// message via a gribcodec.Codec and is otherwise immutable.
package jumpinfo

import (
	"fmt"

	"github.com/ecmwf-go/metkit/bitcodec"
	"github.com/ecmwf-go/metkit/gribcodec"
)

// CurrentSidecarVersion is the sidecar record layout version this build
// writes and the only version it accepts on read.
const CurrentSidecarVersion uint8 = 1

// GridHashSize is the fixed width of the opaque grid geometry fingerprint.
const GridHashSize = 32

// PackingTypeSize is the fixed width of the packing type field as stored in
// the sidecar.
const PackingTypeSize = 16

// ErrUnsupportedEdition is returned by Update when the message reports a
// GRIB edition other than 1 or 2.
var ErrUnsupportedEdition = fmt.Errorf("jumpinfo: unsupported GRIB edition")

// Info is one message's worth of compact metadata, per spec.md §3.
type Info struct {
	version            uint8
	editionNumber      int64
	binaryScaleFactor  int64
	decimalScaleFactor int64
	binaryMultiplier   float64
	decimalMultiplier  float64
	referenceValue     float64
	bitsPerValue       uint64
	offsetBeforeData   uint64
	offsetBeforeBitmap uint64
	numberOfDataPoints uint64
	numberOfValues     uint64
	totalLength        uint64
	msgStartOffset     uint64
	sphericalHarmonics int64
	gridHash           [GridHashSize]byte
	packingType        string
}

// New returns a zero-value Info; call Update to populate it.
func New() *Info { return &Info{} }

// Update populates every field of info by querying the given message handle
// via the external codec, per spec.md §4.2. Unknown editions are rejected
// with ErrUnsupportedEdition.
func (info *Info) Update(msg gribcodec.Message) error {
	edition, err := msg.Long("editionNumber")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading editionNumber: %w", err)
	}
	if edition != 1 && edition != 2 {
		return fmt.Errorf("%w: %d", ErrUnsupportedEdition, edition)
	}

	get := func(key string) (int64, error) { return msg.Long(key) }
	getf := func(key string) (float64, error) { return msg.Double(key) }

	binaryScale, err := get("binaryScaleFactor")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading binaryScaleFactor: %w", err)
	}
	decimalScale, err := get("decimalScaleFactor")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading decimalScaleFactor: %w", err)
	}
	bitsPerValue, err := get("bitsPerValue")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading bitsPerValue: %w", err)
	}
	referenceValue, err := getf("referenceValue")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading referenceValue: %w", err)
	}
	offsetBeforeData, err := get("offsetBeforeData")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading offsetBeforeData: %w", err)
	}
	numberOfDataPoints, err := get("numberOfDataPoints")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading numberOfDataPoints: %w", err)
	}
	numberOfValues, err := get("numberOfValues")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading numberOfValues: %w", err)
	}
	sphericalHarmonics, err := get("sphericalHarmonics")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading sphericalHarmonics: %w", err)
	}
	totalLength, err := get("totalLength")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading totalLength: %w", err)
	}
	md5GridSection, err := msg.String("md5GridSection")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading md5GridSection: %w", err)
	}
	packingType, err := msg.String("packingType")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading packingType: %w", err)
	}

	bitmapPresent, err := get("bitmapPresent")
	if err != nil {
		return fmt.Errorf("jumpinfo: reading bitmapPresent: %w", err)
	}

	var offsetBeforeBitmap int64
	if bitmapPresent != 0 {
		key := "offsetBeforeBitmap"
		if edition == 2 {
			key = "offsetBSection6"
		}
		offsetBeforeBitmap, err = get(key)
		if err != nil {
			return fmt.Errorf("jumpinfo: reading %s: %w", key, err)
		}
	}

	info.version = CurrentSidecarVersion
	info.editionNumber = edition
	info.binaryScaleFactor = binaryScale
	info.decimalScaleFactor = decimalScale
	info.binaryMultiplier = bitcodec.PowLong(2, binaryScale)
	info.decimalMultiplier = bitcodec.PowLong(10, -decimalScale)
	info.referenceValue = referenceValue
	info.bitsPerValue = uint64(bitsPerValue)
	info.offsetBeforeData = uint64(offsetBeforeData)
	info.offsetBeforeBitmap = uint64(offsetBeforeBitmap)
	info.numberOfDataPoints = uint64(numberOfDataPoints)
	info.numberOfValues = uint64(numberOfValues)
	info.totalLength = uint64(totalLength)
	info.sphericalHarmonics = sphericalHarmonics
	copy(info.gridHash[:], md5GridSection)
	info.packingType = packingType

	return nil
}

// SetMsgStartOffset records where this message begins in its containing
// stream; Update does not know this, since the codec only ever sees a
// single message's bytes.
func (info *Info) SetMsgStartOffset(offset uint64) { info.msgStartOffset = offset }

// Accessors. Info is otherwise immutable once populated.

func (info *Info) Version() uint8                { return info.version }
func (info *Info) EditionNumber() int64           { return info.editionNumber }
func (info *Info) BinaryScaleFactor() int64       { return info.binaryScaleFactor }
func (info *Info) DecimalScaleFactor() int64      { return info.decimalScaleFactor }
func (info *Info) BinaryMultiplier() float64      { return info.binaryMultiplier }
func (info *Info) DecimalMultiplier() float64     { return info.decimalMultiplier }
func (info *Info) ReferenceValue() float64        { return info.referenceValue }
func (info *Info) BitsPerValue() uint64           { return info.bitsPerValue }
func (info *Info) OffsetBeforeData() uint64       { return info.offsetBeforeData }
func (info *Info) OffsetBeforeBitmap() uint64     { return info.offsetBeforeBitmap }
func (info *Info) NumberOfDataPoints() uint64     { return info.numberOfDataPoints }
func (info *Info) NumberOfValues() uint64         { return info.numberOfValues }
func (info *Info) TotalLength() uint64            { return info.totalLength }
func (info *Info) MsgStartOffset() uint64         { return info.msgStartOffset }
func (info *Info) SphericalHarmonics() int64      { return info.sphericalHarmonics }
func (info *Info) GridHash() [GridHashSize]byte   { return info.gridHash }
func (info *Info) PackingType() string            { return info.packingType }
func (info *Info) HasBitmap() bool                { return info.offsetBeforeBitmap != 0 }

// Validate checks the invariants spec.md §3 lists. It does not mutate info.
func (info *Info) Validate() error {
	if info.bitsPerValue > 64 {
		return fmt.Errorf("jumpinfo: bitsPerValue %d exceeds 64", info.bitsPerValue)
	}
	if info.HasBitmap() {
		if info.numberOfValues > info.numberOfDataPoints {
			return fmt.Errorf("jumpinfo: numberOfValues %d exceeds numberOfDataPoints %d with bitmap present",
				info.numberOfValues, info.numberOfDataPoints)
		}
	} else if info.numberOfValues != info.numberOfDataPoints {
		return fmt.Errorf("jumpinfo: numberOfValues %d != numberOfDataPoints %d with no bitmap",
			info.numberOfValues, info.numberOfDataPoints)
	}
	return nil
}

// newFromFields constructs an Info directly from already-known field values;
// used by the sidecar reader and by tests that want to build synthetic
// messages without a full gribcodec.Message.
func newFromFields(fields Fields) *Info {
	return &Info{
		version:            fields.Version,
		editionNumber:      fields.EditionNumber,
		binaryScaleFactor:  fields.BinaryScaleFactor,
		decimalScaleFactor: fields.DecimalScaleFactor,
		binaryMultiplier:   bitcodec.PowLong(2, fields.BinaryScaleFactor),
		decimalMultiplier:  bitcodec.PowLong(10, -fields.DecimalScaleFactor),
		referenceValue:     fields.ReferenceValue,
		bitsPerValue:       fields.BitsPerValue,
		offsetBeforeData:   fields.OffsetBeforeData,
		offsetBeforeBitmap: fields.OffsetBeforeBitmap,
		numberOfDataPoints: fields.NumberOfDataPoints,
		numberOfValues:     fields.NumberOfValues,
		totalLength:        fields.TotalLength,
		msgStartOffset:     fields.MsgStartOffset,
		sphericalHarmonics: fields.SphericalHarmonics,
		gridHash:           fields.GridHash,
		packingType:        fields.PackingType,
	}
}

// Fields is the plain-data view of Info used to construct one directly
// (tests, or a caller that already has the values from elsewhere) and by
// the sidecar codec.
type Fields struct {
	Version            uint8
	EditionNumber       int64
	BinaryScaleFactor  int64
	DecimalScaleFactor int64
	ReferenceValue     float64
	BitsPerValue       uint64
	OffsetBeforeData   uint64
	OffsetBeforeBitmap uint64
	NumberOfDataPoints uint64
	NumberOfValues     uint64
	TotalLength        uint64
	MsgStartOffset     uint64
	SphericalHarmonics int64
	GridHash           [GridHashSize]byte
	PackingType        string
}

// FromFields builds an Info from already-known field values.
func FromFields(fields Fields) *Info { return newFromFields(fields) }

// ToFields returns the plain-data view of info, e.g. for the sidecar codec.
func (info *Info) ToFields() Fields {
	return Fields{
		Version:            info.version,
		EditionNumber:      info.editionNumber,
		BinaryScaleFactor:  info.binaryScaleFactor,
		DecimalScaleFactor: info.decimalScaleFactor,
		ReferenceValue:     info.referenceValue,
		BitsPerValue:       info.bitsPerValue,
		OffsetBeforeData:   info.offsetBeforeData,
		OffsetBeforeBitmap: info.offsetBeforeBitmap,
		NumberOfDataPoints: info.numberOfDataPoints,
		NumberOfValues:     info.numberOfValues,
		TotalLength:        info.totalLength,
		MsgStartOffset:     info.msgStartOffset,
		SphericalHarmonics: info.sphericalHarmonics,
		GridHash:           info.gridHash,
		PackingType:        info.packingType,
	}
}
