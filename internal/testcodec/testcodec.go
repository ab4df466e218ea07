// Package testcodec is a minimal, dependency-free gribcodec.Codec used by
// this module's own tests to build synthetic GRIB-2 messages in memory,
// without needing a real decoding engine. Its section walker has the
// length-prefixed, switch-on-section-number shape of a GRIB field decoder,
// cut down to the handful of keys jumpinfo
// and gribjump actually read.
package testcodec

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/ecmwf-go/metkit/gribcodec"
)

// Builder assembles a synthetic GRIB-2 message byte by byte, section by
// section, for use as test fixture data.
type Builder struct {
	edition            byte
	binaryScaleFactor  int16
	decimalScaleFactor int16
	bitsPerValue       uint8
	referenceValue     float32
	templateNumber     uint16
	gridHash           string
	numberOfDataPoints uint32
	numberOfValues     uint32
	bitmap             []byte // nil = no bitmap section
	packedData         []byte
}

// NewBuilder returns a Builder with the field defaults of a plain,
// no-bitmap, simple-packed message; override via the With* methods.
func NewBuilder() *Builder {
	return &Builder{
		edition:        2,
		templateNumber: 0,
		gridHash:       "0000000000000000",
		packedData:     []byte{0},
	}
}

func (b *Builder) WithEdition(e byte) *Builder                    { b.edition = e; return b }
func (b *Builder) WithScaleFactors(binary_, decimal int16) *Builder {
	b.binaryScaleFactor, b.decimalScaleFactor = binary_, decimal
	return b
}
func (b *Builder) WithBitsPerValue(n uint8) *Builder      { b.bitsPerValue = n; return b }
func (b *Builder) WithReferenceValue(v float32) *Builder  { b.referenceValue = v; return b }
func (b *Builder) WithTemplateNumber(n uint16) *Builder   { b.templateNumber = n; return b }
func (b *Builder) WithGridHash(hash string) *Builder      { b.gridHash = hash; return b }
func (b *Builder) WithDataPoints(total, present uint32) *Builder {
	b.numberOfDataPoints, b.numberOfValues = total, present
	return b
}
func (b *Builder) WithBitmap(bits []byte) *Builder { b.bitmap = bits; return b }
func (b *Builder) WithPackedData(raw []byte) *Builder { b.packedData = raw; return b }

// packingTypeFor mirrors the teacher's template-number-to-name mapping.
func packingTypeFor(templateNumber uint16) string {
	if templateNumber == 53 {
		return "grid_complex_spatial_differencing"
	}
	return "grid_simple"
}

func section(num byte, payload []byte) []byte {
	buf := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(5+len(payload)))
	buf[4] = num
	copy(buf[5:], payload)
	return buf
}

// Build assembles the message and returns its bytes, the byte offset into
// those bytes at which packed data begins, and the byte offset at which the
// bitmap begins (0 if WithBitmap was never called).
func (b *Builder) Build() (msg []byte, offsetBeforeData uint64, offsetBeforeBitmap uint64) {
	var buf []byte
	buf = append(buf, []byte("GRIB")...)
	buf = append(buf, 0, 0, 0, b.edition) // reserved (2), discipline, edition
	buf = append(buf, make([]byte, 8)...) // totalLength placeholder, patched below

	sec1 := make([]byte, 16)
	buf = append(buf, section(1, sec1)...)

	sec3 := make([]byte, 8)
	copy(sec3, b.gridHash)
	buf = append(buf, section(3, sec3)...)

	sec4 := make([]byte, 2)
	buf = append(buf, section(4, sec4)...)

	sec5 := make([]byte, 15)
	binary.BigEndian.PutUint32(sec5[0:4], b.numberOfValues)
	binary.BigEndian.PutUint16(sec5[4:6], b.templateNumber)
	sec5refBits := math.Float32bits(b.referenceValue)
	binary.BigEndian.PutUint32(sec5[6:10], sec5refBits)
	binary.BigEndian.PutUint16(sec5[10:12], encodeScaleFactor(b.binaryScaleFactor))
	binary.BigEndian.PutUint16(sec5[12:14], encodeScaleFactor(b.decimalScaleFactor))
	sec5[14] = b.bitsPerValue
	buf = append(buf, section(5, sec5)...)

	if b.bitmap != nil {
		buf = append(buf, section(6, append([]byte{0x00}, b.bitmap...))...)
		offsetBeforeBitmap = uint64(len(buf) - len(b.bitmap))
	} else {
		buf = append(buf, section(6, []byte{0xFF})...)
	}

	buf = append(buf, section(7, b.packedData)...)
	offsetBeforeData = uint64(len(buf) - len(b.packedData))

	buf = append(buf, []byte("7777")...)

	binary.BigEndian.PutUint64(buf[8:16], uint64(len(buf)))
	return buf, offsetBeforeData, offsetBeforeBitmap
}

func encodeScaleFactor(v int16) uint16 {
	if v < 0 {
		return uint16(-v) | 0x8000
	}
	return uint16(v)
}

func decodeScaleFactor(raw uint16) int16 {
	magnitude := int16(raw & 0x7FFF)
	if raw&0x8000 != 0 {
		return -magnitude
	}
	return magnitude
}

// Codec is a gribcodec.Codec over messages produced by Builder.
type Codec struct{}

// Message is the gribcodec.Message handle Codec.Open returns.
type Message struct {
	edition            int64
	binaryScaleFactor  int64
	decimalScaleFactor int64
	bitsPerValue       int64
	referenceValue     float64
	packingType        string
	gridHash           string
	numberOfDataPoints int64
	numberOfValues     int64
	totalLength        int64
	bitmapPresent      int64
	offsetBeforeBitmap int64
	offsetBSection6    int64
	offsetBeforeData   int64
}

// Open walks msg's sections starting at offset and returns the populated
// Message. It only understands the subset of GRIB-2 that Builder emits. r
// must additionally implement Size() int64 (as *bytes.Reader does), since
// a single GRIB message carries its own total length only after it has
// already been read.
func (Codec) Open(r io.ReaderAt, offset int64) (gribcodec.Message, error) {
	size, err := readerAtSize(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size-offset)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("testcodec: reading message: %w", err)
	}
	if len(buf) < 16 || string(buf[0:4]) != "GRIB" {
		return nil, fmt.Errorf("testcodec: missing GRIB magic")
	}

	msg := &Message{
		edition:     int64(buf[7]),
		totalLength: int64(binary.BigEndian.Uint64(buf[8:16])),
	}

	pos := 16
	for pos < len(buf) {
		if pos+4 <= len(buf) && string(buf[pos:min(pos+4, len(buf))]) == "7777" {
			break
		}
		if pos+5 > len(buf) {
			return nil, fmt.Errorf("testcodec: truncated section header at %d", pos)
		}
		sLen := int(binary.BigEndian.Uint32(buf[pos : pos+4]))
		sNum := buf[pos+4]
		sec := buf[pos : pos+sLen]

		switch sNum {
		case 3:
			msg.gridHash = trimZero(sec[5:13])
		case 5:
			t := sec[5:]
			msg.numberOfValues = int64(binary.BigEndian.Uint32(t[0:4]))
			templateNumber := binary.BigEndian.Uint16(t[4:6])
			msg.packingType = packingTypeFor(templateNumber)
			msg.referenceValue = float64(math.Float32frombits(binary.BigEndian.Uint32(t[6:10])))
			msg.binaryScaleFactor = int64(decodeScaleFactor(binary.BigEndian.Uint16(t[10:12])))
			msg.decimalScaleFactor = int64(decodeScaleFactor(binary.BigEndian.Uint16(t[12:14])))
			msg.bitsPerValue = int64(t[14])
		case 6:
			indicator := sec[5]
			if indicator == 0x00 {
				msg.bitmapPresent = 1
				msg.offsetBeforeBitmap = int64(offset) + int64(pos) + 6
				msg.offsetBSection6 = msg.offsetBeforeBitmap
			}
		case 7:
			msg.offsetBeforeData = int64(offset) + int64(pos) + 5
		}
		pos += sLen
	}
	// Section 5 only ever carries numberOfValues (the packed-point count);
	// numberOfDataPoints (the grid point count) defaults to the same value
	// and callers needing a bitmap message with missing points override it
	// via Message.SetNumberOfDataPoints.
	msg.numberOfDataPoints = msg.numberOfValues
	return msg, nil
}

func trimZero(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (m *Message) Long(key string) (int64, error) {
	switch key {
	case "editionNumber":
		return m.edition, nil
	case "binaryScaleFactor":
		return m.binaryScaleFactor, nil
	case "decimalScaleFactor":
		return m.decimalScaleFactor, nil
	case "bitsPerValue":
		return m.bitsPerValue, nil
	case "offsetBeforeData":
		return m.offsetBeforeData, nil
	case "numberOfDataPoints":
		return m.numberOfDataPoints, nil
	case "numberOfValues":
		return m.numberOfValues, nil
	case "sphericalHarmonics":
		return 0, nil
	case "totalLength":
		return m.totalLength, nil
	case "bitmapPresent":
		return m.bitmapPresent, nil
	case "offsetBeforeBitmap":
		return m.offsetBeforeBitmap, nil
	case "offsetBSection6":
		return m.offsetBSection6, nil
	default:
		return 0, &gribcodec.ErrKeyNotFound{Key: key}
	}
}

func (m *Message) Double(key string) (float64, error) {
	if key == "referenceValue" {
		return m.referenceValue, nil
	}
	return 0, &gribcodec.ErrKeyNotFound{Key: key}
}

func (m *Message) String(key string) (string, error) {
	switch key {
	case "md5GridSection":
		return m.gridHash, nil
	case "packingType":
		return m.packingType, nil
	default:
		return "", &gribcodec.ErrKeyNotFound{Key: key}
	}
}

func (m *Message) Size(key string) (int64, error) { return 0, nil }
func (m *Message) Close() error                   { return nil }

// SetNumberOfDataPoints overrides the grid point count Open inferred, for
// tests that need numberOfValues != numberOfDataPoints (a bitmap message).
func (m *Message) SetNumberOfDataPoints(n int64) { m.numberOfDataPoints = n }

func readerAtSize(r io.ReaderAt) (int64, error) {
	if s, ok := r.(interface{ Size() int64 }); ok {
		return s.Size(), nil
	}
	return 0, fmt.Errorf("testcodec: source does not report a size (implement Size() int64)")
}
