// Package gribjump implements random-access extraction of numeric
// sub-ranges from a GRIB message's packed data section, without decoding
// the full field — the "GribJump" described in spec.md §4.3. It is the
// hardest and most performance-sensitive part of the module: the bitmap
// path must cost O(requested bits + skipped bitmap words), never a full
// field scan.
package gribjump

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/ecmwf-go/metkit/bitcodec"
	"github.com/ecmwf-go/metkit/jumpinfo"
)

// DefaultMissingValue is the sentinel Extractor emits for bitmap-absent
// grid positions when the caller does not supply one of its own. spec.md
// §9 flags a fixed sentinel as a collision hazard with legitimate data;
// WithMissingValue lets each call site pick one appropriate to its data.
const DefaultMissingValue = 9999.0

var (
	// ErrOutOfRange is returned when a requested range falls outside
	// [0, numberOfDataPoints).
	ErrOutOfRange = errors.New("gribjump: range out of bounds")
	// ErrOverlapping is returned when two requested ranges intersect.
	ErrOverlapping = errors.New("gribjump: overlapping ranges")
	// ErrUnsupportedPacking is returned for messages with spherical
	// harmonics, which range extraction does not support.
	ErrUnsupportedPacking = errors.New("gribjump: unsupported packing (spherical harmonics)")
	// ErrTruncated is returned when a read implied by a range would run
	// past the message's declared total length.
	ErrTruncated = errors.New("gribjump: read would run past end of message")
)

// Range is a half-open grid-point interval [Start, End).
type Range struct {
	Start, End uint64
}

// Extractor answers range queries against a single GRIB message's packed
// data, using only its JumpInfo and the raw message bytes.
type Extractor struct {
	info         *jumpinfo.Info
	src          io.ReaderAt
	missingValue float64
}

// Option configures an Extractor at construction time.
type Option func(*Extractor)

// WithMissingValue overrides DefaultMissingValue for the sentinel emitted
// at bitmap-absent grid positions.
func WithMissingValue(v float64) Option {
	return func(x *Extractor) { x.missingValue = v }
}

// New returns an Extractor over info's message, whose bytes are reachable
// through src (typically an *os.File or a bytes.Reader wrapping an
// in-memory message).
func New(info *jumpinfo.Info, src io.ReaderAt, opts ...Option) *Extractor {
	x := &Extractor{info: info, src: src, missingValue: DefaultMissingValue}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// ExtractRanges decodes every requested range and returns the concatenated
// values, range by range, length = Σ(end-start). Ranges may be supplied in
// any order; they are sorted by Start internally, and the output follows
// that sorted order — a caller that needs the original input order must
// re-map the result itself.
func (x *Extractor) ExtractRanges(ranges []Range) ([]float64, error) {
	if x.info.SphericalHarmonics() != 0 {
		return nil, ErrUnsupportedPacking
	}
	sorted := append([]Range(nil), ranges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var total uint64
	for i, r := range sorted {
		if r.Start >= r.End || r.End > x.info.NumberOfDataPoints() {
			return nil, fmt.Errorf("%w: [%d,%d) (numberOfDataPoints=%d)", ErrOutOfRange, r.Start, r.End, x.info.NumberOfDataPoints())
		}
		if i > 0 && sorted[i-1].End > r.Start {
			return nil, fmt.Errorf("%w: [%d,%d) and [%d,%d)", ErrOverlapping, sorted[i-1].Start, sorted[i-1].End, r.Start, r.End)
		}
		total += r.End - r.Start
	}

	if x.info.BitsPerValue() == 0 {
		result := make([]float64, total)
		ref := x.info.ReferenceValue()
		for i := range result {
			result[i] = ref
		}
		return result, nil
	}

	if err := x.checkTruncation(sorted); err != nil {
		return nil, err
	}

	if !x.info.HasBitmap() {
		return x.extractRangesNoBitmap(sorted, total)
	}
	return x.extractRangesWithBitmap(sorted, total)
}

// checkTruncation verifies that the byte window each range reads does not
// run past the message's declared total length. With a bitmap the packed
// stream holds only the present values, so a grid range [start,end) reads
// present-indexes below min(end, numberOfValues); the window checked then
// runs from the start of the packed data up to that bound.
func (x *Extractor) checkTruncation(sorted []Range) error {
	msgEnd := x.info.MsgStartOffset() + x.info.TotalLength()
	for _, r := range sorted {
		start, end := r.Start, r.End
		if x.info.HasBitmap() {
			start = 0
			if end > x.info.NumberOfValues() {
				end = x.info.NumberOfValues()
			}
		}
		byteOffset := x.info.MsgStartOffset() + x.info.OffsetBeforeData() + start*x.info.BitsPerValue()/8
		length := scratchLen(start, end, x.info.BitsPerValue())
		if byteOffset+uint64(length) > msgEnd {
			return fmt.Errorf("%w: range [%d,%d) needs bytes up to %d, message ends at %d",
				ErrTruncated, r.Start, r.End, byteOffset+uint64(length), msgEnd)
		}
	}
	return nil
}

// scratchLen returns the byte-window length needed to decode [start,end)
// at bitsPerValue width, per spec.md §4.3: ⌈((end-start)*bits+7)/8⌉ + 1.
func scratchLen(start, end, bitsPerValue uint64) int {
	return int((end-start)*bitsPerValue+7)/8 + 1
}

func (x *Extractor) extractRangesNoBitmap(sorted []Range, total uint64) ([]float64, error) {
	bitsPerValue := int(x.info.BitsPerValue())
	values := make([]float64, 0, total)

	var bufSize int
	for _, r := range sorted {
		if l := scratchLen(r.Start, r.End, x.info.BitsPerValue()); l > bufSize {
			bufSize = l
		}
	}
	buf := make([]byte, bufSize)

	for _, r := range sorted {
		byteOffset := int64(x.info.MsgStartOffset() + x.info.OffsetBeforeData() + r.Start*x.info.BitsPerValue()/8)
		length := scratchLen(r.Start, r.End, x.info.BitsPerValue())
		window := buf[:length]
		if _, err := io.ReadFull(io.NewSectionReader(x.src, byteOffset, int64(length)), window); err != nil {
			return nil, fmt.Errorf("gribjump: reading packed data at offset %d: %w", byteOffset, err)
		}

		bitPos := int((r.Start * x.info.BitsPerValue()) % 8)
		for i := r.Start; i < r.End; i++ {
			p, next, err := bitcodec.DecodeUnsigned(window, bitPos, bitsPerValue)
			if err != nil {
				return nil, fmt.Errorf("gribjump: decoding value at index %d: %w", i, err)
			}
			bitPos = next
			values = append(values, x.scale(p))
		}
	}
	return values, nil
}

func (x *Extractor) scale(p uint64) float64 {
	return (float64(p)*x.info.BinaryMultiplier() + x.info.ReferenceValue()) * x.info.DecimalMultiplier()
}

const missingIndex = ^uint64(0)

func (x *Extractor) extractRangesWithBitmap(sorted []Range, total uint64) ([]float64, error) {
	edges := buildEdges(sorted)

	maxGap := sorted[0].Start
	for i := 0; i < len(sorted)-1; i++ {
		if gap := sorted[i+1].Start - sorted[i].End; gap > maxGap {
			maxGap = gap
		}
	}
	skipBuf := make([]byte, (maxGap/64+1)*8)

	newIndex := make([]uint64, 0, total)
	bitPos := uint64(0)
	count := uint64(0)
	inRange := false
	bitmapOffset := int64(x.info.MsgStartOffset() + x.info.OffsetBeforeBitmap())
	bitmapReader := io.NewSectionReader(x.src, bitmapOffset, 1<<62)

	var word [8]byte
	edgeIdx := 0
	for edgeIdx < len(edges) {
		if !inRange {
			nWordsToSkip := (edges[edgeIdx] - bitPos) / 64
			nBytesToSkip := nWordsToSkip * 8
			if nBytesToSkip > 0 {
				raw := skipBuf[:nBytesToSkip]
				if _, err := io.ReadFull(bitmapReader, raw); err != nil {
					return nil, fmt.Errorf("gribjump: skipping bitmap words: %w", err)
				}
				for w := uint64(0); w < nWordsToSkip; w++ {
					count += uint64(bitcodec.PopcountU64(binary.BigEndian.Uint64(raw[w*8:])))
				}
			}
			bitPos += nWordsToSkip * 64
		}
		if _, err := io.ReadFull(bitmapReader, word[:]); err != nil {
			return nil, fmt.Errorf("gribjump: reading bitmap word: %w", err)
		}
		n := bitcodec.ByteSwapU64(binary.LittleEndian.Uint64(word[:]))
		edgeIdx = accumulateIndexes(n, &count, &newIndex, edges, edgeIdx, &inRange, &bitPos)
	}

	return x.decodeFromIndexes(sorted, newIndex)
}

// buildEdges flattens sorted ranges into alternating enter/leave bit
// positions, per spec.md §4.3: e.g. (1,5),(7,10),(10,20) -> [1,5,7,20].
func buildEdges(sorted []Range) []uint64 {
	edges := make([]uint64, 0, 2*len(sorted))
	edges = append(edges, sorted[0].Start)
	prevEnd := sorted[0].End
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Start != prevEnd {
			edges = append(edges, prevEnd, sorted[i].Start)
		}
		prevEnd = sorted[i].End
	}
	edges = append(edges, prevEnd)
	return edges
}

// accumulateIndexes walks the 64 bit positions of word n (already in
// big-endian bit order, MSB = lowest grid index in this word), toggling
// inRange at each edge crossed and recording a present-index (or
// missingIndex) for every grid position inside a requested range.
func accumulateIndexes(n uint64, count *uint64, newIndex *[]uint64, edges []uint64, edgeIdx int, inRange *bool, bitPos *uint64) int {
	const msb64 = uint64(1) << 63
	endBit := *bitPos + 64
	for *bitPos < endBit {
		if edgeIdx < len(edges) && *bitPos == edges[edgeIdx] {
			*inRange = !*inRange
			edgeIdx++
			if edgeIdx >= len(edges) {
				break
			}
		}
		set := n&msb64 != 0
		if *inRange {
			if set {
				*newIndex = append(*newIndex, *count)
			} else {
				*newIndex = append(*newIndex, missingIndex)
			}
		}
		if set {
			*count++
		}
		n <<= 1
		*bitPos++
	}
	return edgeIdx
}

// decodeFromIndexes reads one contiguous byte window per range — spanning
// its first to last non-missing present-index — and decodes each position,
// emitting the sentinel for indexes the bitmap marked missing.
func (x *Extractor) decodeFromIndexes(sorted []Range, newIndex []uint64) ([]float64, error) {
	bitsPerValue := int(x.info.BitsPerValue())
	values := make([]float64, 0, len(newIndex))

	pos := 0
	for _, r := range sorted {
		size := int(r.End - r.Start)
		window := newIndex[pos : pos+size]
		pos += size

		start, end := missingIndex, missingIndex
		for _, idx := range window {
			if idx != missingIndex {
				start = idx
				break
			}
		}
		if start == missingIndex {
			for range window {
				values = append(values, x.missingValue)
			}
			continue
		}
		for i := len(window) - 1; i >= 0; i-- {
			if window[i] != missingIndex {
				end = window[i]
				break
			}
		}

		byteOffset := int64(x.info.MsgStartOffset() + x.info.OffsetBeforeData() + start*x.info.BitsPerValue()/8)
		length := scratchLen(start, end+1, x.info.BitsPerValue())
		buf := make([]byte, length)
		if _, err := io.ReadFull(io.NewSectionReader(x.src, byteOffset, int64(length)), buf); err != nil {
			return nil, fmt.Errorf("gribjump: reading packed data at offset %d: %w", byteOffset, err)
		}

		bitBase := int((start * x.info.BitsPerValue()) % 8)
		for _, idx := range window {
			if idx == missingIndex {
				values = append(values, x.missingValue)
				continue
			}
			bitOffset := bitBase + int(idx-start)*bitsPerValue
			p, _, err := bitcodec.DecodeUnsigned(buf, bitOffset, bitsPerValue)
			if err != nil {
				return nil, fmt.Errorf("gribjump: decoding value at index %d: %w", idx, err)
			}
			values = append(values, x.scale(p))
		}
	}
	return values, nil
}

// ExtractValue decodes the single value at grid index i, the degenerate
// one-point case of ExtractRanges: with a bitmap it skips whole words while
// popcounting until it reaches the byte containing the bit, without
// scanning the whole bitmap.
func (x *Extractor) ExtractValue(i uint64) (float64, error) {
	if x.info.SphericalHarmonics() != 0 {
		return 0, ErrUnsupportedPacking
	}
	if i >= x.info.NumberOfDataPoints() {
		return 0, fmt.Errorf("%w: index %d (numberOfDataPoints=%d)", ErrOutOfRange, i, x.info.NumberOfDataPoints())
	}
	if x.info.BitsPerValue() == 0 {
		return x.info.ReferenceValue(), nil
	}

	index := i
	if x.info.HasBitmap() {
		bitmapOffset := int64(x.info.MsgStartOffset() + x.info.OffsetBeforeBitmap())
		r := io.NewSectionReader(x.src, bitmapOffset, 1<<62)

		var word [8]byte
		count := uint64(0)
		skip := i / 64
		for w := uint64(0); w < skip; w++ {
			if _, err := io.ReadFull(r, word[:]); err != nil {
				return 0, fmt.Errorf("gribjump: skipping bitmap word %d: %w", w, err)
			}
			count += uint64(bitcodec.PopcountU64(binary.BigEndian.Uint64(word[:])))
		}
		if _, err := io.ReadFull(r, word[:]); err != nil {
			return 0, fmt.Errorf("gribjump: reading bitmap word: %w", err)
		}
		n := bitcodec.ByteSwapU64(binary.LittleEndian.Uint64(word[:]))
		n = n >> (63 - i%64)
		count += uint64(bitcodec.PopcountU64(n))
		if n&1 == 0 {
			return x.missingValue, nil
		}
		index = count - 1
	}
	if index >= x.info.NumberOfValues() {
		return 0, fmt.Errorf("%w: present-index %d (numberOfValues=%d)", ErrOutOfRange, index, x.info.NumberOfValues())
	}

	byteOffset := int64(x.info.MsgStartOffset() + x.info.OffsetBeforeData() + index*x.info.BitsPerValue()/8)
	length := 1 + (int(x.info.BitsPerValue())+7)/8
	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(x.src, byteOffset, int64(length)), buf); err != nil {
		return 0, fmt.Errorf("gribjump: reading packed data at offset %d: %w", byteOffset, err)
	}
	bitOffset := int((index * x.info.BitsPerValue()) % 8)
	p, _, err := bitcodec.DecodeUnsigned(buf, bitOffset, int(x.info.BitsPerValue()))
	if err != nil {
		return 0, fmt.Errorf("gribjump: decoding value at index %d: %w", index, err)
	}
	return x.scale(p), nil
}
