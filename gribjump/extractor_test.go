package gribjump_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ecmwf-go/metkit/gribjump"
	"github.com/ecmwf-go/metkit/jumpinfo"
)

func noBitmapInfo(numberOfDataPoints, bitsPerValue, offsetBeforeData uint64) *jumpinfo.Info {
	return jumpinfo.FromFields(jumpinfo.Fields{
		EditionNumber:      2,
		BitsPerValue:       bitsPerValue,
		OffsetBeforeData:   offsetBeforeData,
		NumberOfDataPoints: numberOfDataPoints,
		NumberOfValues:     numberOfDataPoints,
		TotalLength:        offsetBeforeData + numberOfDataPoints*bitsPerValue/8 + 8,
	})
}

func TestExtractRangesNoBitmap(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	info := noBitmapInfo(10, 8, 0)
	x := gribjump.New(info, bytes.NewReader(data))

	got, err := x.ExtractRanges([]gribjump.Range{{Start: 2, End: 5}})
	if err != nil {
		t.Fatalf("ExtractRanges: %v", err)
	}
	want := []float64{2, 3, 4}
	if !equalFloats(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractRangesNoBitmapFullFieldMatchesDirectDecode(t *testing.T) {
	data := []byte{10, 20, 30, 40, 50}
	msg := append(append([]byte{}, data...), "7777"...) // GRIB end section
	info := noBitmapInfo(5, 8, 0)
	x := gribjump.New(info, bytes.NewReader(msg))

	got, err := x.ExtractRanges([]gribjump.Range{{Start: 0, End: 5}})
	if err != nil {
		t.Fatalf("ExtractRanges: %v", err)
	}
	for i, v := range got {
		if v != float64(data[i]) {
			t.Errorf("index %d: got %v, want %v", i, v, data[i])
		}
	}
}

func TestExtractRangesWithBitmapMarksMissingValues(t *testing.T) {
	pad := []byte{0}
	bitmap := []byte{0xB4, 0x80, 0, 0, 0, 0, 0, 0}
	values := []byte{10, 20, 30, 40, 50}
	// The message ends with the GRIB "7777" end section after the packed data.
	msg := append(append(append(append([]byte{}, pad...), bitmap...), values...), "7777"...)

	info := jumpinfo.FromFields(jumpinfo.Fields{
		EditionNumber:      2,
		BitsPerValue:       8,
		OffsetBeforeData:   uint64(len(pad) + len(bitmap)),
		OffsetBeforeBitmap: uint64(len(pad)),
		NumberOfDataPoints: 10,
		NumberOfValues:     5,
		TotalLength:        uint64(len(msg)),
	})
	x := gribjump.New(info, bytes.NewReader(msg), gribjump.WithMissingValue(-999))

	got, err := x.ExtractRanges([]gribjump.Range{{Start: 0, End: 10}})
	if err != nil {
		t.Fatalf("ExtractRanges: %v", err)
	}
	want := []float64{10, -999, 20, 30, -999, 40, -999, -999, 50, -999}
	if !equalFloats(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractRangesWithBitmapSubrange(t *testing.T) {
	pad := []byte{0}
	bitmap := []byte{0xB4, 0x80, 0, 0, 0, 0, 0, 0}
	values := []byte{10, 20, 30, 40, 50}
	msg := append(append(append(append([]byte{}, pad...), bitmap...), values...), "7777"...)

	info := jumpinfo.FromFields(jumpinfo.Fields{
		EditionNumber:      2,
		BitsPerValue:       8,
		OffsetBeforeData:   uint64(len(pad) + len(bitmap)),
		OffsetBeforeBitmap: uint64(len(pad)),
		NumberOfDataPoints: 10,
		NumberOfValues:     5,
		TotalLength:        uint64(len(msg)),
	})
	x := gribjump.New(info, bytes.NewReader(msg), gribjump.WithMissingValue(-999))

	got, err := x.ExtractRanges([]gribjump.Range{{Start: 2, End: 6}})
	if err != nil {
		t.Fatalf("ExtractRanges: %v", err)
	}
	want := []float64{20, 30, -999, 40}
	if !equalFloats(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestExtractValueCrossesWordBoundary(t *testing.T) {
	pad := []byte{0}
	bitmap := make([]byte, 16)
	bitmap[0] = 0x81 // points 0 and 7 set, in word 0
	bitmap[8] = 0x02 // point 70 set, in word 1

	values := []byte{111, 222, 199}
	msg := append(append(append(append([]byte{}, pad...), bitmap...), values...), "7777"...)

	info := jumpinfo.FromFields(jumpinfo.Fields{
		EditionNumber:      2,
		BitsPerValue:       8,
		OffsetBeforeData:   uint64(len(pad) + len(bitmap)),
		OffsetBeforeBitmap: uint64(len(pad)),
		NumberOfDataPoints: 128,
		NumberOfValues:     3,
		TotalLength:        uint64(len(msg)),
	})
	x := gribjump.New(info, bytes.NewReader(msg))

	got, err := x.ExtractValue(70)
	if err != nil {
		t.Fatalf("ExtractValue: %v", err)
	}
	if got != 199 {
		t.Errorf("got %v, want 199", got)
	}
}

func TestExtractValueMissingReturnsSentinel(t *testing.T) {
	pad := []byte{0}
	bitmap := []byte{0xB4, 0x80, 0, 0, 0, 0, 0, 0}
	values := []byte{10, 20, 30, 40, 50}
	msg := append(append(append([]byte{}, pad...), bitmap...), values...)

	info := jumpinfo.FromFields(jumpinfo.Fields{
		EditionNumber:      2,
		BitsPerValue:       8,
		OffsetBeforeData:   uint64(len(pad) + len(bitmap)),
		OffsetBeforeBitmap: uint64(len(pad)),
		NumberOfDataPoints: 10,
		NumberOfValues:     5,
		TotalLength:        uint64(len(msg)),
	})
	x := gribjump.New(info, bytes.NewReader(msg), gribjump.WithMissingValue(-1))

	got, err := x.ExtractValue(1)
	if err != nil {
		t.Fatalf("ExtractValue: %v", err)
	}
	if got != -1 {
		t.Errorf("got %v, want -1 (missing sentinel)", got)
	}
}

// Invariant: bitsPerValue == 0 shortcuts to referenceValue for every
// requested point, bitmap or not.
func TestExtractRangesZeroBitsPerValueShortcut(t *testing.T) {
	info := jumpinfo.FromFields(jumpinfo.Fields{
		EditionNumber:      2,
		BitsPerValue:       0,
		ReferenceValue:     42.5,
		NumberOfDataPoints: 4,
		NumberOfValues:     4,
		TotalLength:        8,
	})
	x := gribjump.New(info, bytes.NewReader(make([]byte, 8)))

	got, err := x.ExtractRanges([]gribjump.Range{{Start: 0, End: 4}})
	if err != nil {
		t.Fatalf("ExtractRanges: %v", err)
	}
	for _, v := range got {
		if v != 42.5 {
			t.Errorf("got %v, want 42.5", v)
		}
	}
}

// Invariant: ExtractValue(i) must equal ExtractRanges([i,i+1)) for every i.
func TestExtractValueMatchesExtractRangesEquivalence(t *testing.T) {
	pad := []byte{0}
	bitmap := []byte{0xB4, 0x80, 0, 0, 0, 0, 0, 0}
	values := []byte{10, 20, 30, 40, 50}
	msg := append(append(append(append([]byte{}, pad...), bitmap...), values...), "7777"...)

	info := jumpinfo.FromFields(jumpinfo.Fields{
		EditionNumber:      2,
		BitsPerValue:       8,
		OffsetBeforeData:   uint64(len(pad) + len(bitmap)),
		OffsetBeforeBitmap: uint64(len(pad)),
		NumberOfDataPoints: 10,
		NumberOfValues:     5,
		TotalLength:        uint64(len(msg)),
	})

	for i := uint64(0); i < 10; i++ {
		x1 := gribjump.New(info, bytes.NewReader(msg), gribjump.WithMissingValue(-999))
		x2 := gribjump.New(info, bytes.NewReader(msg), gribjump.WithMissingValue(-999))

		single, err := x1.ExtractValue(i)
		if err != nil {
			t.Fatalf("ExtractValue(%d): %v", i, err)
		}
		ranged, err := x2.ExtractRanges([]gribjump.Range{{Start: i, End: i + 1}})
		if err != nil {
			t.Fatalf("ExtractRanges([%d,%d)): %v", i, i+1, err)
		}
		if len(ranged) != 1 || ranged[0] != single {
			t.Errorf("index %d: ExtractValue=%v, ExtractRanges=%v", i, single, ranged)
		}
	}
}

// Invariant: overlapping or out-of-bounds ranges are rejected outright,
// with no partial output returned.
func TestExtractRangesRejectsOverlap(t *testing.T) {
	info := noBitmapInfo(10, 8, 0)
	x := gribjump.New(info, bytes.NewReader(make([]byte, 10)))

	got, err := x.ExtractRanges([]gribjump.Range{{Start: 0, End: 5}, {Start: 3, End: 7}})
	if !errors.Is(err, gribjump.ErrOverlapping) {
		t.Fatalf("got err=%v, want ErrOverlapping", err)
	}
	if got != nil {
		t.Errorf("expected no partial output, got %v", got)
	}
}

func TestExtractRangesRejectsOutOfBounds(t *testing.T) {
	info := noBitmapInfo(10, 8, 0)
	x := gribjump.New(info, bytes.NewReader(make([]byte, 10)))

	got, err := x.ExtractRanges([]gribjump.Range{{Start: 8, End: 12}})
	if !errors.Is(err, gribjump.ErrOutOfRange) {
		t.Fatalf("got err=%v, want ErrOutOfRange", err)
	}
	if got != nil {
		t.Errorf("expected no partial output, got %v", got)
	}
}

func TestExtractValueRejectsOutOfBounds(t *testing.T) {
	info := noBitmapInfo(10, 8, 0)
	x := gribjump.New(info, bytes.NewReader(make([]byte, 10)))

	if _, err := x.ExtractValue(10); !errors.Is(err, gribjump.ErrOutOfRange) {
		t.Fatalf("got err=%v, want ErrOutOfRange", err)
	}
}

func TestExtractRangesRejectsSphericalHarmonics(t *testing.T) {
	info := jumpinfo.FromFields(jumpinfo.Fields{
		SphericalHarmonics: 1,
		NumberOfDataPoints: 4,
		NumberOfValues:     4,
	})
	x := gribjump.New(info, bytes.NewReader(make([]byte, 8)))

	if _, err := x.ExtractRanges([]gribjump.Range{{Start: 0, End: 2}}); !errors.Is(err, gribjump.ErrUnsupportedPacking) {
		t.Fatalf("got err=%v, want ErrUnsupportedPacking", err)
	}
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
