package testcodec_test

import (
	"bytes"
	"testing"

	"github.com/ecmwf-go/metkit/internal/testcodec"
	"github.com/ecmwf-go/metkit/jumpinfo"
)

func TestOpenAndUpdateNoBitmap(t *testing.T) {
	raw, offsetBeforeData, _ := testcodec.NewBuilder().
		WithBitsPerValue(16).
		WithReferenceValue(10).
		WithScaleFactors(0, 2).
		WithDataPoints(8, 8).
		WithPackedData(make([]byte, 16)).
		Build()

	msg, err := (testcodec.Codec{}).Open(bytes.NewReader(raw), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer msg.Close()

	info := jumpinfo.New()
	if err := info.Update(msg); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if info.BitsPerValue() != 16 {
		t.Errorf("BitsPerValue: got %d, want 16", info.BitsPerValue())
	}
	if info.OffsetBeforeData() != offsetBeforeData {
		t.Errorf("OffsetBeforeData: got %d, want %d", info.OffsetBeforeData(), offsetBeforeData)
	}
	if info.HasBitmap() {
		t.Error("HasBitmap: got true, want false")
	}
	if err := info.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestOpenAndUpdateWithBitmap(t *testing.T) {
	raw, offsetBeforeData, offsetBeforeBitmap := testcodec.NewBuilder().
		WithBitsPerValue(8).
		WithDataPoints(10, 4).
		WithBitmap(make([]byte, 8)).
		WithPackedData(make([]byte, 4)).
		Build()

	msg, err := (testcodec.Codec{}).Open(bytes.NewReader(raw), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m, ok := msg.(*testcodec.Message); ok {
		m.SetNumberOfDataPoints(10)
	}
	defer msg.Close()

	info := jumpinfo.New()
	if err := info.Update(msg); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !info.HasBitmap() {
		t.Fatal("HasBitmap: got false, want true")
	}
	if info.OffsetBeforeBitmap() != offsetBeforeBitmap {
		t.Errorf("OffsetBeforeBitmap: got %d, want %d", info.OffsetBeforeBitmap(), offsetBeforeBitmap)
	}
	if info.OffsetBeforeData() != offsetBeforeData {
		t.Errorf("OffsetBeforeData: got %d, want %d", info.OffsetBeforeData(), offsetBeforeData)
	}
	if info.NumberOfValues() != 4 || info.NumberOfDataPoints() != 10 {
		t.Errorf("got numberOfValues=%d numberOfDataPoints=%d, want 4 and 10", info.NumberOfValues(), info.NumberOfDataPoints())
	}
	if err := info.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
