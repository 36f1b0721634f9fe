package gpio

import (
	"errors"
	"testing"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader(0x01, 0x03, 0xA5)

	for i, want := range []uint8{0x01, 0x03, 0xA5, 0xA5} {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("read %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("read %d: got %#x, want %#x", i, got, want)
		}
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader()

	if _, err := f.Read(); err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader(0x01)
	f.ReadError = errors.New("bus fault")

	if _, err := f.Read(); err == nil || err.Error() != "bus fault" {
		t.Errorf("expected bus fault, got %v", err)
	}
}

func TestFakeReaderCloseAndReset(t *testing.T) {
	f := NewFakeReader(0x01, 0x02)
	f.Read()
	f.Close()
	if !f.Closed {
		t.Error("expected Closed=true")
	}

	f.Reset()
	if f.Closed {
		t.Error("expected Closed=false after reset")
	}
	if got, _ := f.Read(); got != 0x01 {
		t.Errorf("after reset: got %#x, want 0x01", got)
	}
}

func TestSimulatedReaderLowNibble(t *testing.T) {
	s := NewSimulatedReader(42)
	seen := uint8(0)
	for i := 0; i < 200; i++ {
		b, err := s.Read()
		if err != nil {
			t.Fatal(err)
		}
		if b&0xF0 != 0 {
			t.Fatalf("high pins set: %#x", b)
		}
		seen |= b
	}
	if seen != 0x0F {
		t.Errorf("expected every low pin to toggle at least once, saw %#x", seen)
	}
}

func TestPack(t *testing.T) {
	tests := []struct {
		in   []int
		want uint8
	}{
		{nil, 0},
		{[]int{1, 0, 1}, 0x05},
		{[]int{0, 0, 0, 0, 0, 0, 0, 1}, 0x80},
		{[]int{1, 1, 1, 1, 1, 1, 1, 1, 1}, 0xFF},
	}
	for _, tt := range tests {
		if got := Pack(tt.in); got != tt.want {
			t.Errorf("Pack(%v) = %#x, want %#x", tt.in, got, tt.want)
		}
	}
}

func TestOptionsLines(t *testing.T) {
	lines, err := Options{}.lines()
	if err != nil || len(lines) != 8 {
		t.Errorf("default lines: %v %v", lines, err)
	}
	if _, err := (Options{Lines: make([]int, 9)}).lines(); err == nil {
		t.Error("expected error for 9 lines")
	}
}
