package source

import (
	"reflect"
	"testing"
)

func TestNextRange(t *testing.T) {
	got, ok, err := NextRange(99, 0, 200, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected a range")
	}

	want := BlockRange{From: 100, To: 109}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("range mismatch: %+v != %+v", got, want)
	}
}

func TestNextRangeClampsToTip(t *testing.T) {
	got, ok, err := NextRange(100, 0, 103, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := BlockRange{From: 101, To: 103}
	if !ok || !reflect.DeepEqual(got, want) {
		t.Fatalf("range mismatch: %+v != %+v", got, want)
	}
}

func TestNextRangeHonorsStartBlock(t *testing.T) {
	got, ok, err := NextRange(0, 5000, 5003, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := BlockRange{From: 5000, To: 5003}
	if !ok || !reflect.DeepEqual(got, want) {
		t.Fatalf("range mismatch: %+v != %+v", got, want)
	}
}

func TestNextRangeCaughtUp(t *testing.T) {
	_, ok, err := NextRange(200, 0, 200, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected caught up")
	}
}

func TestNextRangeInvalid(t *testing.T) {
	if _, _, err := NextRange(1, 0, 10, 0); err == nil {
		t.Fatalf("expected error for zero window size")
	}
}
