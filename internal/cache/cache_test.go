package cache

import (
	"testing"
	"time"
)

func TestWriteReadRoundTrip(t *testing.T) {
	c := New(t.TempDir(), "profile")

	type tagWeights map[string]int
	want := map[string]tagWeights{
		"Artist A": {"shoegaze": 40, "dream pop": 12},
	}

	if err := WriteValue(c, "artists_tags", want); err != nil {
		t.Fatalf("WriteValue: %v", err)
	}
	var got map[string]tagWeights
	if err := ReadValue(c, "artists_tags", &got); err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if len(got) != len(want) || got["Artist A"]["shoegaze"] != 40 {
		t.Errorf("ReadValue() = %v; want %v", got, want)
	}
}

func TestReadMissingReturnsErrNotFound(t *testing.T) {
	c := New(t.TempDir(), "profile")
	var dst []string
	if err := ReadValue(c, "missing", &dst); err != ErrNotFound {
		t.Errorf("ReadValue() = %v; want ErrNotFound", err)
	}
}

func TestStaleBefore(t *testing.T) {
	c := New(t.TempDir(), "profile")
	if !c.StaleBefore("songs_tags", time.Now()) {
		t.Error("StaleBefore() = false for missing entry; want true")
	}

	if err := c.Write("songs_tags", []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	mtime, err := c.LastModified("songs_tags")
	if err != nil {
		t.Fatalf("LastModified: %v", err)
	}

	if c.StaleBefore("songs_tags", mtime) {
		t.Error("StaleBefore(mtime) = true; want false (not strictly less)")
	}
	if !c.StaleBefore("songs_tags", mtime.Add(time.Second)) {
		t.Error("StaleBefore(mtime+1s) = false; want true")
	}
}
