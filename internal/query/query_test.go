package query_test

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/halfwit/mpdq/internal/cache"
	"github.com/halfwit/mpdq/internal/musicindex"
	"github.com/halfwit/mpdq/internal/musicindex/fakedaemon"
	"github.com/halfwit/mpdq/internal/query"
	"github.com/halfwit/mpdq/internal/similarity"
	"github.com/halfwit/mpdq/internal/similarity/faketransport"
	"github.com/halfwit/mpdq/internal/store"
)

// newFixture builds the library from spec.md §8's canonical fixture:
// X={artist:"A",album:"L",title:"t1"}, Y={artist:"A",album:"L",title:"t2"},
// Z={artist:"B",album:"M",title:"t3"}. collectionsText, if non-empty, seeds
// the backing collections file before the store is fed.
func newFixture(t *testing.T, collectionsText string) (*store.Store, *query.Evaluator) {
	t.Helper()
	d := fakedaemon.New()
	d.Songs = []musicindex.SongInfo{
		{File: "X", Artist: "A", Album: "L", Title: "t1", Track: "1"},
		{File: "Y", Artist: "A", Album: "L", Title: "t2", Track: "2"},
		{File: "Z", Artist: "B", Album: "M", Title: "t3", Track: "1"},
	}
	idx := musicindex.New(d, cache.New(t.TempDir(), "test"))

	path := filepath.Join(t.TempDir(), "collections")
	if err := os.WriteFile(path, []byte(collectionsText), 0o644); err != nil {
		t.Fatalf("writing fixture collections file: %v", err)
	}
	st := store.New(path, cache.New(t.TempDir(), "test"), idx)
	if err := st.Feed(context.Background(), true); err != nil {
		t.Fatalf("Feed: %v", err)
	}

	sim := similarity.New(faketransport.New(), cache.New(t.TempDir(), "test"), 0)
	ev := query.New(st, idx, sim, false, rand.New(rand.NewSource(0)))
	return st, ev
}

func assertSongs(t *testing.T, got []musicindex.SongRef, want ...musicindex.SongRef) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v; want %v", got, want)
	}
	wantSet := make(map[musicindex.SongRef]bool, len(want))
	for _, w := range want {
		wantSet[w] = true
	}
	for _, g := range got {
		if !wantSet[g] {
			t.Fatalf("got %v; want %v (order-insensitive membership)", got, want)
		}
	}
}

func TestFilterSubstringArtist(t *testing.T) {
	_, ev := newFixture(t, "")
	got, err := ev.Evaluate(context.Background(), `a"A"`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	assertSongs(t, got.Slice(), "X", "Y")
}

func TestFilterExactArtistIntersectAlbum(t *testing.T) {
	_, ev := newFixture(t, "")
	got, err := ev.Evaluate(context.Background(), `A"A" . b"L"`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	assertSongs(t, got.Slice(), "X", "Y")
}

func TestAllMinusArtist(t *testing.T) {
	_, ev := newFixture(t, "")
	got, err := ev.Evaluate(context.Background(), `all - a"A"`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	assertSongs(t, got.Slice(), "Z")
}

func TestRandomOneFromUnion(t *testing.T) {
	_, ev := newFixture(t, "")
	got, err := ev.Evaluate(context.Background(), `(a"A" + a"B") | r1`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Len() != 1 {
		t.Fatalf("Evaluate() len = %d; want exactly 1", got.Len())
	}
	one := got.Slice()[0]
	if one != "X" && one != "Y" && one != "Z" {
		t.Fatalf("Evaluate() = %v; want one of X, Y, Z", one)
	}
}

func TestCollectionWithExpressionAndSubtraction(t *testing.T) {
	_, ev := newFixture(t, "--fav\na\"A\"\n\n\n")
	got, err := ev.Evaluate(context.Background(), `fav - a"B"`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	assertSongs(t, got.Slice(), "X", "Y")
}

func TestSortedCollectionReturnsLibraryOrder(t *testing.T) {
	_, ev := newFixture(t, "--@mix\na\"B\" + a\"A\"\n\n\n")
	got, err := ev.Evaluate(context.Background(), "mix")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := []musicindex.SongRef{"X", "Y", "Z"}
	gotSlice := got.Slice()
	if len(gotSlice) != len(want) {
		t.Fatalf("Evaluate() = %v; want %v in library order", gotSlice, want)
	}
	for i := range want {
		if gotSlice[i] != want[i] {
			t.Fatalf("Evaluate() = %v; want %v in library order", gotSlice, want)
		}
	}
}

func TestUnknownCollectionIsFatal(t *testing.T) {
	_, ev := newFixture(t, "")
	if _, err := ev.Evaluate(context.Background(), "nope"); err == nil {
		t.Fatal("Evaluate() succeeded for unknown collection; want error")
	}
}

func TestUnknownModifierIsFatal(t *testing.T) {
	_, ev := newFixture(t, "")
	if _, err := ev.Evaluate(context.Background(), `all | bogus`); err == nil {
		t.Fatal("Evaluate() succeeded for unknown modifier; want error")
	}
}

func TestSyntaxErrorIsFatal(t *testing.T) {
	_, ev := newFixture(t, "")
	if _, err := ev.Evaluate(context.Background(), `a"A" +`); err == nil {
		t.Fatal("Evaluate() succeeded for truncated expression; want error")
	}
}

func TestRecursiveCollectionIsDetected(t *testing.T) {
	_, ev := newFixture(t, "--loop\nloop\n\n\n")
	if _, err := ev.Evaluate(context.Background(), "loop"); err == nil {
		t.Fatal("Evaluate() succeeded for self-referential collection; want cycle error")
	}
}

func TestAssociativityMatchesLeftToRightPrecedence(t *testing.T) {
	_, ev := newFixture(t, "")
	left, err := ev.Evaluate(context.Background(), `a"A" + a"B" . b"M"`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	right, err := ev.Evaluate(context.Background(), `(a"A" + a"B") . b"M"`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if left.Len() != right.Len() {
		t.Fatalf("left-to-right precedence mismatch: %v vs %v", left.Slice(), right.Slice())
	}
	for _, s := range left.Slice() {
		if !right.Contains(s) {
			t.Fatalf("left-to-right precedence mismatch: %v vs %v", left.Slice(), right.Slice())
		}
	}
}

func TestModifierBindsToWholeUnion(t *testing.T) {
	_, ev := newFixture(t, "")
	got, err := ev.Evaluate(context.Background(), `b"M" + b"L" | s`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	want := []musicindex.SongRef{"X", "Y", "Z"}
	gotSlice := got.Slice()
	if len(gotSlice) != len(want) {
		t.Fatalf("Evaluate() = %v; want %v", gotSlice, want)
	}
	for i := range want {
		if gotSlice[i] != want[i] {
			t.Fatalf("Evaluate() = %v; want %v in library order (modifier applies to the whole union)", gotSlice, want)
		}
	}
}
