package lexer_test

import (
	"errors"
	"testing"

	"github.com/halfwit/mpdq/internal/lexer"
)

func TestTokenizeFiltersAroundIntersection(t *testing.T) {
	tokens, err := lexer.Tokenize(`a"A" . b'L'`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []lexer.Kind{lexer.FILTER, lexer.INTERSECTION, lexer.FILTER}
	if len(tokens) != len(want) {
		t.Fatalf("Tokenize() = %+v; want %d tokens", tokens, len(want))
	}
	for i, k := range want {
		if tokens[i].Kind != k {
			t.Errorf("tokens[%d].Kind = %v; want %v", i, tokens[i].Kind, k)
		}
	}
	if tokens[0].Value != `a"A"` {
		t.Errorf("tokens[0].Value = %q; want %q", tokens[0].Value, `a"A"`)
	}
}

func TestTokenizeTwoLetterAlias(t *testing.T) {
	tokens, err := lexer.Tokenize(`ab"Various"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Kind != lexer.FILTER || tokens[0].Value != `ab"Various"` {
		t.Errorf("Tokenize() = %+v; want one FILTER token ab\"Various\"", tokens)
	}
}

func TestTokenizeEscapedQuote(t *testing.T) {
	tokens, err := lexer.Tokenize(`a"Guns \"N\" Roses"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := `a"Guns "N" Roses"`
	if len(tokens) != 1 || tokens[0].Value != want {
		t.Errorf("Tokenize() = %+v; want value %q", tokens, want)
	}
}

func TestTokenizeCollectionBarewordAndQuoted(t *testing.T) {
	tokens, err := lexer.Tokenize(`fav + "my coll"`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	if len(tokens) != 3 || tokens[0].Value != "fav" || tokens[2].Value != "my coll" {
		t.Errorf("Tokenize() = %+v; want [fav, +, \"my coll\"]", tokens)
	}
}

func TestTokenizeModifierAndOperators(t *testing.T) {
	tokens, err := lexer.Tokenize(`(all - a"A") | r1`)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	want := []lexer.Kind{
		lexer.LPAREN, lexer.COLLECTION, lexer.COMPLEMENT, lexer.FILTER,
		lexer.RPAREN, lexer.MODIFIER,
	}
	if len(tokens) != len(want) {
		t.Fatalf("Tokenize() = %+v; want %d tokens", tokens, len(want))
	}
	for i, k := range want {
		if tokens[i].Kind != k {
			t.Errorf("tokens[%d].Kind = %v; want %v", i, tokens[i].Kind, k)
		}
	}
	if tokens[5].Value != "| r1" {
		t.Errorf("tokens[5].Value = %q; want %q", tokens[5].Value, "| r1")
	}
}

func TestTokenizeIllegalCharacter(t *testing.T) {
	_, err := lexer.Tokenize(`a"A" & b"B"`)
	if err == nil {
		t.Fatal("Tokenize() succeeded; want illegal character error")
	}
	var lexErr *lexer.Error
	if !errors.As(err, &lexErr) {
		t.Fatalf("Tokenize() error = %v; want *lexer.Error", err)
	}
	if lexErr.Char != '&' {
		t.Errorf("Error.Char = %q; want '&'", lexErr.Char)
	}
}
