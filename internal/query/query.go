// Package query implements the query language's parser and evaluator
// (spec.md §4.6): a recursive-descent evaluator over the token stream
// from internal/lexer that builds an OrderedSet of song references,
// grounded on mpdc/libs/parser.py's combined ply.yacc grammar actions
// (the original computes each production's value directly rather than
// building a separate AST, and this package follows that shape).
package query

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"

	"github.com/halfwit/mpdq/internal/lexer"
	"github.com/halfwit/mpdq/internal/musicindex"
	"github.com/halfwit/mpdq/internal/orderedset"
	"github.com/halfwit/mpdq/internal/similarity"
	"github.com/halfwit/mpdq/internal/store"
)

// Set is the result type every expression evaluates to.
type Set = orderedset.Set[musicindex.SongRef]

// filtersAlias maps a one- or two-letter filter alias to the MusicIndex
// field name it searches, per spec.md §4.5's alias table (mirroring
// mpdc/libs/parser.py's filters_alias).
var filtersAlias = map[string]string{
	"a": "artist", "b": "album", "ab": "albumartist", "t": "title",
	"n": "track", "g": "genre", "d": "date", "c": "composer",
	"p": "performer", "f": "filename", "e": "extension", "x": "any",
	"la": "lastfm_a", "lb": "lastfm_b",
}

// Error is a fatal evaluation error (spec.md §7): syntax errors,
// unknown collections, unknown filters/modifiers and command failures
// all surface as one of these.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

func fatalf(format string, args ...interface{}) error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Evaluator ties the query language to its collaborators: the
// collection store, the music daemon façade, and the similarity
// service, plus whether command: collections may spawn a subprocess.
type Evaluator struct {
	Store         *store.Store
	Index         *musicindex.Index
	Similarity    *similarity.Service
	EnableCommand bool
	RunCommand    func(shell string) ([]string, error)
	Rand          *rand.Rand

	// excludeGuard breaks infinite recursion if the "exclude" collection
	// (or one it references) contains a modifier that itself excludes.
	excludeGuard bool
}

// New returns an Evaluator. rng may be nil, in which case modifiers
// needing randomness use a source seeded from the default global source.
func New(st *store.Store, idx *musicindex.Index, sim *similarity.Service, enableCommand bool, rng *rand.Rand) *Evaluator {
	return &Evaluator{Store: st, Index: idx, Similarity: sim, EnableCommand: enableCommand, Rand: rng}
}

// Evaluate lexes and parses text, returning the resulting set of songs
// (spec.md §4.6). Recursion through named collections is cycle-guarded.
func (e *Evaluator) Evaluate(ctx context.Context, text string) (*Set, error) {
	tokens, err := lexer.Tokenize(text)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens, eval: e, ctx: ctx, visiting: map[string]bool{}}
	result, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fatalf("Syntax error")
	}
	return result, nil
}

// precedence levels: MODIFIER binds looser than the four set operators
// so that, e.g., "A + B | s" reduces the union before the modifier
// applies to its result (spec.md §4.6, §9's "Modifier post-processing
// position", testable property 4).
const (
	modifierPrec = 1
	infixPrec    = 2
)

type parser struct {
	tokens []lexer.Token
	pos    int
	eval   *Evaluator
	ctx    context.Context

	visiting map[string]bool // alias cycle guard
}

func (p *parser) peek() (lexer.Token, bool) {
	if p.pos >= len(p.tokens) {
		return lexer.Token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) advance() lexer.Token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

// parseExpr implements precedence climbing over the flattened
// union/intersection/complement/symdiff class and the postfix
// modifier, per spec.md §4.6/§9 and testable properties 3-4.
func (p *parser) parseExpr(minPrec int) (*Set, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		tok, ok := p.peek()
		if !ok {
			break
		}
		if tok.Kind == lexer.MODIFIER && modifierPrec >= minPrec {
			p.advance()
			left, err = p.eval.applyModifier(p.ctx, left, tok.Value)
			if err != nil {
				return nil, err
			}
			continue
		}
		if isInfix(tok.Kind) && infixPrec >= minPrec {
			p.advance()
			right, err := p.parseExpr(infixPrec + 1)
			if err != nil {
				return nil, err
			}
			left = applyInfix(left, tok.Kind, right)
			continue
		}
		break
	}
	return left, nil
}

func isInfix(k lexer.Kind) bool {
	switch k {
	case lexer.UNION, lexer.INTERSECTION, lexer.COMPLEMENT, lexer.SYMDIFF:
		return true
	default:
		return false
	}
}

func applyInfix(left *Set, op lexer.Kind, right *Set) *Set {
	switch op {
	case lexer.UNION:
		return left.Union(right)
	case lexer.INTERSECTION:
		return left.Intersect(right)
	case lexer.COMPLEMENT:
		return left.Difference(right)
	default: // SYMDIFF
		return left.SymmetricDifference(right)
	}
}

// parsePrimary parses COLLECTION, FILTER, and parenthesized
// sub-expressions (spec.md §4.6's grammar).
func (p *parser) parsePrimary() (*Set, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fatalf("Syntax error")
	}
	switch tok.Kind {
	case lexer.COLLECTION:
		p.advance()
		return p.eval.evaluateCollection(p.ctx, tok.Value, p.visiting)
	case lexer.FILTER:
		p.advance()
		return p.eval.evaluateFilter(p.ctx, tok.Value)
	case lexer.LPAREN:
		p.advance()
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		close, ok := p.peek()
		if !ok || close.Kind != lexer.RPAREN {
			return nil, fatalf("Syntax error")
		}
		p.advance()
		return inner, nil
	default:
		return nil, fatalf("Syntax error")
	}
}

// evaluateCollection resolves a COLLECTION token: the five special
// identifiers bypass the store entirely; everything else is looked up
// by alias (spec.md §4.6).
func (e *Evaluator) evaluateCollection(ctx context.Context, name string, visiting map[string]bool) (*Set, error) {
	// A special name is resolved here even if a user collection of the
	// same name exists.
	special := name == "all" || name == "c" || name == "C" || name == "A" || name == "B"
	c, ok := e.Store.Get(name)
	if special || !ok {
		switch name {
		case "all":
			songs, err := e.Index.AllSongs(ctx)
			if err != nil {
				return nil, err
			}
			return orderedset.New(songs...), nil
		case "c":
			songs, err := e.Index.QueuedSongs(ctx)
			if err != nil {
				return nil, err
			}
			return orderedset.New(songs...), nil
		case "C":
			song, has, err := e.Index.CurrentSong(ctx)
			if err != nil {
				return nil, err
			}
			if !has {
				return orderedset.New[musicindex.SongRef](), nil
			}
			return orderedset.New(song), nil
		case "A":
			return e.currentArtistSongs(ctx)
		case "B":
			return e.currentAlbumSongs(ctx)
		default:
			return nil, fatalf("Collection [%v] does not exist", name)
		}
	}

	if visiting[name] {
		return nil, fatalf("Collection [%v] is recursively defined", name)
	}

	visiting[name] = true
	defer delete(visiting, name)

	result := orderedset.New[musicindex.SongRef]()
	if c.Expression != "" {
		sub := &parser{eval: e, ctx: ctx, visiting: visiting}
		tokens, err := lexer.Tokenize(c.Expression)
		if err != nil {
			return nil, err
		}
		sub.tokens = tokens
		exprSet, err := sub.parseExpr(0)
		if err != nil {
			return nil, err
		}
		if sub.pos != len(sub.tokens) {
			return nil, fatalf("Syntax error")
		}
		result = result.Union(exprSet)
	}
	if len(c.Songs) > 0 {
		result = result.Union(orderedset.New(c.Songs...))
	}
	if e.EnableCommand && c.Command != "" && e.RunCommand != nil {
		lines, err := e.RunCommand(c.Command)
		if err != nil {
			return nil, fatalf("Error while executing `command` in collection [%v]", name)
		}
		result = result.Union(orderedset.New(lines...))
	}
	if c.Sort {
		sorted, err := e.Index.Sort(ctx, result)
		if err != nil {
			return nil, err
		}
		result = sorted
	}
	return result, nil
}

func (e *Evaluator) currentArtistSongs(ctx context.Context) (*Set, error) {
	song, has, err := e.Index.CurrentSong(ctx)
	if err != nil {
		return nil, err
	}
	if !has {
		return orderedset.New[musicindex.SongRef](), nil
	}
	artist, err := e.Index.GetTag(ctx, song, "artist")
	if err != nil {
		return nil, err
	}
	songs, err := e.Index.Find(ctx, "artist", artist)
	if err != nil {
		return nil, err
	}
	return orderedset.New(songs...), nil
}

func (e *Evaluator) currentAlbumSongs(ctx context.Context) (*Set, error) {
	song, has, err := e.Index.CurrentSong(ctx)
	if err != nil {
		return nil, err
	}
	if !has {
		return orderedset.New[musicindex.SongRef](), nil
	}
	albumArtist, err := e.Index.GetTag(ctx, song, "albumartist")
	if err != nil {
		return nil, err
	}
	album, err := e.Index.GetTag(ctx, song, "album")
	if err != nil {
		return nil, err
	}
	songs, err := e.Index.FindMultiple(ctx, map[string]string{"albumartist": albumArtist, "album": album})
	if err != nil {
		return nil, err
	}
	if len(songs) == 0 {
		artist, err := e.Index.GetTag(ctx, song, "artist")
		if err != nil {
			return nil, err
		}
		songs, err = e.Index.FindMultiple(ctx, map[string]string{"artist": artist, "album": album})
		if err != nil {
			return nil, err
		}
	}
	return orderedset.New(songs...), nil
}

// evaluateFilter dispatches a FILTER token: determines the alias
// length by whether position 1 is a quote, the exact/substring mode by
// the alias's case, and routes la/lb through the similarity service
// (spec.md §4.6).
func (e *Evaluator) evaluateFilter(ctx context.Context, value string) (*Set, error) {
	if len(value) < 3 {
		return nil, fatalf("Syntax error")
	}
	aliasLen := 1
	if !isQuoteByte(value[1]) {
		aliasLen = 2
	}
	rawAlias := value[:aliasLen]
	exact := rawAlias[0] >= 'A' && rawAlias[0] <= 'Z'
	alias := strings.ToLower(rawAlias)
	pattern := value[aliasLen+1 : len(value)-1]

	name, ok := filtersAlias[alias]
	if !ok {
		return nil, fatalf("Filter [%v] does not exist", alias)
	}

	switch name {
	case "lastfm_a":
		return e.filterLastfmArtist(ctx, pattern, exact)
	case "lastfm_b":
		return e.filterLastfmAlbum(ctx, pattern, exact)
	default:
		var songs []musicindex.SongRef
		var err error
		if exact {
			songs, err = e.Index.Find(ctx, name, pattern)
		} else {
			songs, err = e.Index.Search(ctx, name, pattern)
		}
		if err != nil {
			return nil, err
		}
		return orderedset.New(songs...), nil
	}
}

func isQuoteByte(b byte) bool { return b == '"' || b == '\'' }

func (e *Evaluator) filterLastfmArtist(ctx context.Context, pattern string, exact bool) (*Set, error) {
	result := orderedset.New[musicindex.SongRef]()
	var artists []string
	if exact {
		artists = e.Similarity.FindArtists(pattern)
	} else {
		artists = e.Similarity.SearchArtists(pattern)
	}
	for _, artist := range artists {
		songs, err := e.Index.Find(ctx, "artist", artist)
		if err != nil {
			return nil, err
		}
		result = result.Union(orderedset.New(songs...))
	}
	return result, nil
}

func (e *Evaluator) filterLastfmAlbum(ctx context.Context, pattern string, exact bool) (*Set, error) {
	result := orderedset.New[musicindex.SongRef]()
	var albums []musicindex.AlbumKey
	if exact {
		albums = e.Similarity.FindAlbums(pattern)
	} else {
		albums = e.Similarity.SearchAlbums(pattern)
	}
	for _, key := range albums {
		songs, err := e.Index.FindMultiple(ctx, map[string]string{"albumartist": key.Artist, "album": key.Album})
		if err != nil {
			return nil, err
		}
		if len(songs) == 0 {
			songs, err = e.Index.FindMultiple(ctx, map[string]string{"artist": key.Artist, "album": key.Album})
			if err != nil {
				return nil, err
			}
		}
		result = result.Union(orderedset.New(songs...))
	}
	sorted, err := e.Index.Sort(ctx, result)
	if err != nil {
		return nil, err
	}
	return sorted, nil
}

var (
	randomNRe   = regexp.MustCompile(`^r([0-9]+)$`)
	randomArtRe = regexp.MustCompile(`^ra([0-9]+)$`)
	randomAlbRe = regexp.MustCompile(`^rb([0-9]+)$`)
	durationRe  = regexp.MustCompile(`^d([0-9]+)$`)
	similarArtRe = regexp.MustCompile(`^(i?)sa([0-9]+)$`)
	similarAlbRe = regexp.MustCompile(`^(i?)sb([0-9]+)$`)
)

// applyModifier dispatches one MODIFIER token against the accumulated
// set, per spec.md §4.6's modifier table.
func (e *Evaluator) applyModifier(ctx context.Context, in *Set, raw string) (*Set, error) {
	modifier := strings.TrimLeft(strings.TrimPrefix(raw, "|"), " \t")

	switch {
	case modifier == "s":
		return e.Index.Sort(ctx, in)

	case randomNRe.MatchString(modifier):
		n, _ := strconv.Atoi(randomNRe.FindStringSubmatch(modifier)[1])
		set, err := e.excludeFromSpecial(ctx, in)
		if err != nil {
			return nil, err
		}
		return e.sampleSongs(set, n), nil

	case randomArtRe.MatchString(modifier):
		n, _ := strconv.Atoi(randomArtRe.FindStringSubmatch(modifier)[1])
		return e.sampleByArtist(ctx, in, n)

	case randomAlbRe.MatchString(modifier):
		n, _ := strconv.Atoi(randomAlbRe.FindStringSubmatch(modifier)[1])
		return e.sampleByAlbum(ctx, in, n)

	case durationRe.MatchString(modifier):
		n, _ := strconv.Atoi(durationRe.FindStringSubmatch(modifier)[1])
		return e.takeByDuration(ctx, in, n)

	case similarArtRe.MatchString(modifier):
		m := similarArtRe.FindStringSubmatch(modifier)
		include := m[1] == "i"
		n, _ := strconv.Atoi(m[2])
		return e.similarArtistSongs(ctx, in, n, include)

	case similarAlbRe.MatchString(modifier):
		m := similarAlbRe.FindStringSubmatch(modifier)
		include := m[1] == "i"
		n, _ := strconv.Atoi(m[2])
		return e.similarAlbumSongs(ctx, in, n, include)

	default:
		return nil, fatalf("Modifier [%v] does not exist", modifier)
	}
}

// excludeFromSpecial subtracts the special "exclude" collection (if
// present and flagged special) from set, mirroring mpdc/libs/parser.py's
// exclude_songs(): re-evaluated fresh on every call rather than cached,
// since "exclude" may itself depend on mutable daemon state.
func (e *Evaluator) excludeFromSpecial(ctx context.Context, set *Set) (*Set, error) {
	if e.excludeGuard {
		return set, nil
	}
	c, ok := e.Store.Get("exclude")
	if !ok || !c.Special {
		return set, nil
	}
	e.excludeGuard = true
	defer func() { e.excludeGuard = false }()

	excluded, err := e.evaluateCollection(ctx, "exclude", map[string]bool{})
	if err != nil {
		return nil, err
	}
	return set.Difference(excluded), nil
}

func (e *Evaluator) rng() *rand.Rand {
	if e.Rand == nil {
		e.Rand = rand.New(rand.NewSource(rand.Int63()))
	}
	return e.Rand
}

// sampleSongs returns a uniform sample of n distinct songs from set
// without replacement, or set unchanged if n exceeds its size
// (spec.md §4.6's `r<N>`).
func (e *Evaluator) sampleSongs(set *Set, n int) *Set {
	all := set.Slice()
	if n >= len(all) {
		return set
	}
	idxs := e.rng().Perm(len(all))[:n]
	out := orderedset.New[musicindex.SongRef]()
	for _, i := range idxs {
		out.Add(all[i])
	}
	return out
}

func (e *Evaluator) sampleByArtist(ctx context.Context, in *Set, n int) (*Set, error) {
	set, err := e.excludeFromSpecial(ctx, in)
	if err != nil {
		return nil, err
	}
	artists := orderedset.New[string]()
	for _, song := range set.Slice() {
		artist, err := e.Index.GetTag(ctx, song, "artist")
		if err != nil {
			return nil, err
		}
		artists.Add(artist)
	}
	allArtists := artists.Slice()
	if n >= len(allArtists) {
		n = len(allArtists)
	}
	idxs := e.rng().Perm(len(allArtists))[:n]
	chosen := make(map[string]bool, n)
	for _, i := range idxs {
		chosen[allArtists[i]] = true
	}
	out := orderedset.New[musicindex.SongRef]()
	for _, song := range set.Slice() {
		artist, err := e.Index.GetTag(ctx, song, "artist")
		if err != nil {
			return nil, err
		}
		if chosen[artist] {
			out.Add(song)
		}
	}
	return out, nil
}

func (e *Evaluator) sampleByAlbum(ctx context.Context, in *Set, n int) (*Set, error) {
	set, err := e.excludeFromSpecial(ctx, in)
	if err != nil {
		return nil, err
	}
	albums := orderedset.New[musicindex.AlbumKey]()
	for _, song := range set.Slice() {
		album, err := e.Index.GetTag(ctx, song, "album")
		if err != nil {
			return nil, err
		}
		artist, err := e.Index.GetTag(ctx, song, "albumartist")
		if err != nil {
			return nil, err
		}
		albums.Add(musicindex.AlbumKey{Album: album, Artist: artist})
	}
	allAlbums := albums.Slice()
	if n >= len(allAlbums) {
		n = len(allAlbums)
	}
	idxs := e.rng().Perm(len(allAlbums))[:n]
	chosen := make(map[musicindex.AlbumKey]bool, n)
	for _, i := range idxs {
		chosen[allAlbums[i]] = true
	}
	out := orderedset.New[musicindex.SongRef]()
	for _, song := range set.Slice() {
		album, err := e.Index.GetTag(ctx, song, "album")
		if err != nil {
			return nil, err
		}
		artist, err := e.Index.GetTag(ctx, song, "albumartist")
		if err != nil {
			return nil, err
		}
		if chosen[musicindex.AlbumKey{Album: album, Artist: artist}] {
			out.Add(song)
		}
	}
	return out, nil
}

// takeByDuration shuffles set and takes songs until the accumulated
// `time` tag reaches n minutes (spec.md §4.6's `d<N>`). A missing or
// non-numeric time tag counts as zero seconds (spec.md §9's explicit
// open-question decision).
func (e *Evaluator) takeByDuration(ctx context.Context, in *Set, n int) (*Set, error) {
	set, err := e.excludeFromSpecial(ctx, in)
	if err != nil {
		return nil, err
	}
	budget := n * 60
	songs := set.Slice()
	e.rng().Shuffle(len(songs), func(i, j int) { songs[i], songs[j] = songs[j], songs[i] })

	out := orderedset.New[musicindex.SongRef]()
	total := 0
	for _, song := range songs {
		if total >= budget {
			break
		}
		out.Add(song)
		raw, err := e.Index.GetTag(ctx, song, "time")
		if err != nil {
			return nil, err
		}
		if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			total += secs
		}
	}
	return out, nil
}

// similarArtistSongs computes a weighted tag vector over the input
// set's artists, ranks the library's artists by cosine similarity, and
// returns songs from the top n ranked artists (spec.md §4.6's `sa<N>`
// / `isa<N>`).
func (e *Evaluator) similarArtistSongs(ctx context.Context, in *Set, n int, include bool) (*Set, error) {
	in, err := e.excludeFromSpecial(ctx, in)
	if err != nil {
		return nil, err
	}

	weights := make(similarity.TagWeights)
	for _, song := range in.Slice() {
		artist, err := e.Index.GetTag(ctx, song, "artist")
		if err != nil {
			return nil, err
		}
		for tag, w := range e.Similarity.GetArtistTags(ctx, artist, false) {
			weights[tag] += w
		}
	}
	if len(weights) == 0 {
		if include {
			return in, nil
		}
		return orderedset.New[musicindex.SongRef](), nil
	}

	out := orderedset.New[musicindex.SongRef]()
	for _, scored := range e.Similarity.SimilarArtists(weights) {
		if n <= 0 {
			break
		}
		matched, err := e.Index.Find(ctx, "artist", scored.Artist)
		if err != nil {
			return nil, err
		}
		matchedSet := orderedset.New(matched...)
		if !include {
			matchedSet = matchedSet.Difference(in)
		}
		if matchedSet.Len() == 0 {
			continue
		}
		out = out.Union(matchedSet)
		n--
	}
	return out, nil
}

// similarAlbumSongs is similarArtistSongs's symmetric counterpart for
// albums (spec.md §4.6's `sb<N>` / `isb<N>`).
func (e *Evaluator) similarAlbumSongs(ctx context.Context, in *Set, n int, include bool) (*Set, error) {
	in, err := e.excludeFromSpecial(ctx, in)
	if err != nil {
		return nil, err
	}

	weights := make(similarity.TagWeights)
	for _, song := range in.Slice() {
		album, err := e.Index.GetTag(ctx, song, "album")
		if err != nil {
			return nil, err
		}
		artist, err := e.Index.GetTag(ctx, song, "albumartist")
		if err != nil {
			return nil, err
		}
		for tag, w := range e.Similarity.GetAlbumTags(ctx, album, artist, false) {
			weights[tag] += w
		}
	}
	if len(weights) == 0 {
		if include {
			return in, nil
		}
		return orderedset.New[musicindex.SongRef](), nil
	}

	out := orderedset.New[musicindex.SongRef]()
	for _, scored := range e.Similarity.SimilarAlbums(weights) {
		if n <= 0 {
			break
		}
		matched, err := e.Index.FindMultiple(ctx, map[string]string{"albumartist": scored.Key.Artist, "album": scored.Key.Album})
		if err != nil {
			return nil, err
		}
		if len(matched) == 0 {
			matched, err = e.Index.FindMultiple(ctx, map[string]string{"artist": scored.Key.Artist, "album": scored.Key.Album})
			if err != nil {
				return nil, err
			}
		}
		matchedSet := orderedset.New(matched...)
		if !include {
			matchedSet = matchedSet.Difference(in)
		}
		if matchedSet.Len() == 0 {
			continue
		}
		out = out.Union(matchedSet)
		n--
	}
	return out, nil
}
