package store

import "github.com/halfwit/mpdq/internal/musicindex"

// Kind distinguishes a user-defined collection from one mirroring a
// native stored playlist (spec.md §3).
type Kind int

const (
	User Kind = iota
	StoredPlaylist
)

// Collection is a single named bundle of songs (spec.md §3). Exactly
// one of Expression, Command or Songs is typically set, but any
// combination is legal — the evaluator unions whichever are present.
type Collection struct {
	Alias string
	Kind  Kind

	Sort    bool // prefixed "@"; mutually exclusive with StoredPlaylist
	Special bool // prefixed "#"; mutually exclusive with StoredPlaylist

	Expression string // raw sub-query text, may be empty
	Command    string // shell command, may be empty
	Songs      []musicindex.SongRef
}

// collectionMap is an insertion-ordered map of alias to *Collection.
// Go maps have no iteration order guarantee, so order is tracked
// explicitly to satisfy the round-trip stability requirement in
// spec.md §9 (testable property 5).
type collectionMap struct {
	byAlias map[string]*Collection
	order   []string
}

func newCollectionMap() *collectionMap {
	return &collectionMap{byAlias: make(map[string]*Collection)}
}

func (m *collectionMap) get(alias string) (*Collection, bool) {
	c, ok := m.byAlias[alias]
	return c, ok
}

func (m *collectionMap) set(c *Collection) {
	if _, exists := m.byAlias[c.Alias]; !exists {
		m.order = append(m.order, c.Alias)
	}
	m.byAlias[c.Alias] = c
}

func (m *collectionMap) aliases() []string {
	return m.order
}

func (m *collectionMap) clone() *collectionMap {
	c := newCollectionMap()
	for _, alias := range m.order {
		orig := m.byAlias[alias]
		cp := *orig
		cp.Songs = append([]musicindex.SongRef{}, orig.Songs...)
		c.set(&cp)
	}
	return c
}
