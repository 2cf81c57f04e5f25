package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/halfwit/mpdq/internal/musicindex"
	"github.com/halfwit/mpdq/internal/warn"
)

// parseFile converts the human-readable collections-file text into a
// collectionMap, per spec.md §4.4/§6. A collection block is introduced
// by a line beginning "--", optionally followed by "@" (sort) or "#"
// (special); body lines accumulate into Command, a Songs section, or
// Expression, exactly as mpdc/libs/collectionsmanager.py's
// raw_to_optimized does.
func parseFile(ctx context.Context, text string, idx *musicindex.Index) *collectionMap {
	m := newCollectionMap()
	var cur *Collection
	inSongs := false

	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "--") {
			rest := line[2:]
			sort, special := false, false
			if strings.HasPrefix(rest, "@") {
				sort = true
				rest = rest[1:]
			} else if strings.HasPrefix(rest, "#") {
				special = true
				rest = rest[1:]
			}
			alias := strings.TrimSpace(rest)
			cur = &Collection{Alias: alias, Sort: sort, Special: special}
			m.set(cur)
			inSongs = false
			continue
		}
		if cur == nil {
			continue
		}
		switch {
		case strings.HasPrefix(line, "command:"):
			cur.Command = strings.TrimSpace(line[len("command:"):])
			inSongs = false
		case strings.HasPrefix(line, "songs:"):
			inSongs = true
		case strings.TrimSpace(line) == "":
			// blank lines don't terminate a songs section or expression.
		case inSongs && (strings.HasPrefix(line, "    ") || strings.HasPrefix(line, "\t")):
			tags, err := parseSongTuple(line)
			if err != nil {
				warn.Warning("In collection [%v], malformed songs entry: %v", cur.Alias, err)
				continue
			}
			matches, ferr := idx.FindMultiple(ctx, map[string]string{
				"artist": tags[0], "album": tags[1], "title": tags[2], "track": tags[3],
			})
			if ferr != nil || len(matches) == 0 {
				warn.Warning("In collection [%v], these tags do not match any song: %v",
					cur.Alias, reprTags(tags[:]))
				continue
			}
			cur.Songs = append(cur.Songs, matches[0])
		default:
			if cur.Expression == "" {
				cur.Expression = line
			} else {
				cur.Expression += "\n" + line
			}
		}
	}
	return m
}

// parseSongTuple parses a line of the form
// `    "artist", "album", "title", "track"` into its four fields,
// unescaping \" within each quoted field.
func parseSongTuple(line string) ([4]string, error) {
	var out [4]string
	s := strings.TrimSpace(line)
	for i := 0; i < 4; i++ {
		if s == "" || s[0] != '"' {
			return out, fmt.Errorf("expected quoted field, got %q", s)
		}
		s = s[1:]
		var b strings.Builder
		closed := false
		for len(s) > 0 {
			if s[0] == '\\' && len(s) > 1 && s[1] == '"' {
				b.WriteByte('"')
				s = s[2:]
				continue
			}
			if s[0] == '"' {
				s = s[1:]
				closed = true
				break
			}
			b.WriteByte(s[0])
			s = s[1:]
		}
		if !closed {
			return out, fmt.Errorf("unterminated quoted field in %q", line)
		}
		out[i] = b.String()
		s = strings.TrimSpace(s)
		if i < 3 {
			if s == "" || s[0] != ',' {
				return out, fmt.Errorf("expected ',' after field %d in %q", i, line)
			}
			s = strings.TrimSpace(s[1:])
		}
	}
	return out, nil
}

// escQuotes escapes double quotes for serialization, mirroring
// mpdc/libs/utils.py's esc_quotes.
func escQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// reprTags renders tags as a comma-separated list of quoted strings,
// mirroring mpdc/libs/utils.py's repr_tags.
func reprTags(tags []string) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = fmt.Sprintf(`"%s"`, escQuotes(t))
	}
	return strings.Join(parts, ", ")
}

// serialize renders m back to collections-file text, omitting stored
// playlists, per spec.md §4.4's write_file.
func serialize(ctx context.Context, m *collectionMap, idx *musicindex.Index) string {
	var b strings.Builder
	for _, alias := range m.aliases() {
		c := m.byAlias[alias]
		if c.Kind == StoredPlaylist {
			continue
		}
		switch {
		case c.Sort:
			b.WriteString("--@" + alias)
		case c.Special:
			b.WriteString("--#" + alias)
		default:
			b.WriteString("--" + alias)
		}
		if c.Expression != "" {
			b.WriteString("\n" + strings.TrimRight(c.Expression, " \t\n"))
		}
		if c.Command != "" {
			b.WriteString("\ncommand: " + c.Command)
		}
		if len(c.Songs) > 0 {
			b.WriteString("\nsongs:")
			for _, song := range c.Songs {
				rec, err := idx.GetTags(ctx, song)
				if err != nil {
					continue
				}
				b.WriteString("\n    " + reprTags([]string{rec.Artist, rec.Album, rec.Title, rec.Track}))
			}
		}
		b.WriteString("\n\n\n")
	}
	return strings.TrimSpace(b.String())
}
