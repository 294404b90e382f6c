package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2/unstable"
)

// header is a table or array-table header of the document.
type header struct {
	keys  []string
	line  int
	array bool
}

func (h header) is(keys ...string) bool {
	if h.array || len(h.keys) != len(keys) {
		return false
	}
	for i := range keys {
		if h.keys[i] != keys[i] {
			return false
		}
	}
	return true
}

func (h header) under(prefix ...string) bool {
	if len(h.keys) < len(prefix) {
		return false
	}
	for i := range prefix {
		if h.keys[i] != prefix[i] {
			return false
		}
	}
	return true
}

// keyValue is a key/value expression spanning lines first through last.
// Comment and blank lines after the value are not part of it.
type keyValue struct {
	keys        []string
	table       int // enclosing header index, -1 for the root table
	first, last int
}

func (kv keyValue) name() (string, bool) {
	if len(kv.keys) != 1 {
		return "", false
	}
	return kv.keys[0], true
}

// layout locates the headers and key/values of a document by line, as
// reported by the TOML parser.
type layout struct {
	lines   []string
	headers []header
	entries []keyValue
}

func scan(text string) (*layout, error) {
	data := []byte(text)
	l := &layout{lines: splitLines(text)}
	starts := []int{0}
	for i, c := range data {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	lineOf := func(off uint32) int {
		return sort.Search(len(starts), func(i int) bool { return starts[i] > int(off) }) - 1
	}

	open := -1
	closeEntry := func(next int) {
		if open >= 0 {
			l.entries[open].last = l.trim(l.entries[open].last, next)
			open = -1
		}
	}

	var p unstable.Parser
	p.Reset(data)
	for p.NextExpression() {
		e := p.Expression()
		switch e.Kind {
		case unstable.Table, unstable.ArrayTable:
			keys, off := keyParts(e.Key())
			h := header{keys: keys, line: lineOf(off), array: e.Kind == unstable.ArrayTable}
			closeEntry(h.line)
			l.headers = append(l.headers, h)
		case unstable.KeyValue:
			keys, off := keyParts(e.Key())
			first := lineOf(off)
			closeEntry(first)
			l.entries = append(l.entries, keyValue{
				keys:  keys,
				table: len(l.headers) - 1,
				first: first,
				last:  max(first, lineOf(lastOffset(e.Value()))),
			})
			open = len(l.entries) - 1
		}
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	closeEntry(l.end())
	return l, nil
}

// trim returns the last line before next that still belongs to an entry
// whose value ends on line leaf.
func (l *layout) trim(leaf, next int) int {
	last := next - 1
	for last > leaf && (isBlank(l.lines[last]) || isComment(l.lines[last])) {
		last--
	}
	return max(last, leaf)
}

// end is the number of lines, not counting the empty element left by a
// final newline.
func (l *layout) end() int {
	n := len(l.lines)
	if n > 0 && l.lines[n-1] == "" {
		n--
	}
	return n
}

// regionEnd is the line after the last line belonging to header i.
func (l *layout) regionEnd(i int) int {
	if i+1 < len(l.headers) {
		return l.headers[i+1].line
	}
	return l.end()
}

func (l *layout) findHeader(keys ...string) int {
	for i, h := range l.headers {
		if h.is(keys...) {
			return i
		}
	}
	return -1
}

func keyParts(it unstable.Iterator) ([]string, uint32) {
	var keys []string
	var off uint32
	for it.Next() {
		n := it.Node()
		if keys == nil {
			off = n.Raw.Offset
		}
		keys = append(keys, string(n.Data))
	}
	return keys, off
}

// lastOffset is the greatest input offset covered by n or its children.
// Arrays and booleans carry no range of their own.
func lastOffset(n *unstable.Node) uint32 {
	var end uint32
	if n.Raw.Length > 0 {
		end = n.Raw.Offset + n.Raw.Length - 1
	}
	it := n.Children()
	for it.Next() {
		end = max(end, lastOffset(it.Node()))
	}
	return end
}

func isBare(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_' || c == '-'
}

// key renders a TOML key, quoting it unless it is bare.
func key(s string) string {
	if s == "" {
		return `""`
	}
	for i := 0; i < len(s); i++ {
		if !isBare(s[i]) {
			return quote(s)
		}
	}
	return s
}

// quote renders a TOML basic string.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
				continue
			}
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

func splitLines(text string) []string {
	return strings.Split(text, "\n")
}
