package spelling

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

//go:embed words.txt
var defaultWords string

// Entry is one dictionary word with its relative frequency.
type Entry struct {
	Word      string `json:"word"`
	Frequency int    `json:"frequency"`
}

// Dictionary is an immutable, sorted word list used for prefix suggestions.
type Dictionary struct {
	entries []Entry
}

// NewDictionary builds a dictionary from entries. Words are upper-cased;
// duplicates keep the highest frequency and blank words are dropped.
func NewDictionary(entries []Entry) *Dictionary {
	byWord := make(map[string]int, len(entries))
	for _, e := range entries {
		w := strings.ToUpper(strings.TrimSpace(e.Word))
		if w == "" {
			continue
		}
		if f, ok := byWord[w]; !ok || e.Frequency > f {
			byWord[w] = e.Frequency
		}
	}

	d := &Dictionary{entries: make([]Entry, 0, len(byWord))}
	for w, f := range byWord {
		d.entries = append(d.entries, Entry{Word: w, Frequency: f})
	}
	sort.Slice(d.entries, func(i, j int) bool {
		return d.entries[i].Word < d.entries[j].Word
	})
	return d
}

// DefaultDictionary returns the embedded English word list.
func DefaultDictionary() *Dictionary {
	entries, err := LoadWords(strings.NewReader(defaultWords))
	if err != nil {
		panic(fmt.Sprintf("embedded word list: %v", err))
	}
	return NewDictionary(entries)
}

// Merge returns a new dictionary holding d's entries plus extra.
func (d *Dictionary) Merge(extra ...Entry) *Dictionary {
	all := make([]Entry, 0, d.Len()+len(extra))
	if d != nil {
		all = append(all, d.entries...)
	}
	all = append(all, extra...)
	return NewDictionary(all)
}

// Len returns the number of words.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// contains reports whether word is in the dictionary.
func (d *Dictionary) contains(word string) bool {
	if d == nil {
		return false
	}
	w := strings.ToUpper(word)
	i := sort.Search(len(d.entries), func(i int) bool { return d.entries[i].Word >= w })
	return i < len(d.entries) && d.entries[i].Word == w
}

// Suggest returns up to limit words starting with prefix. An exact match
// ranks first, then higher frequency, shorter words and alphabetical order.
// An empty prefix yields no suggestions.
func (d *Dictionary) Suggest(prefix string, limit int) []string {
	prefix = strings.ToUpper(prefix)
	if d == nil || prefix == "" || limit <= 0 {
		return nil
	}

	lo := sort.Search(len(d.entries), func(i int) bool { return d.entries[i].Word >= prefix })
	hi := lo
	for hi < len(d.entries) && strings.HasPrefix(d.entries[hi].Word, prefix) {
		hi++
	}
	if lo == hi {
		return nil
	}

	matches := make([]Entry, hi-lo)
	copy(matches, d.entries[lo:hi])
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if (a.Word == prefix) != (b.Word == prefix) {
			return a.Word == prefix
		}
		if a.Frequency != b.Frequency {
			return a.Frequency > b.Frequency
		}
		if len(a.Word) != len(b.Word) {
			return len(a.Word) < len(b.Word)
		}
		return a.Word < b.Word
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	words := make([]string, len(matches))
	for i, m := range matches {
		words[i] = m.Word
	}
	return words
}

// LoadWords parses a word list: one "word [frequency]" per line, blank lines
// and lines starting with # ignored. A missing frequency counts as 1.
func LoadWords(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Fields(text)
		entry := Entry{Word: fields[0], Frequency: 1}
		if len(fields) > 1 {
			f, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid frequency %q: %w", line, fields[1], err)
			}
			entry.Frequency = f
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read word list: %w", err)
	}
	return entries, nil
}
