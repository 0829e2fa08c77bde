package data

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// ItemNames maps item id to display name. It is built once and only read
// afterwards, so it is safe to share between goroutines.
type ItemNames map[string]string

// Name implements engine.Lookup.
func (n ItemNames) Name(id string) (string, bool) {
	name, ok := n[id]
	return name, ok
}

// asciiOnly drops every non-ASCII rune, including bytes that are not valid
// UTF-8 (they decode as utf8.RuneError).
var asciiOnly = runes.Remove(runes.Predicate(func(r rune) bool {
	return r >= utf8.RuneSelf
}))

// LoadItemNames opens a pipe-delimited item table (id|name|...).
func LoadItemNames(path string) (ItemNames, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("data: opening items %s: %w", path, err)
	}
	defer f.Close()

	names, err := ReadItemNames(f)
	if err != nil {
		return nil, fmt.Errorf("data: reading items %s: %w", path, err)
	}
	return names, nil
}

// ReadItemNames parses an item table. Lines without a name field are skipped.
func ReadItemNames(r io.Reader) (ItemNames, error) {
	sc := bufio.NewScanner(transform.NewReader(r, asciiOnly))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	names := make(ItemNames, 2048)
	for sc.Scan() {
		fields := strings.Split(strings.TrimRight(sc.Text(), "\r"), "|")
		if len(fields) < 2 {
			continue
		}
		id := strings.TrimSpace(fields[0])
		if id == "" {
			continue
		}
		names[id] = fields[1]
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return names, nil
}
