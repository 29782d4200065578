package comment

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pmezard/go-difflib/difflib"
)

// MaxSuggestions is the maximum number of mention candidates shown at once.
const MaxSuggestions = 5

type Key string

const (
	KeyUp     Key = "ArrowUp"
	KeyDown   Key = "ArrowDown"
	KeyEnter  Key = "Enter"
	KeyTab    Key = "Tab"
	KeyEscape Key = "Escape"
)

// Suggest ranks the users whose name contains query (case-insensitive).
// Prefix matches come first, then earlier matches, then closer names.
func Suggest(users []User, query string) []User {
	q := strings.ToLower(query)

	type candidate struct {
		user   User
		index  int
		prefix bool
		ratio  float64
	}
	candidates := make([]candidate, 0, len(users))
	for _, u := range users {
		name := strings.ToLower(u.Name)
		idx := strings.Index(name, q)
		if idx < 0 {
			continue
		}
		c := candidate{user: u, index: idx, prefix: idx == 0}
		if q != "" {
			c.ratio = difflib.NewMatcher(strings.Split(q, ""), strings.Split(name, "")).Ratio()
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.prefix != cj.prefix {
			return ci.prefix
		}
		if ci.index != cj.index {
			return ci.index < cj.index
		}
		if ci.ratio != cj.ratio {
			return ci.ratio > cj.ratio
		}
		return strings.ToLower(ci.user.Name) < strings.ToLower(cj.user.Name)
	})

	if len(candidates) > MaxSuggestions {
		candidates = candidates[:MaxSuggestions]
	}
	suggestions := make([]User, 0, len(candidates))
	for _, c := range candidates {
		suggestions = append(suggestions, c.user)
	}
	return suggestions
}

// Autocomplete tracks the mention suggestions of a comment composer.
// Cursor positions are rune offsets into the composer text.
type Autocomplete struct {
	users       []User
	open        bool
	query       string
	start       int // rune offset of the '@'
	results     []User
	highlighted int
}

func NewAutocomplete(users []User) *Autocomplete {
	return &Autocomplete{users: users}
}

// SetUsers replaces the mentionable users.
func (a *Autocomplete) SetUsers(users []User) {
	a.users = users
	a.Close()
}

func (a *Autocomplete) IsOpen() bool     { return a.open }
func (a *Autocomplete) Query() string    { return a.query }
func (a *Autocomplete) Results() []User  { return append([]User(nil), a.results...) }
func (a *Autocomplete) Highlighted() int { return a.highlighted }

func (a *Autocomplete) Close() {
	a.open = false
	a.query = ""
	a.start = 0
	a.results = nil
	a.highlighted = 0
}

// Update re-evaluates the suggestions after the composer text or cursor changed.
// Suggestions open when the word under the cursor starts with '@' and holds no whitespace.
func (a *Autocomplete) Update(text string, cursor int) {
	runes := []rune(text)
	if cursor < 0 || cursor > len(runes) {
		cursor = len(runes)
	}

	start := -1
	for i := cursor - 1; i >= 0; i-- {
		r := runes[i]
		if unicode.IsSpace(r) {
			break
		}
		if r == '@' {
			if i == 0 || unicode.IsSpace(runes[i-1]) {
				start = i
			}
			break
		}
	}
	if start < 0 {
		a.Close()
		return
	}

	query := string(runes[start+1 : cursor])
	if strings.ContainsAny(query, "[]()") { // inside a committed token
		a.Close()
		return
	}

	results := Suggest(a.users, query)
	if len(results) == 0 {
		a.Close()
		return
	}
	if !a.open || a.query != query {
		a.highlighted = 0
	}
	a.open = true
	a.query = query
	a.start = start
	a.results = results
	if a.highlighted >= len(results) {
		a.highlighted = 0
	}
}

// HandleKey applies a navigation key. Enter & Tab insert the highlighted user's token.
// handled is false when suggestions are closed or the key is not a navigation key,
// in which case text & cursor are returned unchanged.
func (a *Autocomplete) HandleKey(key Key, text string, cursor int) (newText string, newCursor int, handled bool) {
	if !a.open || len(a.results) == 0 {
		return text, cursor, false
	}
	switch key {
	case KeyDown:
		a.highlighted = (a.highlighted + 1) % len(a.results)
		return text, cursor, true
	case KeyUp:
		a.highlighted = (a.highlighted - 1 + len(a.results)) % len(a.results)
		return text, cursor, true
	case KeyEscape:
		a.Close()
		return text, cursor, true
	case KeyEnter, KeyTab:
		newText, newCursor = a.Commit(text, cursor, a.highlighted)
		return newText, newCursor, true
	}
	return text, cursor, false
}

// Commit replaces the `@query` under the cursor with the token of results[i] followed by a space.
func (a *Autocomplete) Commit(text string, cursor, i int) (string, int) {
	if !a.open || i < 0 || i >= len(a.results) {
		return text, cursor
	}
	runes := []rune(text)
	if cursor < 0 || cursor > len(runes) {
		cursor = len(runes)
	}
	if a.start >= len(runes) || runes[a.start] != '@' {
		// the text changed under the suggestions
		a.Close()
		return text, cursor
	}
	end := a.start + 1 + len([]rune(a.query))
	if end > len(runes) || end < cursor {
		end = cursor
	}
	if end <= a.start {
		end = a.start + 1
	}

	token := []rune(MentionToken(a.results[i]) + " ")
	out := make([]rune, 0, len(runes)+len(token))
	out = append(out, runes[:a.start]...)
	out = append(out, token...)
	out = append(out, runes[end:]...)
	newCursor := a.start + len(token)

	a.Close()
	return string(out), newCursor
}
