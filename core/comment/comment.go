package comment

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/trezcool/ripoti/core"
)

const MaxContentLength = 5000

var (
	ErrNotFound  = core.NewNotFoundError("comment not found")
	ErrNotAuthor = core.NewPermissionError("only the author can delete a comment")
)

type Filter string

const (
	FilterAll        Filter = "all"
	FilterUnresolved Filter = "unresolved"
	FilterResolved   Filter = "resolved"
)

func (f Filter) Valid() bool {
	return f == FilterAll || f == FilterUnresolved || f == FilterResolved
}

type (
	// User is the minimal identity shown next to comments & in mention suggestions.
	User struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}

	// Anchor pins a comment either to an element or to a point of a page.
	Anchor struct {
		ElementID string  `json:"element_id,omitempty"`
		PageID    string  `json:"page_id,omitempty"`
		X         float64 `json:"x,omitempty"`
		Y         float64 `json:"y,omitempty"`
	}

	Reply struct {
		ID        string    `json:"id"`
		Author    User      `json:"author"`
		Content   string    `json:"content"`
		CreatedAt time.Time `json:"created_at"` // UTC
	}

	Comment struct {
		ID         string    `json:"id"`
		Author     User      `json:"author"`
		Content    string    `json:"content"` // raw, with mention tokens
		Anchor     Anchor    `json:"anchor"`
		Resolved   bool      `json:"resolved"`
		ResolvedBy string    `json:"resolved_by,omitempty"`
		ResolvedAt time.Time `json:"resolved_at"` // UTC
		Replies    []Reply   `json:"replies"`
		CreatedAt  time.Time `json:"created_at"` // UTC
	}
)

func ElementAnchor(elementID string) Anchor {
	return Anchor{ElementID: elementID}
}

func PointAnchor(pageID string, x, y float64) Anchor {
	return Anchor{PageID: pageID, X: x, Y: y}
}

func (a Anchor) IsElement() bool { return a.ElementID != "" }

func (c Comment) Clone() Comment {
	if c.Replies != nil {
		replies := make([]Reply, len(c.Replies))
		copy(replies, c.Replies)
		c.Replies = replies
	}
	return c
}

// CloneAll returns a deep copy of comments.
func CloneAll(comments []Comment) []Comment {
	if comments == nil {
		return nil
	}
	cloned := make([]Comment, len(comments))
	for i, c := range comments {
		cloned[i] = c.Clone()
	}
	return cloned
}

// Board holds the comment threads of a report.
type Board struct {
	comments []Comment
	newID    func() string
	now      func() time.Time
}

func NewBoard(comments []Comment, newID func() string, now func() time.Time) *Board {
	return &Board{comments: CloneAll(comments), newID: newID, now: now}
}

func cleanContent(content string) (string, error) {
	content = core.CleanString(content)
	if content == "" {
		return "", core.NewValidationError(nil, core.FieldError{Field: "content", Error: "this field is required"})
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return "", core.NewValidationError(nil, core.FieldError{
			Field: "content",
			Error: "content must be a maximum of 5000 characters in length",
		})
	}
	return content, nil
}

func (b *Board) index(id string) int {
	for i, c := range b.comments {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Add creates a new unresolved comment. Mention tokens are stored as-is.
func (b *Board) Add(author User, content string, anchor Anchor) (Comment, error) {
	content, err := cleanContent(content)
	if err != nil {
		return Comment{}, err
	}
	if anchor.ElementID == "" && anchor.PageID == "" {
		return Comment{}, core.NewValidationError(nil, core.FieldError{Field: "anchor", Error: "an element or a page position is required"})
	}
	if anchor.IsElement() {
		anchor = ElementAnchor(anchor.ElementID)
	}

	c := Comment{
		ID:        b.newID(),
		Author:    author,
		Content:   content,
		Anchor:    anchor,
		Replies:   []Reply{},
		CreatedAt: b.now().UTC(),
	}
	b.comments = append(b.comments, c)
	return c.Clone(), nil
}

func (b *Board) Reply(id string, author User, content string) (Reply, error) {
	i := b.index(id)
	if i < 0 {
		return Reply{}, ErrNotFound
	}
	content, err := cleanContent(content)
	if err != nil {
		return Reply{}, err
	}
	r := Reply{ID: b.newID(), Author: author, Content: content, CreatedAt: b.now().UTC()}
	b.comments[i].Replies = append(b.comments[i].Replies, r)
	return r, nil
}

// Resolve marks the comment as resolved. Resolving twice is a no-op.
func (b *Board) Resolve(id string, by User) error {
	i := b.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if b.comments[i].Resolved {
		return nil
	}
	b.comments[i].Resolved = true
	b.comments[i].ResolvedBy = by.ID
	b.comments[i].ResolvedAt = b.now().UTC()
	return nil
}

func (b *Board) Reopen(id string) error {
	i := b.index(id)
	if i < 0 {
		return ErrNotFound
	}
	b.comments[i].Resolved = false
	b.comments[i].ResolvedBy = ""
	b.comments[i].ResolvedAt = time.Time{}
	return nil
}

// Delete hard deletes the comment & its replies. Only the author may delete.
func (b *Board) Delete(id string, by User) error {
	i := b.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if b.comments[i].Author.ID != by.ID {
		return ErrNotAuthor
	}
	b.comments = append(b.comments[:i], b.comments[i+1:]...)
	return nil
}

func (b *Board) Get(id string) (Comment, bool) {
	if i := b.index(id); i >= 0 {
		return b.comments[i].Clone(), true
	}
	return Comment{}, false
}

// List returns the comments matching filter, oldest first.
func (b *Board) List(filter Filter) []Comment {
	list := make([]Comment, 0, len(b.comments))
	for _, c := range b.comments {
		switch {
		case filter == FilterUnresolved && c.Resolved:
			continue
		case filter == FilterResolved && !c.Resolved:
			continue
		}
		list = append(list, c.Clone())
	}
	return list
}

func (b *Board) UnresolvedCount() int {
	var n int
	for _, c := range b.comments {
		if !c.Resolved {
			n++
		}
	}
	return n
}

// All returns a copy of every comment.
func (b *Board) All() []Comment {
	return CloneAll(b.comments)
}

// Excerpt returns the plain text of content shortened to max runes.
func Excerpt(content string, max int) string {
	text := PlainText(content)
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:max])) + "…"
}
