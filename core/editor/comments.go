package editor

import (
	"time"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/comment"
	"github.com/trezcool/ripoti/core/report"
)

type (
	// Anchor is where a new comment is pinned: an element, or a point of the page at index Page.
	Anchor struct {
		ElementID string  `json:"element_id"`
		Page      int     `json:"page_index"`
		X         float64 `json:"x"`
		Y         float64 `json:"y"`
	}

	ReplyView struct {
		comment.Reply
		HTML string `json:"html"`
	}

	// CommentView is a comment as rendered in the side panel.
	// Orphaned comments lost their element or page; their anchor is nil.
	CommentView struct {
		ID         string          `json:"id"`
		Author     comment.User    `json:"author"`
		Content    string          `json:"content"`
		HTML       string          `json:"html"`
		Anchor     *comment.Anchor `json:"anchor"`
		PageIndex  int             `json:"page_index"` // -1 if orphaned
		Orphaned   bool            `json:"orphaned"`
		Resolved   bool            `json:"resolved"`
		ResolvedBy string          `json:"resolved_by,omitempty"`
		ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
		Replies    []ReplyView     `json:"replies"`
		CreatedAt  time.Time       `json:"created_at"`
	}

	// MentionState is the mention suggestion popup of the comment composer.
	MentionState struct {
		Open        bool           `json:"open"`
		Query       string         `json:"query"`
		Results     []comment.User `json:"results"`
		Highlighted int            `json:"highlighted"`
	}
)

func (s *Session) commentable() error {
	if !s.actor.Role.CanComment() {
		return report.ErrCommentDenied
	}
	return nil
}

func (s *Session) resolveAnchor(a Anchor) (comment.Anchor, error) {
	if a.ElementID != "" {
		if !s.doc.ElementExists(a.ElementID) {
			return comment.Anchor{}, ErrElementNotFound
		}
		return comment.ElementAnchor(a.ElementID), nil
	}
	if err := s.checkPage(a.Page); err != nil {
		return comment.Anchor{}, err
	}
	return comment.PointAnchor(s.doc.Pages[a.Page].ID, clampCoord(a.X), clampCoord(a.Y)), nil
}

// AddComment pins a new comment. Comments are not part of the undo history.
func (s *Session) AddComment(content string, anchor Anchor) (CommentView, error) {
	if err := s.commentable(); err != nil {
		return CommentView{}, err
	}
	ca, err := s.resolveAnchor(anchor)
	if err != nil {
		return CommentView{}, err
	}
	c, err := s.comments.Add(s.actor.commentUser(), content, ca)
	if err != nil {
		return CommentView{}, err
	}
	s.touch()
	return s.view(c), nil
}

func (s *Session) Reply(commentID, content string) (ReplyView, error) {
	if err := s.commentable(); err != nil {
		return ReplyView{}, err
	}
	r, err := s.comments.Reply(commentID, s.actor.commentUser(), content)
	if err != nil {
		return ReplyView{}, err
	}
	s.touch()
	return ReplyView{Reply: r, HTML: comment.RenderContent(r.Content)}, nil
}

func (s *Session) ResolveComment(id string) error {
	if err := s.commentable(); err != nil {
		return err
	}
	if err := s.comments.Resolve(id, s.actor.commentUser()); err != nil {
		return err
	}
	s.touch()
	return nil
}

func (s *Session) ReopenComment(id string) error {
	if err := s.commentable(); err != nil {
		return err
	}
	if err := s.comments.Reopen(id); err != nil {
		return err
	}
	s.touch()
	return nil
}

// DeleteComment hard deletes a comment & its replies. Only its author may do it.
func (s *Session) DeleteComment(id string) error {
	if err := s.commentable(); err != nil {
		return err
	}
	if err := s.comments.Delete(id, s.actor.commentUser()); err != nil {
		return err
	}
	s.touch()
	return nil
}

// Comment returns a single comment view.
func (s *Session) Comment(id string) (CommentView, error) {
	c, ok := s.comments.Get(id)
	if !ok {
		return CommentView{}, comment.ErrNotFound
	}
	return s.view(c), nil
}

// Comments lists the comments matching filter, oldest first.
func (s *Session) Comments(filter comment.Filter) ([]CommentView, error) {
	if filter == "" {
		filter = comment.FilterAll
	}
	if !filter.Valid() {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "filter", Error: "filter must be one of [all unresolved resolved]"})
	}
	list := s.comments.List(filter)
	views := make([]CommentView, 0, len(list))
	for _, c := range list {
		views = append(views, s.view(c))
	}
	return views, nil
}

func (s *Session) UnresolvedCount() int { return s.comments.UnresolvedCount() }

func (s *Session) view(c comment.Comment) CommentView {
	v := CommentView{
		ID:         c.ID,
		Author:     c.Author,
		Content:    c.Content,
		HTML:       comment.RenderContent(c.Content),
		PageIndex:  -1,
		Resolved:   c.Resolved,
		ResolvedBy: c.ResolvedBy,
		Replies:    make([]ReplyView, 0, len(c.Replies)),
		CreatedAt:  c.CreatedAt,
	}
	if c.Resolved {
		at := c.ResolvedAt
		v.ResolvedAt = &at
	}
	for _, r := range c.Replies {
		v.Replies = append(v.Replies, ReplyView{Reply: r, HTML: comment.RenderContent(r.Content)})
	}

	if c.Anchor.IsElement() {
		if pi, _, ok := s.doc.FindElement(c.Anchor.ElementID); ok {
			v.PageIndex = pi
		}
	} else {
		v.PageIndex = s.doc.PageIndex(c.Anchor.PageID)
	}
	if v.PageIndex < 0 {
		v.Orphaned = true
	} else {
		anchor := c.Anchor
		v.Anchor = &anchor
	}
	return v
}

func (s *Session) mentionState() MentionState {
	return MentionState{
		Open:        s.composer.IsOpen(),
		Query:       s.composer.Query(),
		Results:     s.composer.Results(),
		Highlighted: s.composer.Highlighted(),
	}
}

// ComposerInput updates the mention suggestions for the composer text & cursor (in runes).
func (s *Session) ComposerInput(text string, cursor int) MentionState {
	s.composer.Update(text, cursor)
	return s.mentionState()
}

// ComposerKey forwards a key press to the mention suggestions.
// When handled is false the key belongs to the composer itself.
func (s *Session) ComposerKey(key comment.Key, text string, cursor int) (newText string, newCursor int, handled bool, state MentionState) {
	newText, newCursor, handled = s.composer.HandleKey(key, text, cursor)
	return newText, newCursor, handled, s.mentionState()
}

// MentionableUsers returns the users that may be mentioned in this report.
func (s *Session) MentionableUsers() []comment.User {
	return s.doc.MentionableUsers()
}
