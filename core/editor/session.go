package editor

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/ripoti/core/comment"
	"github.com/trezcool/ripoti/core/report"
)

const DefaultHistoryLimit = 100

type (
	// Actor is the user driving a session & their role on the report.
	Actor struct {
		UserID    string      `json:"user_id"`
		Name      string      `json:"name"`
		AvatarURL string      `json:"avatar_url"`
		Role      report.Role `json:"role"`
	}

	Options struct {
		Validate     *validator.Validate
		HistoryLimit int
		NewID        func() string
		Now          func() time.Time
	}

	// Session is the editing state of one user on one report.
	// It is not safe for concurrent use; Manager serializes access to it.
	Session struct {
		doc        report.Report
		actor      Actor
		activePage string // page id
		selection  []string
		clipboard  []report.Element
		history    *history
		comments   *comment.Board
		composer   *comment.Autocomplete
		validate   *validator.Validate
		newID      func() string
		now        func() time.Time

		revision      uint64 // bumped on every persisted change
		savedRevision uint64
	}

	// State is a read-only view of a session.
	State struct {
		Report             report.Report `json:"report"`
		Role               report.Role   `json:"role"`
		ActivePage         int           `json:"active_page"`
		Selection          []string      `json:"selection"`
		CanUndo            bool          `json:"can_undo"`
		CanRedo            bool          `json:"can_redo"`
		ClipboardSize      int           `json:"clipboard_size"`
		UnresolvedComments int           `json:"unresolved_comments"`
		Revision           uint64        `json:"revision"`
		Dirty              bool          `json:"dirty"`
	}
)

func (a Actor) commentUser() comment.User {
	return comment.User{ID: a.UserID, Name: a.Name, AvatarURL: a.AvatarURL}
}

// NewSession starts editing doc. A document without pages gets a default one.
func NewSession(doc report.Report, actor Actor, opts Options) *Session {
	if opts.Validate == nil {
		opts.Validate, _ = report.NewValidator()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	doc = doc.Clone()
	if len(doc.Pages) == 0 {
		doc.Pages = []report.Page{{ID: opts.NewID(), Settings: report.DefaultPageSettings(), Elements: []report.Element{}}}
	}
	if math.IsNaN(doc.Zoom) || doc.Zoom == 0 {
		doc.Zoom = 1 // unset
	}
	doc.Zoom = clampZoom(doc.Zoom)

	s := &Session{
		doc:        doc,
		actor:      actor,
		activePage: doc.Pages[0].ID,
		history:    &history{limit: opts.HistoryLimit},
		comments:   comment.NewBoard(doc.Comments, opts.NewID, opts.Now),
		composer:   comment.NewAutocomplete(doc.MentionableUsers()),
		validate:   opts.Validate,
		newID:      opts.NewID,
		now:        opts.Now,
	}
	s.doc.Comments = nil // owned by the board
	return s
}

func (s *Session) Actor() Actor       { return s.actor }
func (s *Session) ReportID() string   { return s.doc.ID }
func (s *Session) Revision() uint64   { return s.revision }
func (s *Session) CanUndo() bool      { return len(s.history.undo) > 0 }
func (s *Session) CanRedo() bool      { return len(s.history.redo) > 0 }
func (s *Session) Zoom() float64      { return s.doc.Zoom }
func (s *Session) ShowGrid() bool     { return s.doc.ShowGrid }
func (s *Session) ClipboardSize() int { return len(s.clipboard) }

// Dirty reports whether the session holds changes that were not saved yet.
func (s *Session) Dirty() bool { return s.revision != s.savedRevision }

// Report returns a copy of the document, comments included.
func (s *Session) Report() report.Report {
	r := s.doc.Clone()
	r.Comments = s.comments.All()
	return r
}

// Snapshot returns a copy of the document together with the revision it reflects.
func (s *Session) Snapshot() (report.Report, uint64) {
	return s.Report(), s.revision
}

// MarkSaved records that revision rev was persisted as saved.
// Server-owned fields are taken from saved; the edited content is left alone.
func (s *Session) MarkSaved(rev uint64, saved report.Report) {
	if rev > s.savedRevision {
		s.savedRevision = rev
	}
	s.reconcile(saved)
}

func (s *Session) reconcile(saved report.Report) {
	s.doc.Status = saved.Status
	s.doc.PublicID = saved.PublicID
	s.doc.PublicURL = saved.PublicURL
	s.doc.EmbedCode = saved.EmbedCode
	s.doc.PublishedAt = saved.PublishedAt
	s.doc.UpdatedAt = saved.UpdatedAt
	if saved.Collaborators != nil {
		s.doc.Collaborators = saved.Clone().Collaborators
		if role := saved.RoleOf(s.actor.UserID); role != "" {
			s.actor.Role = role
		}
		s.composer.SetUsers(s.doc.MentionableUsers())
	}
}

// ActivePage returns the index of the active page.
func (s *Session) ActivePage() int {
	if i := s.doc.PageIndex(s.activePage); i >= 0 {
		return i
	}
	return 0
}

func (s *Session) PageCount() int { return len(s.doc.Pages) }

// Page returns a copy of the page at index i.
func (s *Session) Page(i int) (report.Page, error) {
	if i < 0 || i >= len(s.doc.Pages) {
		return report.Page{}, ErrPageNotFound
	}
	return s.doc.Pages[i].Clone(), nil
}

// Element returns a copy of the element with id, on any page.
func (s *Session) Element(id string) (report.Element, error) {
	pi, ei, ok := s.doc.FindElement(id)
	if !ok {
		return report.Element{}, ErrElementNotFound
	}
	return s.doc.Pages[pi].Elements[ei].Clone(), nil
}

func (s *Session) Selection() []string {
	return append([]string{}, s.selection...)
}

func (s *Session) State() State {
	return State{
		Report:             s.Report(),
		Role:               s.actor.Role,
		ActivePage:         s.ActivePage(),
		Selection:          s.Selection(),
		CanUndo:            s.CanUndo(),
		CanRedo:            s.CanRedo(),
		ClipboardSize:      len(s.clipboard),
		UnresolvedComments: s.comments.UnresolvedCount(),
		Revision:           s.revision,
		Dirty:              s.Dirty(),
	}
}

func (s *Session) touch() { s.revision++ }

func (s *Session) page() *report.Page {
	return &s.doc.Pages[s.ActivePage()]
}

// element returns the element with id on the active page.
func (s *Session) element(id string) (*report.Element, error) {
	p := s.page()
	i := p.ElementIndex(id)
	if i < 0 {
		return nil, ErrElementNotFound
	}
	return &p.Elements[i], nil
}

func (s *Session) editable() error {
	if !s.actor.Role.CanEdit() {
		return ErrReadOnly
	}
	return nil
}

// mutate runs fn as one atomic, history-tracked change: on error the document is rolled back
// and no history entry is recorded.
func (s *Session) mutate(fn func() error) error {
	if err := s.editable(); err != nil {
		return err
	}
	before := s.capture()
	if err := fn(); err != nil {
		s.restore(before)
		return err
	}
	s.history.record(before)
	s.touch()
	return nil
}
