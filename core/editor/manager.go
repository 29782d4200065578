package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/comment"
	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/user"
)

// Events pushed to the other collaborators of a report
const (
	EventReportSaved     = "report.saved"
	EventReportPublished = "report.published"
	EventCommentAdded    = "comment.added"
)

const (
	pageDataConcurrency = 4
	mentionExcerptLen   = 280
)

var errNoGenerator = errors.New("no content generator configured")

type (
	ContentGenerator interface {
		Generate(ctx context.Context, req report.GenerateRequest) (string, error)
	}

	// UserLookup resolves the recipients of mention notifications.
	UserLookup interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Event struct {
		Type     string      `json:"type"`
		ReportID string      `json:"report_id"`
		UserID   string      `json:"user_id,omitempty"`
		Data     interface{} `json:"data,omitempty"`
	}

	Broadcaster interface {
		Broadcast(reportID string, ev Event)
	}

	// Recorder observes the manager activity (metrics).
	Recorder interface {
		OpenSessions(n int)
		SaveDone(err error)
		GenerationDone(err error)
	}

	ManagerDeps struct {
		Conf      *core.Config
		Logger    core.Logger
		Validate  *validator.Validate
		Reports   report.Service
		Users     UserLookup
		Mailer    core.EmailService
		Generator ContentGenerator
		Data      report.DataSource

		// optional
		Events   Broadcaster
		Recorder Recorder
	}

	// Manager owns the open editing sessions. Commands on a session are serialized by its lock;
	// network calls (persistence, AI, data) run outside of it.
	Manager struct {
		deps     ManagerDeps
		newID    func() string
		now      func() time.Time
		mu       sync.RWMutex
		sessions map[string]*entry
	}

	entry struct {
		id      string
		mu      sync.Mutex // guards session
		session *Session

		saveMu    sync.Mutex // serializes saves
		persisted uint64     // last persisted revision
	}

	SaveResult struct {
		Revision uint64 `json:"revision"`
		Skipped  bool   `json:"skipped"` // a newer revision was already persisted
	}

	MentionEmailData struct {
		RecipientName string
		AuthorName    string
		ReportName    string
		ReportID      string
		Excerpt       string
	}
)

type nopRecorder struct{}

func (nopRecorder) OpenSessions(int)     {}
func (nopRecorder) SaveDone(error)       {}
func (nopRecorder) GenerationDone(error) {}

type nopBroadcaster struct{}

func (nopBroadcaster) Broadcast(string, Event) {}

func NewManager(deps ManagerDeps) *Manager {
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if deps.Events == nil {
		deps.Events = nopBroadcaster{}
	}
	if deps.Validate == nil {
		deps.Validate, _ = report.NewValidator()
	}
	return &Manager{
		deps:     deps,
		newID:    uuid.NewString,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

func (m *Manager) historyLimit() int {
	if m.deps.Conf != nil && m.deps.Conf.Editor.HistoryLimit > 0 {
		return m.deps.Conf.Editor.HistoryLimit
	}
	return DefaultHistoryLimit
}

// externalErr keeps domain errors as they are & flags anything else as a failure of service.
func externalErr(service string, err error) error {
	if core.IsNotFound(err) || core.IsPermissionDenied(err) || core.IsValidation(err) {
		return err
	}
	return core.NewExternalServiceError(service, err)
}

// Open loads the report and starts a session for actor, whose role is taken from the report.
func (m *Manager) Open(ctx context.Context, reportID string, actor Actor) (string, State, error) {
	r, err := m.deps.Reports.Get(ctx, reportID, actor.UserID)
	if err != nil {
		return "", State{}, externalErr("persistence", err)
	}
	actor.Role = r.RoleOf(actor.UserID)
	if c, ok := r.Collaborator(actor.UserID); ok {
		if actor.Name == "" {
			actor.Name = c.Name
		}
		if actor.AvatarURL == "" {
			actor.AvatarURL = c.AvatarURL
		}
	}

	s := NewSession(r, actor, Options{
		Validate:     m.deps.Validate,
		HistoryLimit: m.historyLimit(),
		NewID:        m.newID,
		Now:          m.now,
	})
	e := &entry{id: m.newID(), session: s}

	m.mu.Lock()
	m.sessions[e.id] = e
	n := len(m.sessions)
	m.mu.Unlock()
	m.deps.Recorder.OpenSessions(n)

	return e.id, s.State(), nil
}

// get returns the session id owned by userID. Sessions of other users are reported as not found.
func (m *Manager) get(id, userID string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || e.session.actor.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return e, nil
}

// Do runs fn with exclusive access to the session.
func (m *Manager) Do(id, userID string, fn func(s *Session) error) error {
	e, err := m.get(id, userID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

func (m *Manager) State(id, userID string) (State, error) {
	var st State
	err := m.Do(id, userID, func(s *Session) error {
		st = s.State()
		return nil
	})
	return st, err
}

// Close ends the session; unsaved changes are dropped.
func (m *Manager) Close(id, userID string) error {
	if _, err := m.get(id, userID); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	m.deps.Recorder.OpenSessions(n)
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Save persists the current revision of the session. Editors save the whole document,
// viewers only the comments. Concurrent saves coalesce: a revision older than the last
// persisted one is skipped.
func (m *Manager) Save(ctx context.Context, id, userID string) (SaveResult, error) {
	e, err := m.get(id, userID)
	if err != nil {
		return SaveResult{}, err
	}

	e.mu.Lock()
	doc, rev := e.session.Snapshot()
	canEdit := e.session.actor.Role.CanEdit()
	e.mu.Unlock()

	skipped, err := m.persist(ctx, e, doc, rev, userID, canEdit)
	m.deps.Recorder.SaveDone(err)
	if err != nil {
		return SaveResult{}, err
	}
	if !skipped {
		m.deps.Events.Broadcast(doc.ID, Event{Type: EventReportSaved, ReportID: doc.ID, UserID: userID, Data: rev})
	}
	return SaveResult{Revision: rev, Skipped: skipped}, nil
}

func (m *Manager) persist(ctx context.Context, e *entry, doc report.Report, rev uint64, userID string, canEdit bool) (bool, error) {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	if rev <= e.persisted {
		return true, nil
	}

	var (
		saved report.Report
		err   error
	)
	if canEdit {
		saved, err = m.deps.Reports.Save(ctx, doc, userID)
	} else {
		saved, err = m.deps.Reports.SaveComments(ctx, doc.ID, doc.Comments, userID)
	}
	if err != nil {
		return false, externalErr("persistence", err)
	}
	e.persisted = rev

	e.mu.Lock()
	e.session.MarkSaved(rev, saved)
	e.mu.Unlock()
	return false, nil
}

// Publish saves pending changes then publishes the report. Publishing twice is a no-op.
func (m *Manager) Publish(ctx context.Context, id, userID string) (report.Report, error) {
	e, err := m.get(id, userID)
	if err != nil {
		return report.Report{}, err
	}

	e.mu.Lock()
	editErr := e.session.editable()
	reportID := e.session.ReportID()
	e.mu.Unlock()
	if editErr != nil {
		return report.Report{}, report.ErrEditDenied
	}

	if _, err := m.Save(ctx, id, userID); err != nil {
		return report.Report{}, err
	}
	published, err := m.deps.Reports.Publish(ctx, reportID, userID)
	if err != nil {
		return report.Report{}, externalErr("persistence", err)
	}

	e.mu.Lock()
	e.session.reconcile(published)
	r := e.session.Report()
	e.mu.Unlock()

	m.deps.Events.Broadcast(reportID, Event{
		Type:     EventReportPublished,
		ReportID: reportID,
		UserID:   userID,
		Data:     map[string]string{"public_url": r.PublicURL},
	})
	return r, nil
}

// Generate asks the content generator to write the content of an AI text element.
// The session is released during the call; on failure the element keeps its previous content.
// scope, when given, selects the values of the element context metrics.
func (m *Manager) Generate(ctx context.Context, id, userID, elementID string, scope *report.DataQuery) (report.Element, error) {
	e, err := m.get(id, userID)
	if err != nil {
		return report.Element{}, err
	}

	e.mu.Lock()
	cfg, err := e.session.GenerationRequest(elementID)
	e.mu.Unlock()
	if err != nil {
		return report.Element{}, err
	}

	req := report.GenerateRequest{Prompt: cfg.Prompt, Format: cfg.Format, ContextMetrics: map[string]float64{}}
	if scope != nil && len(cfg.ContextMetrics) > 0 && m.deps.Data != nil {
		q := *scope
		q.MetricKeys = cfg.ContextMetrics
		if err := m.deps.Validate.Struct(q); err != nil {
			return report.Element{}, err
		}
		series, err := m.deps.Data.Fetch(ctx, q)
		if err != nil {
			return report.Element{}, externalErr("data", err)
		}
		for _, s := range series {
			if v, ok := s.Latest(); ok {
				req.ContextMetrics[s.Key] = v
			}
		}
	}

	var text string
	if m.deps.Generator == nil {
		err = errNoGenerator
	} else {
		text, err = m.deps.Generator.Generate(ctx, req)
	}
	m.deps.Recorder.GenerationDone(err)
	if err != nil {
		return report.Element{}, core.NewExternalServiceError("ai", err)
	}

	var el report.Element
	err = m.Do(id, userID, func(s *Session) (err error) {
		if err = s.ApplyGeneratedContent(elementID, text, m.now()); err != nil {
			return err
		}
		el, err = s.Element(elementID)
		return err
	})
	return el, err
}

// PageData fetches, concurrently, the series of every data-bound element of the active page.
// The result is keyed by element id.
func (m *Manager) PageData(ctx context.Context, id, userID string, q report.DataQuery) (map[string][]report.Series, error) {
	e, err := m.get(id, userID)
	if err != nil {
		return nil, err
	}
	q.MetricKeys = nil
	if err := m.deps.Validate.Struct(q); err != nil {
		return nil, err
	}
	if m.deps.Data == nil {
		return nil, core.NewExternalServiceError("data", errors.New("no data source configured"))
	}

	e.mu.Lock()
	page := e.session.page().Clone()
	e.mu.Unlock()

	var (
		mu      sync.Mutex
		results = make(map[string][]report.Series, len(page.Elements))
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageDataConcurrency)
	for _, el := range page.Elements {
		keys := el.MetricKeys()
		if len(keys) == 0 {
			continue
		}
		elID := el.ID
		g.Go(func() error {
			eq := q
			eq.MetricKeys = keys
			series, err := m.deps.Data.Fetch(gctx, eq)
			if err != nil {
				return errors.Wrapf(err, "fetching data of element %s", elID)
			}
			mu.Lock()
			results[elID] = series
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, externalErr("data", err)
	}
	return results, nil
}

type mentionNote struct {
	reportID   string
	reportName string
	author     Actor
	content    string
	recipients map[string]bool // collaborator ids
}

func newMentionNote(s *Session, content string) mentionNote {
	n := mentionNote{
		reportID:   s.doc.ID,
		reportName: s.doc.Name,
		author:     s.actor,
		content:    content,
		recipients: make(map[string]bool, len(s.doc.Collaborators)),
	}
	for _, c := range s.doc.Collaborators {
		n.recipients[c.UserID] = true
	}
	return n
}

// AddComment adds a comment & notifies the collaborators it mentions.
func (m *Manager) AddComment(ctx context.Context, id, userID, content string, anchor Anchor) (CommentView, error) {
	var (
		v    CommentView
		note mentionNote
	)
	err := m.Do(id, userID, func(s *Session) (err error) {
		if v, err = s.AddComment(content, anchor); err != nil {
			return err
		}
		note = newMentionNote(s, v.Content)
		return nil
	})
	if err != nil {
		return CommentView{}, err
	}
	m.notifyMentions(ctx, note)
	m.deps.Events.Broadcast(note.reportID, Event{Type: EventCommentAdded, ReportID: note.reportID, UserID: userID, Data: v})
	return v, nil
}

// Reply answers a comment & notifies the collaborators the reply mentions.
func (m *Manager) Reply(ctx context.Context, id, userID, commentID, content string) (ReplyView, error) {
	var (
		rv   ReplyView
		note mentionNote
	)
	err := m.Do(id, userID, func(s *Session) (err error) {
		if rv, err = s.Reply(commentID, content); err != nil {
			return err
		}
		note = newMentionNote(s, rv.Content)
		return nil
	})
	if err != nil {
		return ReplyView{}, err
	}
	m.notifyMentions(ctx, note)
	m.deps.Events.Broadcast(note.reportID, Event{Type: EventCommentAdded, ReportID: note.reportID, UserID: userID, Data: rv})
	return rv, nil
}

// notifyMentions emails the collaborators mentioned in the note, except its author.
func (m *Manager) notifyMentions(ctx context.Context, n mentionNote) {
	if m.deps.Mailer == nil || m.deps.Users == nil {
		return
	}

	var msgs []*core.EmailMessage
	for _, mention := range comment.Mentions(n.content) {
		if mention.UserID == n.author.UserID || !n.recipients[mention.UserID] {
			continue
		}
		usr, err := m.deps.Users.GetByID(ctx, mention.UserID)
		if err != nil {
			if m.deps.Logger != nil {
				m.deps.Logger.Warn(fmt.Sprintf("editor.notifyMentions(%s): %v", mention.UserID, err), err)
			}
			continue
		}
		if !usr.IsActive || usr.Email == "" {
			continue
		}
		msgs = append(msgs, core.NewTemplateEmail(
			usr.MailAddress(),
			fmt.Sprintf("%s mentioned you in %q", n.author.Name, n.reportName),
			"comment_mention",
			MentionEmailData{
				RecipientName: usr.Name,
				AuthorName:    n.author.Name,
				ReportName:    n.reportName,
				ReportID:      n.reportID,
				Excerpt:       comment.Excerpt(n.content, mentionExcerptLen),
			},
		))
	}
	if len(msgs) > 0 {
		m.deps.Mailer.SendMessages(msgs...)
	}
}
