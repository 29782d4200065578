package editor

import "github.com/trezcool/ripoti/core/report"

// snapshot is the editable part of a session at a point in time.
type snapshot struct {
	name       string
	dataMode   report.DataMode
	branding   report.Branding
	pages      []report.Page
	activePage string
	selection  []string
}

type history struct {
	undo  []snapshot
	redo  []snapshot
	limit int
}

// record pushes sn on the undo stack, dropping the oldest entries past the limit.
// Any new change invalidates the redo stack.
func (h *history) record(sn snapshot) {
	h.undo = append(h.undo, sn)
	if h.limit > 0 && len(h.undo) > h.limit {
		h.undo = append([]snapshot(nil), h.undo[len(h.undo)-h.limit:]...)
	}
	h.redo = nil
}

func clonePages(pages []report.Page) []report.Page {
	cloned := make([]report.Page, len(pages))
	for i, p := range pages {
		cloned[i] = p.Clone()
	}
	return cloned
}

func (s *Session) capture() snapshot {
	return snapshot{
		name:       s.doc.Name,
		dataMode:   s.doc.DataMode,
		branding:   s.doc.Branding,
		pages:      clonePages(s.doc.Pages),
		activePage: s.activePage,
		selection:  append([]string(nil), s.selection...),
	}
}

// restore copies sn back into the session; sn itself stays untouched so it can be reused.
func (s *Session) restore(sn snapshot) {
	s.doc.Name = sn.name
	s.doc.DataMode = sn.dataMode
	s.doc.Branding = sn.branding
	s.doc.Pages = clonePages(sn.pages)
	s.activePage = sn.activePage
	if s.doc.PageIndex(s.activePage) < 0 {
		s.activePage = s.doc.Pages[0].ID
	}
	s.selection = append([]string(nil), sn.selection...)
}

// Undo reverts the last change. It returns false when there is nothing to undo,
// and ErrReadOnly for viewers.
func (s *Session) Undo() (bool, error) {
	if err := s.editable(); err != nil {
		return false, err
	}
	n := len(s.history.undo)
	if n == 0 {
		return false, nil
	}
	prev := s.history.undo[n-1]
	s.history.undo = s.history.undo[:n-1]
	s.history.redo = append(s.history.redo, s.capture())
	s.restore(prev)
	s.touch()
	return true, nil
}

// Redo re-applies the last undone change. It returns false when there is nothing to redo,
// and ErrReadOnly for viewers.
func (s *Session) Redo() (bool, error) {
	if err := s.editable(); err != nil {
		return false, err
	}
	n := len(s.history.redo)
	if n == 0 {
		return false, nil
	}
	next := s.history.redo[n-1]
	s.history.redo = s.history.redo[:n-1]
	s.history.undo = append(s.history.undo, s.capture())
	s.restore(next)
	s.touch()
	return true, nil
}
