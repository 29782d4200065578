package editor

import "github.com/trezcool/ripoti/core/report"

const pasteOffset = 20

// SelectElement replaces the selection with id. An empty id clears it.
func (s *Session) SelectElement(id string) error {
	if id == "" {
		s.ClearSelection()
		return nil
	}
	if _, err := s.element(id); err != nil {
		return err
	}
	s.selection = []string{id}
	return nil
}

// ToggleInSelection adds id to the selection, or removes it if already selected.
func (s *Session) ToggleInSelection(id string) error {
	if _, err := s.element(id); err != nil {
		return err
	}
	for _, sel := range s.selection {
		if sel == id {
			s.deselect(id)
			return nil
		}
	}
	s.selection = append(s.selection, id)
	return nil
}

// SelectAll selects every element of the active page, in page order.
func (s *Session) SelectAll() {
	p := s.page()
	s.selection = make([]string, 0, len(p.Elements))
	for _, el := range p.Elements {
		s.selection = append(s.selection, el.ID)
	}
}

func (s *Session) ClearSelection() {
	s.selection = nil
}

// selected returns copies of the selected elements, in page order.
func (s *Session) selected() []report.Element {
	picked := make(map[string]bool, len(s.selection))
	for _, id := range s.selection {
		picked[id] = true
	}
	var els []report.Element
	for _, el := range s.page().Elements {
		if picked[el.ID] {
			el = el.Clone()
			el.ID = ""
			els = append(els, el)
		}
	}
	return els
}

// CopySelected copies the selected elements (without their ids) to the clipboard.
func (s *Session) CopySelected() (int, error) {
	els := s.selected()
	if len(els) == 0 {
		return 0, ErrEmptySelection
	}
	s.clipboard = els
	return len(els), nil
}

// CutSelected copies the selection to the clipboard then deletes it, as a single change.
func (s *Session) CutSelected() (int, error) {
	if err := s.editable(); err != nil {
		return 0, err
	}
	els := s.selected()
	if len(els) == 0 {
		return 0, ErrEmptySelection
	}
	ids := append([]string(nil), s.selection...)
	if err := s.mutate(func() error { return s.removeElements(ids...) }); err != nil {
		return 0, err
	}
	s.clipboard = els
	return len(els), nil
}

// PasteFromClipboard adds the clipboard elements to the active page with fresh ids,
// offset by (20,20) from where they were copied, and selects them.
func (s *Session) PasteFromClipboard() ([]report.Element, error) {
	if err := s.editable(); err != nil {
		return nil, err
	}
	if len(s.clipboard) == 0 {
		return nil, ErrEmptyClipboard
	}
	var pasted []report.Element
	err := s.mutate(func() error {
		p := s.page()
		pasted = make([]report.Element, 0, len(s.clipboard))
		s.selection = make([]string, 0, len(s.clipboard))
		for _, el := range s.clipboard {
			el = el.Clone()
			el.ID = s.newID()
			el.Position = report.Position{
				X: clampCoord(el.Position.X + pasteOffset),
				Y: clampCoord(el.Position.Y + pasteOffset),
			}
			p.Elements = append(p.Elements, el)
			s.selection = append(s.selection, el.ID)
			pasted = append(pasted, el.Clone())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pasted, nil
}
