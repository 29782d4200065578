package editor

import (
	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/report"
)

func (s *Session) checkPage(i int) error {
	if i < 0 || i >= len(s.doc.Pages) {
		return ErrPageNotFound
	}
	return nil
}

func (s *Session) checkEditablePage(i int) error {
	if err := s.editable(); err != nil {
		return err
	}
	return s.checkPage(i)
}

func (s *Session) activate(pageID string) {
	if s.activePage != pageID {
		s.selection = nil
	}
	s.activePage = pageID
}

// AddPage appends an empty page with the settings of the last page and activates it.
func (s *Session) AddPage() (report.Page, error) {
	var added report.Page
	err := s.mutate(func() error {
		last := s.doc.Pages[len(s.doc.Pages)-1]
		added = report.Page{ID: s.newID(), Settings: last.Settings, Elements: []report.Element{}}
		s.doc.Pages = append(s.doc.Pages, added)
		s.activate(added.ID)
		return nil
	})
	return added.Clone(), err
}

// DuplicatePage inserts a deep copy of page i after it, with fresh ids, and activates it.
func (s *Session) DuplicatePage(i int) (report.Page, error) {
	if err := s.checkEditablePage(i); err != nil {
		return report.Page{}, err
	}
	var dup report.Page
	err := s.mutate(func() error {
		dup = s.doc.Pages[i].Clone()
		dup.ID = s.newID()
		for j := range dup.Elements {
			dup.Elements[j].ID = s.newID()
		}
		if dup.Elements == nil {
			dup.Elements = []report.Element{}
		}

		pages := make([]report.Page, 0, len(s.doc.Pages)+1)
		pages = append(pages, s.doc.Pages[:i+1]...)
		pages = append(pages, dup)
		pages = append(pages, s.doc.Pages[i+1:]...)
		s.doc.Pages = pages
		s.activate(dup.ID)
		return nil
	})
	return dup.Clone(), err
}

// DeletePage removes page i. The last remaining page cannot be deleted.
func (s *Session) DeletePage(i int) error {
	if err := s.checkEditablePage(i); err != nil {
		return err
	}
	if len(s.doc.Pages) == 1 {
		return ErrLastPage
	}
	return s.mutate(func() error {
		deleted := s.doc.Pages[i].ID
		s.doc.Pages = append(s.doc.Pages[:i], s.doc.Pages[i+1:]...)
		if s.activePage == deleted {
			next := i
			if next >= len(s.doc.Pages) {
				next = len(s.doc.Pages) - 1
			}
			s.activate(s.doc.Pages[next].ID)
		}
		return nil
	})
}

func (s *Session) swapPages(i, j int) error {
	return s.mutate(func() error {
		s.doc.Pages[i], s.doc.Pages[j] = s.doc.Pages[j], s.doc.Pages[i]
		return nil
	})
}

// MovePageUp swaps page i with the previous one.
func (s *Session) MovePageUp(i int) error {
	if err := s.checkEditablePage(i); err != nil {
		return err
	}
	if i == 0 {
		return ErrPageBoundary
	}
	return s.swapPages(i, i-1)
}

// MovePageDown swaps page i with the next one.
func (s *Session) MovePageDown(i int) error {
	if err := s.checkEditablePage(i); err != nil {
		return err
	}
	if i == len(s.doc.Pages)-1 {
		return ErrPageBoundary
	}
	return s.swapPages(i, i+1)
}

// SwitchToPage activates page i and clears the selection.
func (s *Session) SwitchToPage(i int) error {
	if err := s.checkPage(i); err != nil {
		return err
	}
	s.activePage = s.doc.Pages[i].ID
	s.selection = nil
	return nil
}

// PageSettingsInput describes new page settings. Width & Height only apply to the custom size.
type PageSettingsInput struct {
	Size        report.PageSize    `json:"size"`
	Orientation report.Orientation `json:"orientation"`
	Width       int                `json:"width"`
	Height      int                `json:"height"`
}

func (s *Session) UpdatePageSettings(i int, in PageSettingsInput) error {
	if err := s.checkEditablePage(i); err != nil {
		return err
	}
	ps, err := report.NewPageSettings(in.Size, in.Orientation, in.Width, in.Height)
	if err != nil {
		return err
	}
	if err := s.validate.Struct(ps); err != nil {
		return err
	}
	return s.mutate(func() error {
		s.doc.Pages[i].Settings = ps
		return nil
	})
}

func (s *Session) Rename(name string) error {
	name = core.CleanString(name)
	if err := s.validate.Var(name, "required,notblank,max=255"); err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "name", Error: "name is required and must be at most 255 characters"})
	}
	return s.mutate(func() error {
		s.doc.Name = name
		return nil
	})
}

func (s *Session) UpdateBranding(b report.Branding) error {
	b.PrimaryColor = core.CleanString(b.PrimaryColor, true)
	b.LogoURL = core.CleanString(b.LogoURL)
	if err := s.validate.Struct(b); err != nil {
		return err
	}
	return s.mutate(func() error {
		s.doc.Branding = b
		return nil
	})
}

func (s *Session) SetDataMode(mode report.DataMode) error {
	if mode != report.DataModeLive && mode != report.DataModeSnapshot {
		return core.NewValidationError(nil, core.FieldError{Field: "data_mode", Error: "data_mode must be one of [live snapshot]"})
	}
	return s.mutate(func() error {
		s.doc.DataMode = mode
		return nil
	})
}
