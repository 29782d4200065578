package editor

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/report"
)

const (
	MinElementSize = 10

	slotStep        = 20
	duplicateOffset = 10
)

var firstSlot = report.Position{X: 40, Y: 40}

func clampCoord(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func clampDimension(v float64) float64 {
	if math.IsNaN(v) || v < MinElementSize {
		return MinElementSize
	}
	return v
}

// freeSlot returns the first position, from (40,40) stepping diagonally, no element of p sits at exactly.
func freeSlot(p *report.Page) report.Position {
	taken := make(map[report.Position]bool, len(p.Elements))
	for _, el := range p.Elements {
		taken[el.Position] = true
	}
	pos := firstSlot
	for taken[pos] {
		pos.X += slotStep
		pos.Y += slotStep
	}
	return pos
}

func invalidConfig(field string, err error) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: errors.Cause(err).Error()})
}

// AddElement adds an element of type t with its defaults to the active page, or to page[0] when given.
// The element is selected when it lands on the active page.
func (s *Session) AddElement(t report.ElementType, page ...int) (report.Element, error) {
	if !t.Valid() {
		return report.Element{}, core.NewValidationError(
			report.ErrUnknownElementType,
			core.FieldError{Field: "type", Error: "unknown element type"},
		)
	}
	pi := s.ActivePage()
	if len(page) > 0 {
		pi = page[0]
	}
	if pi < 0 || pi >= len(s.doc.Pages) {
		return report.Element{}, ErrPageNotFound
	}

	var added report.Element
	err := s.mutate(func() error {
		p := &s.doc.Pages[pi]
		el, err := report.NewElement(s.newID(), t, freeSlot(p))
		if err != nil {
			return err
		}
		p.Elements = append(p.Elements, el)
		if p.ID == s.activePage {
			s.selection = []string{el.ID}
		}
		added = el.Clone()
		return nil
	})
	return added, err
}

// UpdateElementConfig merges a JSON patch into the element config.
func (s *Session) UpdateElementConfig(id string, patch []byte) error {
	return s.mutate(func() error {
		el, err := s.element(id)
		if err != nil {
			return err
		}
		if el.Locked {
			return ErrElementLocked
		}
		cfg, err := report.MergeConfig(el.Type, el.Config, patch)
		if err != nil {
			return invalidConfig("config", err)
		}
		if err := s.validate.Struct(cfg); err != nil {
			return err
		}
		el.Config = cfg
		return nil
	})
}

// UpdateElementStyles merges a JSON patch into the element style.
func (s *Session) UpdateElementStyles(id string, patch []byte) error {
	return s.mutate(func() error {
		el, err := s.element(id)
		if err != nil {
			return err
		}
		if el.Locked {
			return ErrElementLocked
		}
		style, err := report.MergeStyle(el.Style, patch)
		if err != nil {
			return invalidConfig("styles", err)
		}
		if err := s.validate.Struct(style); err != nil {
			return err
		}
		el.Style = style
		return nil
	})
}

// MoveElement places the element at pos. Negative coordinates are clamped to 0.
func (s *Session) MoveElement(id string, pos report.Position) error {
	return s.mutate(func() error {
		el, err := s.element(id)
		if err != nil {
			return err
		}
		if el.Locked {
			return ErrElementLocked
		}
		el.Position = report.Position{X: clampCoord(pos.X), Y: clampCoord(pos.Y)}
		return nil
	})
}

// ResizeElement sets the element size; each dimension is at least MinElementSize.
func (s *Session) ResizeElement(id string, size report.Size) error {
	return s.mutate(func() error {
		el, err := s.element(id)
		if err != nil {
			return err
		}
		if el.Locked {
			return ErrElementLocked
		}
		el.Size = report.Size{Width: clampDimension(size.Width), Height: clampDimension(size.Height)}
		return nil
	})
}

// MoveSelection moves every selected element by (dx, dy). Nothing moves if one of them is locked.
func (s *Session) MoveSelection(dx, dy float64) error {
	if err := s.editable(); err != nil {
		return err
	}
	if len(s.selection) == 0 {
		return ErrEmptySelection
	}
	return s.mutate(func() error {
		for _, id := range s.selection {
			el, err := s.element(id)
			if err != nil {
				return err
			}
			if el.Locked {
				return ErrElementLocked
			}
			el.Position = report.Position{X: clampCoord(el.Position.X + dx), Y: clampCoord(el.Position.Y + dy)}
		}
		return nil
	})
}

func (s *Session) deselect(ids ...string) {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := s.selection[:0]
	for _, id := range s.selection {
		if !drop[id] {
			kept = append(kept, id)
		}
	}
	s.selection = kept
}

func (s *Session) removeElements(ids ...string) error {
	p := s.page()
	for _, id := range ids {
		i := p.ElementIndex(id)
		if i < 0 {
			return ErrElementNotFound
		}
		p.Elements = append(p.Elements[:i], p.Elements[i+1:]...)
	}
	s.deselect(ids...)
	return nil
}

// DeleteElement removes the element from the active page. Comments anchored to it are kept.
func (s *Session) DeleteElement(id string) error {
	return s.mutate(func() error {
		return s.removeElements(id)
	})
}

func (s *Session) DeleteSelected() error {
	if err := s.editable(); err != nil {
		return err
	}
	if len(s.selection) == 0 {
		return ErrEmptySelection
	}
	return s.mutate(func() error {
		return s.removeElements(append([]string(nil), s.selection...)...)
	})
}

// DuplicateElement inserts a copy of the element right after it, offset by (10,10), and selects it.
func (s *Session) DuplicateElement(id string) (report.Element, error) {
	var dup report.Element
	err := s.mutate(func() error {
		p := s.page()
		i := p.ElementIndex(id)
		if i < 0 {
			return ErrElementNotFound
		}
		dup = p.Elements[i].Clone()
		dup.ID = s.newID()
		dup.Position.X += duplicateOffset
		dup.Position.Y += duplicateOffset

		els := make([]report.Element, 0, len(p.Elements)+1)
		els = append(els, p.Elements[:i+1]...)
		els = append(els, dup)
		els = append(els, p.Elements[i+1:]...)
		p.Elements = els
		s.selection = []string{dup.ID}
		return nil
	})
	if err != nil {
		return report.Element{}, err
	}
	return dup.Clone(), nil
}

// BringToFront moves the element to the end of the page order (drawn last).
func (s *Session) BringToFront(id string) error {
	return s.mutate(func() error {
		p := s.page()
		i := p.ElementIndex(id)
		if i < 0 {
			return ErrElementNotFound
		}
		el := p.Elements[i]
		p.Elements = append(append(p.Elements[:i:i], p.Elements[i+1:]...), el)
		return nil
	})
}

// SendToBack moves the element to the start of the page order.
func (s *Session) SendToBack(id string) error {
	return s.mutate(func() error {
		p := s.page()
		i := p.ElementIndex(id)
		if i < 0 {
			return ErrElementNotFound
		}
		el := p.Elements[i]
		els := make([]report.Element, 0, len(p.Elements))
		els = append(els, el)
		els = append(els, p.Elements[:i]...)
		els = append(els, p.Elements[i+1:]...)
		p.Elements = els
		return nil
	})
}

func (s *Session) ToggleElementLock(id string) error {
	return s.mutate(func() error {
		el, err := s.element(id)
		if err != nil {
			return err
		}
		el.Locked = !el.Locked
		return nil
	})
}

func (s *Session) ToggleElementVisibility(id string) error {
	return s.mutate(func() error {
		el, err := s.element(id)
		if err != nil {
			return err
		}
		el.Hidden = !el.Hidden
		return nil
	})
}

// GenerationRequest returns the config of the AI text element to generate content for.
func (s *Session) GenerationRequest(id string) (report.AITextConfig, error) {
	if err := s.editable(); err != nil {
		return report.AITextConfig{}, err
	}
	el, err := s.Element(id)
	if err != nil {
		return report.AITextConfig{}, err
	}
	cfg, ok := el.Config.(report.AITextConfig)
	if !ok {
		return report.AITextConfig{}, ErrNotAIText
	}
	if el.Locked {
		return report.AITextConfig{}, ErrElementLocked
	}
	return cfg, nil
}

// ApplyGeneratedContent stores generated text in an AI text element, on any page.
func (s *Session) ApplyGeneratedContent(id, content string, at time.Time) error {
	return s.mutate(func() error {
		pi, ei, ok := s.doc.FindElement(id)
		if !ok {
			return ErrElementNotFound
		}
		el := &s.doc.Pages[pi].Elements[ei]
		cfg, ok := el.Config.(report.AITextConfig)
		if !ok {
			return ErrNotAIText
		}
		if el.Locked {
			return ErrElementLocked
		}
		at = at.UTC()
		cfg.GeneratedContent = content
		cfg.GeneratedAt = &at
		el.Config = cfg
		return nil
	})
}
