package echoapi

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/comment"
	"github.com/trezcool/ripoti/core/editor"
	"github.com/trezcool/ripoti/core/report"
)

// Actions served through the session manager instead of the dispatch table.
const (
	actionAddComment   = "add_comment"
	actionReplyComment = "reply_comment"
)

type (
	// ActionRequest is one session command: `{"action": "move_element", "params": {"id": "...", "x": 10, "y": 20}}`.
	ActionRequest struct {
		Action string          `json:"action"`
		Params json.RawMessage `json:"params"`
	}

	// ActionResponse tells whether the command changed anything, along with the new session state.
	ActionResponse struct {
		Applied bool         `json:"applied"`
		Reason  string       `json:"reason,omitempty"`
		Result  interface{}  `json:"result,omitempty"`
		State   editor.State `json:"state"`
	}

	actionHandler func(s *editor.Session, params json.RawMessage) (interface{}, error)

	// noop is returned by commands that legitimately had nothing to do.
	noop struct{ reason string }

	idParams struct {
		ID string `json:"id"`
	}

	indexParams struct {
		Index int `json:"index"`
	}
)

// decodeParams strictly decodes the action params; missing params decode as the zero value.
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return core.NewValidationError(errors.Wrap(err, "decoding params"),
			core.FieldError{Field: "params", Error: err.Error()})
	}
	return nil
}

func withID(fn func(s *editor.Session, id string) error) actionHandler {
	return func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p idParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, fn(s, p.ID)
	}
}

func withIndex(fn func(s *editor.Session, i int) error) actionHandler {
	return func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p indexParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, fn(s, p.Index)
	}
}

func plain(fn func(s *editor.Session) error) actionHandler {
	return func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		if err := decodeParams(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return nil, fn(s)
	}
}

func undoable(fn func(s *editor.Session) (bool, error), reason string) actionHandler {
	return func(s *editor.Session, _ json.RawMessage) (interface{}, error) {
		ok, err := fn(s)
		if err != nil {
			return nil, err
		}
		if !ok {
			return noop{reason: reason}, nil
		}
		return nil, nil
	}
}

var sessionActions = map[string]actionHandler{
	// elements
	"add_element": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p struct {
			Type report.ElementType `json:"type"`
			Page *int               `json:"page"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		if p.Page != nil {
			return s.AddElement(p.Type, *p.Page)
		}
		return s.AddElement(p.Type)
	},
	"update_element_config": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p struct {
			ID     string          `json:"id"`
			Config json.RawMessage `json:"config"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, s.UpdateElementConfig(p.ID, p.Config)
	},
	"update_element_style": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p struct {
			ID    string          `json:"id"`
			Style json.RawMessage `json:"style"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, s.UpdateElementStyles(p.ID, p.Style)
	},
	"move_element": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p struct {
			ID string  `json:"id"`
			X  float64 `json:"x"`
			Y  float64 `json:"y"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, s.MoveElement(p.ID, report.Position{X: p.X, Y: p.Y})
	},
	"resize_element": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p struct {
			ID     string  `json:"id"`
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, s.ResizeElement(p.ID, report.Size{Width: p.Width, Height: p.Height})
	},
	"move_selection": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p struct {
			DX float64 `json:"dx"`
			DY float64 `json:"dy"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, s.MoveSelection(p.DX, p.DY)
	},
	"duplicate_element": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p idParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return s.DuplicateElement(p.ID)
	},
	"delete_element":    withID((*editor.Session).DeleteElement),
	"delete_selected":   plain((*editor.Session).DeleteSelected),
	"bring_to_front":    withID((*editor.Session).BringToFront),
	"send_to_back":      withID((*editor.Session).SendToBack),
	"toggle_lock":       withID((*editor.Session).ToggleElementLock),
	"toggle_visibility": withID((*editor.Session).ToggleElementVisibility),

	// history
	"undo": undoable((*editor.Session).Undo, "nothing to undo"),
	"redo": undoable((*editor.Session).Redo, "nothing to redo"),

	// pages
	"add_page": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		if err := decodeParams(raw, &struct{}{}); err != nil {
			return nil, err
		}
		return s.AddPage()
	},
	"duplicate_page": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p indexParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return s.DuplicatePage(p.Index)
	},
	"delete_page":    withIndex((*editor.Session).DeletePage),
	"move_page_up":   withIndex((*editor.Session).MovePageUp),
	"move_page_down": withIndex((*editor.Session).MovePageDown),
	"switch_page":    withIndex((*editor.Session).SwitchToPage),
	"update_page_settings": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p struct {
			Index int `json:"index"`
			editor.PageSettingsInput
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, s.UpdatePageSettings(p.Index, p.PageSettingsInput)
	},

	// report metadata
	"rename": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p struct {
			Name string `json:"name"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, s.Rename(p.Name)
	},
	"update_branding": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p report.Branding
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, s.UpdateBranding(p)
	},
	"set_data_mode": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p struct {
			Mode report.DataMode `json:"mode"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return nil, s.SetDataMode(p.Mode)
	},

	// selection & clipboard
	"select":           withID((*editor.Session).SelectElement),
	"toggle_selection": withID((*editor.Session).ToggleInSelection),
	"select_all": plain(func(s *editor.Session) error {
		s.SelectAll()
		return nil
	}),
	"clear_selection": plain(func(s *editor.Session) error {
		s.ClearSelection()
		return nil
	}),
	"copy": func(s *editor.Session, _ json.RawMessage) (interface{}, error) {
		n, err := s.CopySelected()
		return echoMap("copied", n), err
	},
	"cut": func(s *editor.Session, _ json.RawMessage) (interface{}, error) {
		n, err := s.CutSelected()
		return echoMap("cut", n), err
	},
	"paste": func(s *editor.Session, _ json.RawMessage) (interface{}, error) {
		return s.PasteFromClipboard()
	},

	// viewport
	"set_zoom": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p struct {
			Zoom float64 `json:"zoom"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return echoMap("zoom", s.SetZoom(p.Zoom)), nil
	},
	"zoom_in": func(s *editor.Session, _ json.RawMessage) (interface{}, error) {
		return echoMap("zoom", s.ZoomIn()), nil
	},
	"zoom_out": func(s *editor.Session, _ json.RawMessage) (interface{}, error) {
		return echoMap("zoom", s.ZoomOut()), nil
	},
	"fit_to_screen": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p struct {
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		zoom, err := s.FitToScreen(p.Width, p.Height)
		return echoMap("zoom", zoom), err
	},
	"toggle_grid": func(s *editor.Session, _ json.RawMessage) (interface{}, error) {
		return echoMap("show_grid", s.ToggleGrid()), nil
	},

	// comments
	"resolve_comment": withID((*editor.Session).ResolveComment),
	"reopen_comment":  withID((*editor.Session).ReopenComment),
	"delete_comment":  withID((*editor.Session).DeleteComment),
	"list_comments": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p struct {
			Filter comment.Filter `json:"filter"`
		}
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return s.Comments(p.Filter)
	},
	"composer_input": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p composerParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		return s.ComposerInput(p.Text, p.Cursor), nil
	},
	"composer_key": func(s *editor.Session, raw json.RawMessage) (interface{}, error) {
		var p composerParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		text, cursor, handled, state := s.ComposerKey(p.Key, p.Text, p.Cursor)
		return ComposerKeyResult{Text: text, Cursor: cursor, Handled: handled, Mention: state}, nil
	},
}

type (
	composerParams struct {
		Key    comment.Key `json:"key"`
		Text   string      `json:"text"`
		Cursor int         `json:"cursor"`
	}

	ComposerKeyResult struct {
		Text    string              `json:"text"`
		Cursor  int                 `json:"cursor"`
		Handled bool                `json:"handled"`
		Mention editor.MentionState `json:"mention"`
	}

	addCommentParams struct {
		Content string        `json:"content"`
		Anchor  editor.Anchor `json:"anchor"`
	}

	replyParams struct {
		CommentID string `json:"comment_id"`
		Content   string `json:"content"`
	}
)

func echoMap(key string, v interface{}) map[string]interface{} {
	return map[string]interface{}{key: v}
}

// actionLabel keeps the metrics label set bounded.
func actionLabel(action string) string {
	if _, ok := sessionActions[action]; ok || action == actionAddComment || action == actionReplyComment {
		return action
	}
	return "unknown"
}

// ActionNames lists the supported session actions.
func ActionNames() []string {
	names := make([]string, 0, len(sessionActions)+2)
	for name := range sessionActions {
		names = append(names, name)
	}
	names = append(names, actionAddComment, actionReplyComment)
	sort.Strings(names)
	return names
}
