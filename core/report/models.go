package report

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/comment"
)

type (
	Status      string
	DataMode    string
	Role        string
	PageSize    string
	Orientation string
)

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"

	DataModeLive     DataMode = "live"
	DataModeSnapshot DataMode = "snapshot"

	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"

	PageSizeA4     PageSize = "a4"
	PageSizeLetter PageSize = "letter"
	PageSizeCustom PageSize = "custom"

	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"

	MinPageDimension = 100
	MaxPageDimension = 2000
)

// preset page dimensions (portrait, 96 DPI)
var pageSizes = map[PageSize][2]int{
	PageSizeA4:     {794, 1123},
	PageSizeLetter: {816, 1056},
}

func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleEditor || r == RoleViewer
}

// CanEdit reports whether the role may mutate the document.
func (r Role) CanEdit() bool {
	return r == RoleOwner || r == RoleEditor
}

// CanComment reports whether the role may read & comment.
func (r Role) CanComment() bool {
	return r.Valid()
}

type (
	Branding struct {
		PrimaryColor string `json:"primary_color" validate:"hexcolor_"`
		LogoURL      string `json:"logo_url" validate:"omitempty,url"`
	}

	Collaborator struct {
		UserID    string `json:"user_id" validate:"required"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
		Role      Role   `json:"role" validate:"required,oneof=owner editor viewer"`
	}

	PageSettings struct {
		Width       int         `json:"width" validate:"min=100,max=2000"`
		Height      int         `json:"height" validate:"min=100,max=2000"`
		Size        PageSize    `json:"size" validate:"oneof=a4 letter custom"`
		Orientation Orientation `json:"orientation" validate:"oneof=portrait landscape"`
	}

	Page struct {
		ID       string       `json:"id"`
		Settings PageSettings `json:"settings"`
		Elements []Element    `json:"elements"`
	}

	// Report is the root document: an ordered list of pages with its metadata.
	Report struct {
		ID             string            `json:"id"`
		Name           string            `json:"name"`
		Status         Status            `json:"status"`
		OrganizationID string            `json:"organization_id"`
		DataMode       DataMode          `json:"data_mode"`
		Branding       Branding          `json:"branding"`
		Zoom           float64           `json:"zoom"`
		ShowGrid       bool              `json:"show_grid"`
		Pages          []Page            `json:"pages"`
		Collaborators  []Collaborator    `json:"collaborators"`
		Comments       []comment.Comment `json:"comments"`
		PublicID       string            `json:"public_id,omitempty"`
		PublicURL      string            `json:"public_url,omitempty"`
		EmbedCode      string            `json:"embed_code,omitempty"`
		PublishedAt    time.Time         `json:"published_at"` // UTC
		CreatedBy      string            `json:"created_by"`
		CreatedAt      time.Time         `json:"created_at"` // UTC
		UpdatedAt      time.Time         `json:"updated_at"` // UTC
	}
)

// DefaultPageSettings returns A4 portrait settings.
func DefaultPageSettings() PageSettings {
	ps, _ := NewPageSettings(PageSizeA4, Portrait, 0, 0)
	return ps
}

// NewPageSettings computes the page dimensions for a size preset & orientation.
// width & height are only used by the custom size.
func NewPageSettings(size PageSize, orientation Orientation, width, height int) (PageSettings, error) {
	if orientation == "" {
		orientation = Portrait
	}
	ps := PageSettings{Size: size, Orientation: orientation}
	if dims, ok := pageSizes[size]; ok {
		ps.Width, ps.Height = dims[0], dims[1]
		if orientation == Landscape {
			ps.Width, ps.Height = ps.Height, ps.Width
		}
		return ps, nil
	}
	if size != PageSizeCustom {
		return PageSettings{}, core.NewValidationError(nil, core.FieldError{Field: "size", Error: "size must be one of [a4 letter custom]"})
	}
	ps.Width, ps.Height = width, height
	return ps, nil
}

// Clone returns a deep copy of the page.
func (p Page) Clone() Page {
	if p.Elements != nil {
		els := make([]Element, len(p.Elements))
		for i, el := range p.Elements {
			els[i] = el.Clone()
		}
		p.Elements = els
	}
	return p
}

// ElementIndex returns the index of the element with id, or -1.
func (p Page) ElementIndex(id string) int {
	for i, el := range p.Elements {
		if el.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the report.
func (r Report) Clone() Report {
	if r.Pages != nil {
		pages := make([]Page, len(r.Pages))
		for i, p := range r.Pages {
			pages[i] = p.Clone()
		}
		r.Pages = pages
	}
	if r.Collaborators != nil {
		collabs := make([]Collaborator, len(r.Collaborators))
		copy(collabs, r.Collaborators)
		r.Collaborators = collabs
	}
	r.Comments = comment.CloneAll(r.Comments)
	return r
}

// PageIndex returns the index of the page with id, or -1.
func (r Report) PageIndex(id string) int {
	for i, p := range r.Pages {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// FindElement locates an element on any page.
func (r Report) FindElement(id string) (pageIdx, elIdx int, ok bool) {
	for pi, p := range r.Pages {
		if ei := p.ElementIndex(id); ei >= 0 {
			return pi, ei, true
		}
	}
	return -1, -1, false
}

// RoleOf returns the role of the user on the report, or "" if they are not a collaborator.
func (r Report) RoleOf(userID string) Role {
	if c, ok := r.Collaborator(userID); ok {
		return c.Role
	}
	return ""
}

func (r Report) Collaborator(userID string) (Collaborator, bool) {
	for _, c := range r.Collaborators {
		if c.UserID == userID {
			return c, true
		}
	}
	return Collaborator{}, false
}

func (r Report) OwnerCount() int {
	var n int
	for _, c := range r.Collaborators {
		if c.Role == RoleOwner {
			n++
		}
	}
	return n
}

// MentionableUsers returns the collaborators as mention candidates.
func (r Report) MentionableUsers() []comment.User {
	users := make([]comment.User, 0, len(r.Collaborators))
	for _, c := range r.Collaborators {
		users = append(users, comment.User{ID: c.UserID, Name: c.Name, AvatarURL: c.AvatarURL})
	}
	return users
}

// ElementExists reports whether an element with id is on any page. Used to detect orphaned comments.
func (r Report) ElementExists(id string) bool {
	_, _, ok := r.FindElement(id)
	return ok
}

// PublicLink returns the public URL & the iframe embed code of a published report.
func PublicLink(baseURL, publicID string) (url, embed string) {
	url = strings.TrimSuffix(baseURL, "/") + "/r/" + publicID
	embed = fmt.Sprintf(
		`<iframe src="%s" width="100%%" height="800" frameborder="0" allowfullscreen></iframe>`,
		html.EscapeString(url),
	)
	return url, embed
}

type NewReport struct {
	Name           string   `json:"name" validate:"required,notblank,max=255"`
	OrganizationID string   `json:"organization_id" validate:"max=64"`
	Template       string   `json:"template" validate:"omitempty,oneof=blank kpi_overview monthly_summary"`
	DataMode       DataMode `json:"data_mode" validate:"omitempty,oneof=live snapshot"`
}

type QueryFilter struct {
	Search         string    `query:"search"`
	Status         Status    `query:"status"`
	OrganizationID string    `query:"organization_id"`
	CollaboratorID string    `query:"-"`
	CreatedFrom    time.Time `query:"created_from"`
	CreatedTo      time.Time `query:"created_to"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.OrganizationID = core.CleanString(qf.OrganizationID)
}

// Point is a labelled data value.
type Point struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// Series holds the values of one metric.
type Series struct {
	Key    string  `json:"key"`
	Label  string  `json:"label"`
	Points []Point `json:"points"`
}

// Latest returns the last value of the series.
func (s Series) Latest() (float64, bool) {
	if len(s.Points) == 0 {
		return 0, false
	}
	return s.Points[len(s.Points)-1].Value, true
}
