package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/comment"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("report not found")
	ErrEditDenied          = core.NewPermissionError("only owners and editors can edit this report")
	ErrOwnerOnly           = core.NewPermissionError("only owners can manage this report")
	ErrCommentDenied       = core.NewPermissionError("only collaborators can comment on this report")
	ErrLastOwner           = errors.New("a report must keep at least one owner")
	ErrAlreadyCollaborator = errors.New("this user is already a collaborator")
	ErrNotCollaborator     = core.NewNotFoundError("collaborator not found")
)

type (
	Repository interface {
		CreateReport(ctx context.Context, r Report) (Report, error)
		GetReport(ctx context.Context, id string) (Report, error)
		GetReportByPublicID(ctx context.Context, publicID string) (Report, error)
		// QueryReports applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on Report.Name.
		QueryReports(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Report, error)
		UpdateReport(ctx context.Context, r Report) (Report, error)
		DeleteReportsByID(ctx context.Context, ids ...string) error
	}

	Service interface {
		Create(ctx context.Context, nr NewReport, creator Collaborator) (Report, error)
		Get(ctx context.Context, id, userID string) (Report, error)
		GetPublished(ctx context.Context, publicID string) (Report, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Report, error)
		Save(ctx context.Context, r Report, userID string) (Report, error)
		SaveComments(ctx context.Context, id string, comments []comment.Comment, userID string) (Report, error)
		Publish(ctx context.Context, id, userID string) (Report, error)
		Delete(ctx context.Context, id, userID string) error
		InviteCollaborator(ctx context.Context, id, byUserID string, c Collaborator) ([]Collaborator, error)
		RemoveCollaborator(ctx context.Context, id, byUserID, userID string) ([]Collaborator, error)
		ChangeCollaboratorRole(ctx context.Context, id, byUserID, userID string, role Role) ([]Collaborator, error)
		// DetachUsers removes users from every report they collaborate on.
		// Nothing changes if one of them is the last owner of a report.
		DetachUsers(ctx context.Context, userIDs ...string) error
		// SyncCollaborator copies the name & avatar of c to the reports c.UserID collaborates on.
		SyncCollaborator(ctx context.Context, c Collaborator) error
	}

	service struct {
		repo          Repository
		validate      *validator.Validate
		publicBaseURL string
		now           func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, validate *validator.Validate, conf *core.Config) Service {
	return &service{
		repo:          repo,
		validate:      validate,
		publicBaseURL: conf.Editor.PublicBaseURL,
		now:           time.Now,
	}
}

func newPublicID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// decorate fills the derived fields of a report.
func (svc *service) decorate(r Report) Report {
	if r.PublicID != "" {
		r.PublicURL, r.EmbedCode = PublicLink(svc.publicBaseURL, r.PublicID)
	}
	if r.Comments == nil {
		r.Comments = []comment.Comment{}
	}
	if r.Collaborators == nil {
		r.Collaborators = []Collaborator{}
	}
	return r
}

func (svc *service) get(ctx context.Context, id string) (Report, error) {
	r, err := svc.repo.GetReport(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Report{}, ErrNotFound
		}
		return Report{}, errors.Wrap(err, "getting report")
	}
	return r, nil
}

// ValidateDocument checks the editable parts of a report.
func ValidateDocument(validate *validator.Validate, r Report) error {
	if core.CleanString(r.Name) == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "name", Error: "this field is required"})
	}
	if len(r.Pages) == 0 {
		return core.NewValidationError(nil, core.FieldError{Field: "pages", Error: "a report must have at least one page"})
	}
	if err := validate.Struct(r.Branding); err != nil {
		return err
	}
	seen := make(map[string]struct{})
	for _, p := range r.Pages {
		if err := validate.Struct(p.Settings); err != nil {
			return err
		}
		for _, el := range p.Elements {
			if el.ID == "" {
				return core.NewValidationError(nil, core.FieldError{Field: "elements", Error: "every element must have an id"})
			}
			if _, dup := seen[el.ID]; dup {
				return core.NewValidationError(nil, core.FieldError{Field: "elements", Error: "duplicate element id " + el.ID})
			}
			seen[el.ID] = struct{}{}
		}
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nr NewReport, creator Collaborator) (Report, error) {
	nr.Name = core.CleanString(nr.Name)
	if err := svc.validate.Struct(nr); err != nil {
		return Report{}, err
	}
	pages, err := BuildPages(nr.Template, uuid.NewString)
	if err != nil {
		return Report{}, core.NewValidationError(err, core.FieldError{Field: "template", Error: err.Error()})
	}
	if nr.DataMode == "" {
		nr.DataMode = DataModeLive
	}

	now := svc.now().UTC()
	creator.Role = RoleOwner
	r := Report{
		ID:             uuid.NewString(),
		Name:           nr.Name,
		Status:         StatusDraft,
		OrganizationID: nr.OrganizationID,
		DataMode:       nr.DataMode,
		Branding:       Branding{PrimaryColor: "#3366ff"},
		Zoom:           1,
		Pages:          pages,
		Collaborators:  []Collaborator{creator},
		Comments:       []comment.Comment{},
		CreatedBy:      creator.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r, err = svc.repo.CreateReport(ctx, r)
	if err != nil {
		return Report{}, errors.Wrap(err, "creating report")
	}
	return svc.decorate(r), nil
}

// Get returns the report if userID collaborates on it. Other users get ErrNotFound.
func (svc *service) Get(ctx context.Context, id, userID string) (Report, error) {
	r, err := svc.get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if r.RoleOf(userID) == "" {
		return Report{}, ErrNotFound
	}
	return svc.decorate(r), nil
}

func (svc *service) GetPublished(ctx context.Context, publicID string) (Report, error) {
	r, err := svc.repo.GetReportByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return Report{}, ErrNotFound
		}
		return Report{}, errors.Wrap(err, "getting report by public ID")
	}
	if r.Status != StatusPublished {
		return Report{}, ErrNotFound
	}
	return svc.decorate(r), nil
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Report, error) {
	reports, err := svc.repo.QueryReports(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying reports")
	}
	for i := range reports {
		reports[i] = svc.decorate(reports[i])
	}
	return reports, nil
}

// Save persists the editable parts of r (document & comments). Last write wins.
func (svc *service) Save(ctx context.Context, r Report, userID string) (Report, error) {
	stored, err := svc.get(ctx, r.ID)
	if err != nil {
		return Report{}, err
	}
	if !stored.RoleOf(userID).CanEdit() {
		return Report{}, ErrEditDenied
	}
	if err := ValidateDocument(svc.validate, r); err != nil {
		return Report{}, err
	}

	stored.Name = core.CleanString(r.Name)
	stored.DataMode = r.DataMode
	stored.Branding = r.Branding
	stored.Zoom = r.Zoom
	stored.ShowGrid = r.ShowGrid
	stored.Pages = r.Clone().Pages
	stored.Comments = comment.CloneAll(r.Comments)
	stored.UpdatedAt = svc.now().UTC()

	stored, err = svc.repo.UpdateReport(ctx, stored)
	if err != nil {
		return Report{}, errors.Wrap(err, "updating report")
	}
	return svc.decorate(stored), nil
}

// SaveComments only persists the comment threads; any collaborator may call it.
func (svc *service) SaveComments(ctx context.Context, id string, comments []comment.Comment, userID string) (Report, error) {
	stored, err := svc.get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if !stored.RoleOf(userID).CanComment() {
		return Report{}, ErrCommentDenied
	}
	stored.Comments = comment.CloneAll(comments)
	stored.UpdatedAt = svc.now().UTC()

	stored, err = svc.repo.UpdateReport(ctx, stored)
	if err != nil {
		return Report{}, errors.Wrap(err, "updating report comments")
	}
	return svc.decorate(stored), nil
}

// Publish mints the public link of the report. Publishing a published report returns it unchanged.
func (svc *service) Publish(ctx context.Context, id, userID string) (Report, error) {
	r, err := svc.get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	if !r.RoleOf(userID).CanEdit() {
		return Report{}, ErrEditDenied
	}
	if r.Status == StatusPublished && r.PublicID != "" {
		return svc.decorate(r), nil
	}

	now := svc.now().UTC()
	r.Status = StatusPublished
	r.PublicID = newPublicID()
	r.PublishedAt = now
	r.UpdatedAt = now
	r, err = svc.repo.UpdateReport(ctx, r)
	if err != nil {
		return Report{}, errors.Wrap(err, "publishing report")
	}
	return svc.decorate(r), nil
}

func (svc *service) Delete(ctx context.Context, id, userID string) error {
	r, err := svc.get(ctx, id)
	if err != nil {
		return err
	}
	switch r.RoleOf(userID) {
	case RoleOwner:
	case "":
		return ErrNotFound
	default:
		return ErrOwnerOnly
	}
	if err := svc.repo.DeleteReportsByID(ctx, id); err != nil {
		return errors.Wrap(err, "deleting report")
	}
	return nil
}

func (svc *service) getAsOwner(ctx context.Context, id, byUserID string) (Report, error) {
	r, err := svc.get(ctx, id)
	if err != nil {
		return Report{}, err
	}
	switch r.RoleOf(byUserID) {
	case RoleOwner:
		return r, nil
	case "":
		return Report{}, ErrNotFound
	}
	return Report{}, ErrOwnerOnly
}

func (svc *service) updateCollaborators(ctx context.Context, r Report) ([]Collaborator, error) {
	r.UpdatedAt = svc.now().UTC()
	r, err := svc.repo.UpdateReport(ctx, r)
	if err != nil {
		return nil, errors.Wrap(err, "updating collaborators")
	}
	return svc.decorate(r).Collaborators, nil
}

func (svc *service) InviteCollaborator(ctx context.Context, id, byUserID string, c Collaborator) ([]Collaborator, error) {
	if err := svc.validate.Struct(c); err != nil {
		return nil, err
	}
	r, err := svc.getAsOwner(ctx, id, byUserID)
	if err != nil {
		return nil, err
	}
	if _, ok := r.Collaborator(c.UserID); ok {
		return nil, core.NewValidationError(ErrAlreadyCollaborator, core.FieldError{Field: "user_id", Error: ErrAlreadyCollaborator.Error()})
	}
	r.Collaborators = append(r.Collaborators, c)
	return svc.updateCollaborators(ctx, r)
}

func (svc *service) RemoveCollaborator(ctx context.Context, id, byUserID, userID string) ([]Collaborator, error) {
	r, err := svc.get(ctx, id)
	if err != nil {
		return nil, err
	}
	// collaborators may leave on their own; owners may remove anyone
	if byUserID != userID {
		if r, err = svc.getAsOwner(ctx, id, byUserID); err != nil {
			return nil, err
		}
	}
	c, ok := r.Collaborator(userID)
	if !ok {
		return nil, ErrNotCollaborator
	}
	if c.Role == RoleOwner && r.OwnerCount() == 1 {
		return nil, core.NewValidationError(ErrLastOwner, core.FieldError{Field: "user_id", Error: ErrLastOwner.Error()})
	}

	collabs := make([]Collaborator, 0, len(r.Collaborators)-1)
	for _, rc := range r.Collaborators {
		if rc.UserID != userID {
			collabs = append(collabs, rc)
		}
	}
	r.Collaborators = collabs
	return svc.updateCollaborators(ctx, r)
}

func (svc *service) ChangeCollaboratorRole(ctx context.Context, id, byUserID, userID string, role Role) ([]Collaborator, error) {
	if !role.Valid() {
		return nil, core.NewValidationError(nil, core.FieldError{Field: "role", Error: "role must be one of [owner editor viewer]"})
	}
	r, err := svc.getAsOwner(ctx, id, byUserID)
	if err != nil {
		return nil, err
	}
	c, ok := r.Collaborator(userID)
	if !ok {
		return nil, ErrNotCollaborator
	}
	if c.Role == RoleOwner && role != RoleOwner && r.OwnerCount() == 1 {
		return nil, core.NewValidationError(ErrLastOwner, core.FieldError{Field: "role", Error: ErrLastOwner.Error()})
	}
	for i := range r.Collaborators {
		if r.Collaborators[i].UserID == userID {
			r.Collaborators[i].Role = role
		}
	}
	return svc.updateCollaborators(ctx, r)
}

func (svc *service) collaborations(ctx context.Context, userIDs []string) (map[string]Report, error) {
	reports := make(map[string]Report)
	for _, id := range userIDs {
		rs, err := svc.repo.QueryReports(ctx, &QueryFilter{CollaboratorID: id}, nil)
		if err != nil {
			return nil, errors.Wrap(err, "querying collaborations")
		}
		for _, r := range rs {
			reports[r.ID] = r
		}
	}
	return reports, nil
}

func (svc *service) DetachUsers(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}
	detached := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		detached[id] = true
	}
	reports, err := svc.collaborations(ctx, userIDs)
	if err != nil {
		return err
	}

	updated := make([]Report, 0, len(reports))
	for _, r := range reports {
		kept := make([]Collaborator, 0, len(r.Collaborators))
		owners := 0
		for _, c := range r.Collaborators {
			if detached[c.UserID] {
				continue
			}
			if c.Role == RoleOwner {
				owners++
			}
			kept = append(kept, c)
		}
		if owners == 0 {
			return core.NewValidationError(ErrLastOwner, core.FieldError{
				Field: "id",
				Error: fmt.Sprintf("%s of %q", ErrLastOwner.Error(), r.Name),
			})
		}
		r.Collaborators = kept
		updated = append(updated, r)
	}

	for _, r := range updated {
		if _, err := svc.updateCollaborators(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (svc *service) SyncCollaborator(ctx context.Context, c Collaborator) error {
	reports, err := svc.collaborations(ctx, []string{c.UserID})
	if err != nil {
		return err
	}
	for _, r := range reports {
		for i := range r.Collaborators {
			if r.Collaborators[i].UserID == c.UserID {
				r.Collaborators[i].Name = c.Name
				r.Collaborators[i].AvatarURL = c.AvatarURL
			}
		}
		if _, err := svc.updateCollaborators(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
