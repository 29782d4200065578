package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/comment"
	"github.com/trezcool/ripoti/core/editor"
	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/user"
	exportsvc "github.com/trezcool/ripoti/services/export"
	presencesvc "github.com/trezcool/ripoti/services/presence"
)

var errNoDataSource = errors.New("no data source configured")

const errNoEmail = "your account has no email address"


type reportApi struct {
	conf     *core.Config
	svc      report.Service
	users    user.Service
	validate *validator.Validate
	data     report.DataSource
	mailer   core.EmailService
	presence *presencesvc.Hub
}

func registerReportAPI(g *echo.Group, jwt, jwtQuery echo.MiddlewareFunc, deps *Deps) {
	api := reportApi{
		conf:     deps.Conf,
		svc:      deps.ReportSvc,
		users:    deps.UserSvc,
		validate: deps.Validate,
		data:     deps.Data,
		mailer:   deps.Mailer,
		presence: deps.Presence,
	}

	rg := g.Group("/reports")
	rg.GET("/:id/presence", api.joinPresence, jwtQuery)

	ag := rg.Group("", jwt)
	ag.GET("", api.query)
	ag.POST("", api.create, builderMiddleware())
	ag.GET("/:id", api.retrieve)
	ag.DELETE("/:id", api.destroy)
	ag.POST("/:id/publish", api.publish)
	ag.GET("/:id/export", api.export)
	ag.POST("/:id/export/email", api.emailExport)
	ag.GET("/:id/mentionable", api.mentionable)
	ag.GET("/:id/collaborators", api.collaborators)
	ag.POST("/:id/collaborators", api.invite)
	ag.PUT("/:id/collaborators/:user", api.changeRole)
	ag.DELETE("/:id/collaborators/:user", api.removeCollaborator)
}

func registerPublicAPI(g *echo.Group, deps *Deps) {
	svc := deps.ReportSvc
	g.GET("/:publicID", func(ctx echo.Context) error {
		r, err := svc.GetPublished(ctx.Request().Context(), ctx.Param("publicID"))
		if err != nil {
			return errors.Wrap(err, "getting published report")
		}
		return ctx.JSON(http.StatusOK, newPublicReport(r))
	})
}

// Handlers

func (api *reportApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data report.NewReport
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReport")
	}

	r, err := api.svc.Create(ctx.Request().Context(), data, usr.Collaborator(report.RoleOwner))
	if err != nil {
		return errors.Wrap(err, "creating report")
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *reportApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	filter := new(report.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []ReportSummary{})
	}
	filter.Clean()
	filter.CollaboratorID = usr.ID // users only ever see their reports
	ordering := new(Ordering)
	ordering.Bind(ctx)

	reports, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying reports")
	}
	summaries := make([]ReportSummary, 0, len(reports))
	for _, r := range reports {
		summaries = append(summaries, newReportSummary(r, usr.ID))
	}
	return ctx.JSON(http.StatusOK, summaries)
}

func (api *reportApi) getReport(ctx echo.Context) (report.Report, user.User, error) {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return report.Report{}, user.User{}, errors.Wrap(err, "getting context user")
	}
	r, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), usr.ID)
	if err != nil {
		return report.Report{}, user.User{}, errors.Wrap(err, "getting report")
	}
	return r, usr, nil
}

func (api *reportApi) retrieve(ctx echo.Context) error {
	r, _, err := api.getReport(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *reportApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id"), usr.ID); err != nil {
		return errors.Wrap(err, "deleting report")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *reportApi) publish(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	r, err := api.svc.Publish(ctx.Request().Context(), ctx.Param("id"), usr.ID)
	if err != nil {
		return errors.Wrap(err, "publishing report")
	}
	if api.presence != nil {
		api.presence.Broadcast(r.ID, editor.Event{
			Type:     editor.EventReportPublished,
			ReportID: r.ID,
			UserID:   usr.ID,
			Data:     PublishResponse{PublicURL: r.PublicURL, EmbedCode: r.EmbedCode},
		})
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *reportApi) export(ctx echo.Context) error {
	r, _, buf, err := api.writeExport(ctx)
	if err != nil {
		return err
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", exportFilename(r.Name)))
	return ctx.Blob(http.StatusOK, exportsvc.ContentTypeXLSX, buf.Bytes())
}

// emailExport mails the XLSX export to the requester instead of downloading it.
func (api *reportApi) emailExport(ctx echo.Context) error {
	if api.mailer == nil {
		return errHttpNotFound
	}
	r, usr, buf, err := api.writeExport(ctx)
	if err != nil {
		return err
	}
	if usr.Email == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "email", Error: errNoEmail})
	}

	msg := core.NewTemplateEmail(usr.MailAddress(), fmt.Sprintf("Export of %s", r.Name), "report_export", ExportEmailData{
		RecipientName: usr.Name,
		ReportName:    r.Name,
	})
	if err := msg.Attach(buf, exportFilename(r.Name), exportsvc.ContentTypeXLSX); err != nil {
		return errors.Wrap(err, "attaching export")
	}
	api.mailer.SendMessages(msg)
	return ctx.JSON(http.StatusAccepted, SuccessResponse{Success: fmt.Sprintf("The export will be sent to %s.", usr.Email)})
}

// writeExport writes the XLSX export of the `:id` report for the `ScopeQuery` of the request.
func (api *reportApi) writeExport(ctx echo.Context) (report.Report, user.User, *bytes.Buffer, error) {
	r, usr, err := api.getReport(ctx)
	if err != nil {
		return r, usr, nil, err
	}
	// read the query string directly: echo only binds it for GET & DELETE
	sq := ScopeQuery{
		Scope:   ctx.QueryParam("scope"),
		ScopeID: ctx.QueryParam("scope_id"),
		From:    ctx.QueryParam("from"),
		To:      ctx.QueryParam("to"),
	}
	q, err := sq.DataQuery()
	if err != nil {
		return r, usr, nil, err
	}
	if err := api.validate.Struct(q); err != nil {
		return r, usr, nil, err
	}
	if api.data == nil {
		return r, usr, nil, core.NewExternalServiceError("data", errNoDataSource)
	}

	buf := new(bytes.Buffer)
	if err := exportsvc.WriteXLSX(ctx.Request().Context(), buf, r, api.data, q); err != nil {
		return r, usr, nil, errors.Wrap(err, "exporting report")
	}
	return r, usr, buf, nil
}

func (api *reportApi) mentionable(ctx echo.Context) error {
	r, _, err := api.getReport(ctx)
	if err != nil {
		return err
	}
	users := r.MentionableUsers()
	if q := ctx.QueryParam("q"); q != "" {
		users = comment.Suggest(users, q)
	}
	if users == nil {
		users = []comment.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *reportApi) collaborators(ctx echo.Context) error {
	r, _, err := api.getReport(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, r.Collaborators)
}

func (api *reportApi) invite(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data InviteRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to InviteRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	invitee, err := api.users.GetByID(rctx, data.UserID)
	if err != nil || !invitee.IsActive {
		if err == nil || core.IsNotFound(err) {
			return core.NewValidationError(nil, core.FieldError{Field: "user_id", Error: "user not found"})
		}
		return errors.Wrap(err, "finding invited user")
	}

	collabs, err := api.svc.InviteCollaborator(rctx, ctx.Param("id"), ctxUsr.ID, invitee.Collaborator(data.Role))
	if err != nil {
		return errors.Wrap(err, "inviting collaborator")
	}
	return ctx.JSON(http.StatusCreated, collabs)
}

func (api *reportApi) changeRole(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data ChangeRoleRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangeRoleRequest")
	}
	collabs, err := api.svc.ChangeCollaboratorRole(ctx.Request().Context(), ctx.Param("id"), ctxUsr.ID, ctx.Param("user"), data.Role)
	if err != nil {
		return errors.Wrap(err, "changing collaborator role")
	}
	return ctx.JSON(http.StatusOK, collabs)
}

func (api *reportApi) removeCollaborator(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	collabs, err := api.svc.RemoveCollaborator(ctx.Request().Context(), ctx.Param("id"), ctxUsr.ID, ctx.Param("user"))
	if err != nil {
		return errors.Wrap(err, "removing collaborator")
	}
	return ctx.JSON(http.StatusOK, collabs)
}

func (api *reportApi) joinPresence(ctx echo.Context) error {
	if api.presence == nil || !api.conf.PresenceEnabled {
		return errHttpNotFound
	}
	r, usr, err := api.getReport(ctx)
	if err != nil {
		return err
	}
	m := presencesvc.Member{UserID: usr.ID, Name: usr.Name, Avatar: usr.AvatarURL, Role: r.RoleOf(usr.ID)}
	if err := api.presence.Serve(ctx.Response(), ctx.Request(), r.ID, m); err != nil {
		// the upgrader already answered the client
		return errors.Wrap(err, "joining presence")
	}
	return nil
}

func exportFilename(name string) string {
	slug := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return '-'
	}, strings.TrimSpace(name))
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "report"
	}
	return slug + ".xlsx"
}

type (
	// ReportSummary is a report as listed, without its pages & comments.
	ReportSummary struct {
		ID                 string        `json:"id"`
		Name               string        `json:"name"`
		Status             report.Status `json:"status"`
		OrganizationID     string        `json:"organization_id"`
		Role               report.Role   `json:"role"`
		PageCount          int           `json:"page_count"`
		UnresolvedComments int           `json:"unresolved_comments"`
		PublicURL          string        `json:"public_url,omitempty"`
		UpdatedAt          time.Time     `json:"updated_at"`
	}

	// PublicReport is what anonymous readers of a published report get.
	PublicReport struct {
		Name        string          `json:"name"`
		Branding    report.Branding `json:"branding"`
		Pages       []report.Page   `json:"pages"`
		PublicID    string          `json:"public_id"`
		PublishedAt time.Time       `json:"published_at"`
	}

	PublishResponse struct {
		PublicURL string `json:"public_url"`
		EmbedCode string `json:"embed_code"`
	}

	InviteRequest struct {
		UserID string      `json:"user_id" validate:"required"`
		Role   report.Role `json:"role" validate:"required,oneof=owner editor viewer"`
	}

	ChangeRoleRequest struct {
		Role report.Role `json:"role"`
	}

	ExportEmailData struct {
		RecipientName string
		ReportName    string
	}
)

func newReportSummary(r report.Report, userID string) ReportSummary {
	unresolved := 0
	for _, c := range r.Comments {
		if !c.Resolved {
			unresolved++
		}
	}
	return ReportSummary{
		ID:                 r.ID,
		Name:               r.Name,
		Status:             r.Status,
		OrganizationID:     r.OrganizationID,
		Role:               r.RoleOf(userID),
		PageCount:          len(r.Pages),
		UnresolvedComments: unresolved,
		PublicURL:          r.PublicURL,
		UpdatedAt:          r.UpdatedAt,
	}
}

// newPublicReport drops hidden elements along with collaborators & comments.
func newPublicReport(r report.Report) PublicReport {
	pages := make([]report.Page, 0, len(r.Pages))
	for _, p := range r.Pages {
		visible := make([]report.Element, 0, len(p.Elements))
		for _, el := range p.Elements {
			if !el.Hidden {
				visible = append(visible, el)
			}
		}
		p.Elements = visible
		pages = append(pages, p)
	}
	return PublicReport{
		Name:        r.Name,
		Branding:    r.Branding,
		Pages:       pages,
		PublicID:    r.PublicID,
		PublishedAt: r.PublishedAt,
	}
}

func (ir *InviteRequest) Validate(validate *validator.Validate) error {
	ir.UserID = core.CleanString(ir.UserID)
	ir.Role = report.Role(core.CleanString(string(ir.Role), true /* lower */))
	return validate.Struct(ir)
}
