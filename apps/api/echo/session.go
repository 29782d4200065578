package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/editor"
	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/user"
	telemetrysvc "github.com/trezcool/ripoti/services/telemetry"
)

type sessionApi struct {
	users    user.Service
	editor   *editor.Manager
	validate *validator.Validate
	metrics  *telemetrysvc.Metrics
}

func registerSessionAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := sessionApi{
		users:    deps.UserSvc,
		editor:   deps.Editor,
		validate: deps.Validate,
		metrics:  deps.Metrics,
	}

	sg := g.Group("/sessions", jwt)
	sg.POST("", api.open)
	sg.GET("/actions", api.actions)
	sg.GET("/:sid", api.state)
	sg.DELETE("/:sid", api.close)
	sg.POST("/:sid/actions", api.action)
	sg.POST("/:sid/save", api.save)
	sg.POST("/:sid/publish", api.publish)
	sg.POST("/:sid/data", api.data)
	sg.POST("/:sid/elements/:eid/generate", api.generate)
}

type (
	OpenSessionRequest struct {
		ReportID string `json:"report_id" validate:"required"`
	}

	OpenSessionResponse struct {
		SessionID string       `json:"session_id"`
		State     editor.State `json:"state"`
	}

	GenerateRequest struct {
		Scope *report.DataQuery `json:"scope"`
	}
)

// Handlers

func (api *sessionApi) open(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data OpenSessionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to OpenSessionRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	actor := editor.Actor{UserID: usr.ID, Name: usr.Name, AvatarURL: usr.AvatarURL}
	id, st, err := api.editor.Open(ctx.Request().Context(), data.ReportID, actor)
	if err != nil {
		return errors.Wrap(err, "opening session")
	}
	return ctx.JSON(http.StatusCreated, OpenSessionResponse{SessionID: id, State: st})
}

func (api *sessionApi) state(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	st, err := api.editor.State(ctx.Param("sid"), usr.ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, st)
}

func (api *sessionApi) close(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := api.editor.Close(ctx.Param("sid"), usr.ID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *sessionApi) actions(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, ActionNames())
}

func (api *sessionApi) action(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var req ActionRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to ActionRequest")
	}

	resp, err := api.dispatch(ctx, usr.ID, req)
	if api.metrics != nil {
		api.metrics.CommandDone(actionLabel(req.Action), err)
	}
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *sessionApi) dispatch(ctx echo.Context, userID string, req ActionRequest) (ActionResponse, error) {
	sid := ctx.Param("sid")
	var resp ActionResponse

	switch req.Action {
	case actionAddComment:
		var p addCommentParams
		if err := decodeParams(req.Params, &p); err != nil {
			return resp, err
		}
		v, err := api.editor.AddComment(ctx.Request().Context(), sid, userID, p.Content, p.Anchor)
		if err != nil {
			return resp, err
		}
		resp.Applied, resp.Result = true, v
	case actionReplyComment:
		var p replyParams
		if err := decodeParams(req.Params, &p); err != nil {
			return resp, err
		}
		v, err := api.editor.Reply(ctx.Request().Context(), sid, userID, p.CommentID, p.Content)
		if err != nil {
			return resp, err
		}
		resp.Applied, resp.Result = true, v
	default:
		handler, ok := sessionActions[req.Action]
		if !ok {
			return resp, core.NewValidationError(
				errors.Errorf("unknown action %q", req.Action),
				core.FieldError{Field: "action", Error: "unknown action"},
			)
		}
		err := api.editor.Do(sid, userID, func(s *editor.Session) error {
			result, err := handler(s, req.Params)
			switch {
			case editor.IsRejection(err):
				resp.Reason = err.Error()
			case err != nil:
				return err
			default:
				if n, isNoop := result.(noop); isNoop {
					resp.Reason = n.reason
				} else {
					resp.Applied, resp.Result = true, result
				}
			}
			resp.State = s.State()
			return nil
		})
		return resp, err
	}

	st, err := api.editor.State(sid, userID)
	if err != nil {
		return resp, err
	}
	resp.State = st
	return resp, nil
}

func (api *sessionApi) save(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	res, err := api.editor.Save(ctx.Request().Context(), ctx.Param("sid"), usr.ID)
	if err != nil {
		return errors.Wrap(err, "saving session")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *sessionApi) publish(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	r, err := api.editor.Publish(ctx.Request().Context(), ctx.Param("sid"), usr.ID)
	if err != nil {
		return errors.Wrap(err, "publishing session")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *sessionApi) data(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var q report.DataQuery
	if err := ctx.Bind(&q); err != nil {
		return errors.Wrap(err, "binding to DataQuery")
	}
	series, err := api.editor.PageData(ctx.Request().Context(), ctx.Param("sid"), usr.ID, q)
	if err != nil {
		return errors.Wrap(err, "fetching page data")
	}
	return ctx.JSON(http.StatusOK, series)
}

func (api *sessionApi) generate(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.users)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data GenerateRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateRequest")
	}
	el, err := api.editor.Generate(ctx.Request().Context(), ctx.Param("sid"), usr.ID, ctx.Param("eid"), data.Scope)
	if err != nil {
		return errors.Wrap(err, "generating content")
	}
	return ctx.JSON(http.StatusOK, el)
}
