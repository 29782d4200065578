package echoapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/ripoti/apps/api/echo"
	"github.com/trezcool/ripoti/core/editor"
	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/user"
	"github.com/trezcool/ripoti/testutil"
)

type actionResult struct {
	Applied bool            `json:"applied"`
	Reason  string          `json:"reason"`
	Result  json.RawMessage `json:"result"`
	State   editor.State    `json:"state"`
}

func (f fixture) open(t *testing.T, token, reportID string) echoapi.OpenSessionResponse {
	t.Helper()
	rec := f.do(http.MethodPost, "/v1/sessions", token, []byte(`{"report_id":"`+reportID+`"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp echoapi.OpenSessionResponse
	unmarshalBody(t, rec, &resp)
	return resp
}

func (f fixture) act(t *testing.T, token, sid, action string, params interface{}) actionResult {
	t.Helper()
	req := map[string]interface{}{"action": action}
	if params != nil {
		req["params"] = params
	}
	rec := f.do(http.MethodPost, "/v1/sessions/"+sid+"/actions", token, marshalObj(t, req))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res actionResult
	unmarshalBody(t, rec, &res)
	return res
}

func Test_sessionApi_lifecycle(t *testing.T) {
	f := setup(t)
	ana := testutil.CreateUser(t, f.usrRepo, "Ana", "ana", "ana@test.cd", "", []string{user.RoleAnalyst}, true)
	eve := testutil.CreateUser(t, f.usrRepo, "Eve", "eve", "eve@test.cd", "", nil, true)
	r := testutil.CreateReport(t, f.reports, "Q1", report.TemplateBlank, ana)
	token, eveToken := getToken(t, f.conf, ana), getToken(t, f.conf, eve)

	f.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/sessions", body: []byte(`{}`), wantCode: http.StatusUnauthorized},
		{name: "report required", method: http.MethodPost, path: "/v1/sessions", token: token, body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{
			name: "not a collaborator", method: http.MethodPost, path: "/v1/sessions", token: eveToken,
			body: []byte(`{"report_id":"` + r.ID + `"}`), wantCode: http.StatusNotFound,
			wantData: marshalObj(t, httpErr{Error: "report not found"}),
		},
	})

	sess := f.open(t, token, r.ID)
	require.NotEmpty(t, sess.SessionID)
	assert.Equal(t, report.RoleOwner, sess.State.Role)
	assert.Equal(t, r.ID, sess.State.Report.ID)
	assert.False(t, sess.State.Dirty)
	assert.Equal(t, 1, f.editor.Len())

	path := "/v1/sessions/" + sess.SessionID
	sessionNotFound := marshalObj(t, httpErr{Error: "editing session not found"})
	f.run(t, []httpTest{
		{name: "state", path: path, token: token, wantData: marshalObj(t, sess.State)},
		{name: "state (other user)", path: path, token: eveToken, wantCode: http.StatusNotFound, wantData: sessionNotFound},
		{name: "close (other user)", method: http.MethodDelete, path: path, token: eveToken, wantCode: http.StatusNotFound, wantData: sessionNotFound},
	})

	added := f.act(t, token, sess.SessionID, "add_element", map[string]interface{}{"type": "text"})
	require.True(t, added.Applied)
	assert.True(t, added.State.Dirty)

	rec := f.do(http.MethodPost, path+"/save", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var saved editor.SaveResult
	unmarshalBody(t, rec, &saved)
	assert.Equal(t, added.State.Revision, saved.Revision)
	assert.False(t, saved.Skipped)

	stored, err := f.reports.Get(context.Background(), r.ID, ana.ID)
	require.NoError(t, err)
	require.Len(t, stored.Pages[0].Elements, 1)
	assert.Equal(t, report.TypeText, stored.Pages[0].Elements[0].Type)

	rec = f.do(http.MethodDelete, path, token)
	assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	assert.Equal(t, 0, f.editor.Len())
	f.run(t, []httpTest{
		{name: "closed", path: path, token: token, wantCode: http.StatusNotFound, wantData: sessionNotFound},
	})
}

func Test_sessionApi_actions(t *testing.T) {
	f := setup(t)
	ana := testutil.CreateUser(t, f.usrRepo, "Ana", "ana", "ana@test.cd", "", []string{user.RoleAnalyst}, true)
	r := testutil.CreateReport(t, f.reports, "Q1", report.TemplateBlank, ana)
	token := getToken(t, f.conf, ana)
	sid := f.open(t, token, r.ID).SessionID

	t.Run("nothing to undo", func(t *testing.T) {
		res := f.act(t, token, sid, "undo", nil)
		assert.False(t, res.Applied)
		assert.Equal(t, "nothing to undo", res.Reason)
	})

	var el report.Element
	t.Run("add element", func(t *testing.T) {
		res := f.act(t, token, sid, "add_element", map[string]interface{}{"type": "chart"})
		require.True(t, res.Applied)
		require.NoError(t, json.Unmarshal(res.Result, &el))
		assert.Equal(t, report.TypeChart, el.Type)
		assert.Equal(t, []string{el.ID}, res.State.Selection)
		assert.True(t, res.State.CanUndo)
	})

	t.Run("move & resize", func(t *testing.T) {
		res := f.act(t, token, sid, "move_element", map[string]interface{}{"id": el.ID, "x": 120, "y": 80})
		require.True(t, res.Applied)
		res = f.act(t, token, sid, "resize_element", map[string]interface{}{"id": el.ID, "width": 300, "height": 200})
		require.True(t, res.Applied)
		got := res.State.Report.Pages[0].Elements[0]
		assert.Equal(t, report.Position{X: 120, Y: 80}, got.Position)
		assert.Equal(t, report.Size{Width: 300, Height: 200}, got.Size)
	})

	t.Run("locked element", func(t *testing.T) {
		res := f.act(t, token, sid, "toggle_lock", map[string]interface{}{"id": el.ID})
		require.True(t, res.Applied)
		rev := res.State.Revision

		res = f.act(t, token, sid, "move_element", map[string]interface{}{"id": el.ID, "x": 0, "y": 0})
		assert.False(t, res.Applied)
		assert.Equal(t, "element is locked", res.Reason)
		assert.Equal(t, rev, res.State.Revision)
		assert.Equal(t, report.Position{X: 120, Y: 80}, res.State.Report.Pages[0].Elements[0].Position)

		res = f.act(t, token, sid, "toggle_lock", map[string]interface{}{"id": el.ID})
		require.True(t, res.Applied)
	})

	t.Run("undo & redo", func(t *testing.T) {
		res := f.act(t, token, sid, "undo", nil) // unlock
		require.True(t, res.Applied)
		assert.True(t, res.State.Report.Pages[0].Elements[0].Locked)
		res = f.act(t, token, sid, "redo", nil)
		require.True(t, res.Applied)
		assert.False(t, res.State.Report.Pages[0].Elements[0].Locked)
		res = f.act(t, token, sid, "redo", nil)
		assert.False(t, res.Applied)
		assert.Equal(t, "nothing to redo", res.Reason)
	})

	t.Run("pages", func(t *testing.T) {
		res := f.act(t, token, sid, "add_page", nil)
		require.True(t, res.Applied)
		assert.Len(t, res.State.Report.Pages, 2)
		assert.Equal(t, 1, res.State.ActivePage)

		res = f.act(t, token, sid, "update_page_settings", map[string]interface{}{"index": 1, "size": "letter", "orientation": "landscape"})
		require.True(t, res.Applied)
		assert.Equal(t, 1056, res.State.Report.Pages[1].Settings.Width)

		res = f.act(t, token, sid, "switch_page", map[string]interface{}{"index": 0})
		require.True(t, res.Applied)
		assert.Equal(t, 0, res.State.ActivePage)
	})

	t.Run("clipboard", func(t *testing.T) {
		res := f.act(t, token, sid, "select_all", nil)
		require.True(t, res.Applied)
		res = f.act(t, token, sid, "copy", nil)
		require.True(t, res.Applied)
		assert.JSONEq(t, `{"copied":1}`, string(res.Result))
		assert.Equal(t, 1, res.State.ClipboardSize)

		res = f.act(t, token, sid, "paste", nil)
		require.True(t, res.Applied)
		var pasted []report.Element
		require.NoError(t, json.Unmarshal(res.Result, &pasted))
		require.Len(t, pasted, 1)
		assert.NotEqual(t, el.ID, pasted[0].ID)
		assert.Len(t, res.State.Report.Pages[0].Elements, 2)
	})

	t.Run("viewport", func(t *testing.T) {
		res := f.act(t, token, sid, "set_zoom", map[string]interface{}{"zoom": 1.5})
		assert.JSONEq(t, `{"zoom":1.5}`, string(res.Result))
		res = f.act(t, token, sid, "toggle_grid", nil)
		assert.JSONEq(t, `{"show_grid":true}`, string(res.Result))
	})

	t.Run("metadata", func(t *testing.T) {
		res := f.act(t, token, sid, "rename", map[string]interface{}{"name": "Q1 final"})
		require.True(t, res.Applied)
		assert.Equal(t, "Q1 final", res.State.Report.Name)
		res = f.act(t, token, sid, "set_data_mode", map[string]interface{}{"mode": "snapshot"})
		require.True(t, res.Applied)
		assert.Equal(t, report.DataModeSnapshot, res.State.Report.DataMode)
	})

	t.Run("comments", func(t *testing.T) {
		res := f.act(t, token, sid, "add_comment", map[string]interface{}{
			"content": "check this chart",
			"anchor":  map[string]interface{}{"element_id": el.ID},
		})
		require.True(t, res.Applied)
		assert.Equal(t, 1, res.State.UnresolvedComments)
		var c editor.CommentView
		require.NoError(t, json.Unmarshal(res.Result, &c))

		res = f.act(t, token, sid, "reply_comment", map[string]interface{}{"comment_id": c.ID, "content": "done"})
		require.True(t, res.Applied)
		res = f.act(t, token, sid, "resolve_comment", map[string]interface{}{"id": c.ID})
		require.True(t, res.Applied)
		assert.Equal(t, 0, res.State.UnresolvedComments)

		res = f.act(t, token, sid, "list_comments", map[string]interface{}{"filter": "resolved"})
		var list []editor.CommentView
		require.NoError(t, json.Unmarshal(res.Result, &list))
		require.Len(t, list, 1)
		assert.Equal(t, c.ID, list[0].ID)
	})

	t.Run("composer", func(t *testing.T) {
		res := f.act(t, token, sid, "composer_input", map[string]interface{}{"text": "hey @an", "cursor": 7})
		var st editor.MentionState
		require.NoError(t, json.Unmarshal(res.Result, &st))
		assert.True(t, st.Open)

		res = f.act(t, token, sid, "composer_key", map[string]interface{}{"key": "Enter", "text": "hey @an", "cursor": 7})
		var kr echoapi.ComposerKeyResult
		require.NoError(t, json.Unmarshal(res.Result, &kr))
		assert.True(t, kr.Handled)
		assert.True(t, strings.HasPrefix(kr.Text, "hey @[Ana](user:"+ana.ID+")"))
	})
}

func Test_sessionApi_actionErrors(t *testing.T) {
	f := setup(t)
	ana := testutil.CreateUser(t, f.usrRepo, "Ana", "ana", "ana@test.cd", "", []string{user.RoleAnalyst}, true)
	bob := testutil.CreateUser(t, f.usrRepo, "Bob", "bob", "bob@test.cd", "", nil, true)
	r := testutil.CreateReport(t, f.reports, "Q1", report.TemplateBlank, ana, testutil.Collaborator(bob, report.RoleViewer))
	token, bobToken := getToken(t, f.conf, ana), getToken(t, f.conf, bob)
	path := "/v1/sessions/" + f.open(t, token, r.ID).SessionID + "/actions"
	bobPath := "/v1/sessions/" + f.open(t, bobToken, r.ID).SessionID + "/actions"

	f.run(t, []httpTest{
		{
			name: "unknown action", method: http.MethodPost, path: path, token: token, body: []byte(`{"action":"explode"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"action":"unknown action"}`),
		},
		{
			name: "unknown param", method: http.MethodPost, path: path, token: token,
			body: []byte(`{"action":"rename","params":{"name":"x","bogus":1}}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "unknown element type", method: http.MethodPost, path: path, token: token,
			body:     []byte(`{"action":"add_element","params":{"type":"video"}}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"type":"unknown element type"}`),
		},
		{
			name: "unknown element", method: http.MethodPost, path: path, token: token,
			body:     []byte(`{"action":"delete_element","params":{"id":"nope"}}`),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "element not found"}),
		},
		{
			name: "last page", method: http.MethodPost, path: path, token: token,
			body: []byte(`{"action":"delete_page","params":{"index":0}}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "bad comment filter", method: http.MethodPost, path: path, token: token,
			body:     []byte(`{"action":"list_comments","params":{"filter":"mine"}}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"filter":"filter must be one of [all unresolved resolved]"}`),
		},
		{
			name: "viewer cannot edit", method: http.MethodPost, path: bobPath, token: bobToken,
			body:     []byte(`{"action":"add_element","params":{"type":"text"}}`),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "viewers cannot edit this report"}),
		},
		{
			name: "viewer cannot undo", method: http.MethodPost, path: bobPath, token: bobToken,
			body:     []byte(`{"action":"undo"}`),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "viewers cannot edit this report"}),
		},
		{
			name: "viewer may zoom", method: http.MethodPost, path: bobPath, token: bobToken,
			body: []byte(`{"action":"zoom_in"}`),
		},
		{
			name: "other user session", method: http.MethodPost, path: path, token: bobToken,
			body:     []byte(`{"action":"zoom_in"}`),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "editing session not found"}),
		},
	})

	t.Run("action names", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/sessions/actions", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var names []string
		unmarshalBody(t, rec, &names)
		assert.Contains(t, names, "add_comment")
		assert.Contains(t, names, "move_element")
		assert.IsIncreasing(t, names)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `ripoti_session_commands_total{action="zoom_in",result="ok"} 1`)
		assert.Contains(t, body, `ripoti_session_commands_total{action="add_element",result="error"} 2`)
		assert.Contains(t, body, `ripoti_session_commands_total{action="unknown",result="error"} 1`)
		assert.Contains(t, body, `ripoti_session_commands_total{action="undo",result="error"} 1`)
		assert.NotContains(t, body, "explode")
		assert.Contains(t, body, "ripoti_open_sessions 2")
	})
}

func Test_sessionApi_data(t *testing.T) {
	f := setup(t)
	ana := testutil.CreateUser(t, f.usrRepo, "Ana", "ana", "ana@test.cd", "", []string{user.RoleAnalyst}, true)
	r := testutil.CreateReport(t, f.reports, "KPIs", report.TemplateKPIOverview, ana)
	token := getToken(t, f.conf, ana)
	sess := f.open(t, token, r.ID)
	path := "/v1/sessions/" + sess.SessionID
	scope := []byte(`{"scope":"organization","scope_id":"org-1","to":"2024-06-30T00:00:00Z"}`)

	var aiText report.Element
	for _, el := range sess.State.Report.Pages[0].Elements {
		if el.Type == report.TypeAIText {
			aiText = el
		}
	}
	require.NotEmpty(t, aiText.ID)

	t.Run("page data", func(t *testing.T) {
		rec := f.do(http.MethodPost, path+"/data", token, []byte(`{"scope":"planet","scope_id":"x"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

		rec = f.do(http.MethodPost, path+"/data", token, scope)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var data map[string][]report.Series
		unmarshalBody(t, rec, &data)
		assert.Len(t, data, 5) // 3 metric cards, a chart & the AI text context
		assert.Len(t, data[aiText.ID], 3)
		for _, series := range data {
			for _, s := range series {
				assert.Len(t, s.Points, 6, s.Key)
			}
		}
	})

	t.Run("generate", func(t *testing.T) {
		rec := f.do(http.MethodPost, path+"/elements/nope/generate", token, []byte(`{}`))
		assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

		rec = f.do(http.MethodPost, path+"/elements/"+aiText.ID+"/generate", token, []byte(`{"scope":`+string(scope)+`}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var el report.Element
		unmarshalBody(t, rec, &el)
		cfg, ok := el.Config.(report.AITextConfig)
		require.True(t, ok)
		assert.True(t, strings.HasPrefix(cfg.GeneratedContent, "Over the period, attendance.rate is "), cfg.GeneratedContent)
		assert.NotNil(t, cfg.GeneratedAt)
	})

	t.Run("publish", func(t *testing.T) {
		rec := f.do(http.MethodPost, path+"/publish", token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var published report.Report
		unmarshalBody(t, rec, &published)
		assert.Equal(t, report.StatusPublished, published.Status)
		assert.NotEmpty(t, published.PublicURL)

		stored, err := f.reports.GetPublished(context.Background(), published.PublicID)
		require.NoError(t, err)
		assert.Equal(t, r.ID, stored.ID)
	})
}
