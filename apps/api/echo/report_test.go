package echoapi_test

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	echoapi "github.com/trezcool/ripoti/apps/api/echo"
	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/user"
	exportsvc "github.com/trezcool/ripoti/services/export"
	"github.com/trezcool/ripoti/testutil"
)

func Test_reportApi_create(t *testing.T) {
	f := setup(t)
	ana := testutil.CreateUser(t, f.usrRepo, "Ana", "ana", "ana@test.cd", "", []string{user.RoleAnalyst}, true)
	bob := testutil.CreateUser(t, f.usrRepo, "Bob", "bob", "bob@test.cd", "", nil, true)
	token := getToken(t, f.conf, ana)

	f.run(t, []httpTest{
		{name: "auth required", method: http.MethodPost, path: "/v1/reports", body: []byte(`{"name":"x"}`), wantCode: http.StatusUnauthorized, wantData: marshalObj(t, errMissingToken)},
		{
			name: "not a builder", method: http.MethodPost, path: "/v1/reports", token: getToken(t, f.conf, bob),
			body: []byte(`{"name":"Q1"}`), wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown template", method: http.MethodPost, path: "/v1/reports", token: token,
			body:     []byte(`{"name":"Q1","template":"nope"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "blank name", method: http.MethodPost, path: "/v1/reports", token: token,
			body: []byte(`{"name":"   "}`), wantCode: http.StatusBadRequest,
		},
	})

	rec := f.do(http.MethodPost, "/v1/reports", token, []byte(`{"name":" Q1 figures ","template":"kpi_overview"}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var r report.Report
	unmarshalBody(t, rec, &r)
	assert.Equal(t, "Q1 figures", r.Name)
	assert.Equal(t, report.StatusDraft, r.Status)
	assert.Equal(t, report.DataModeLive, r.DataMode)
	assert.Equal(t, []report.Collaborator{testutil.Collaborator(ana, report.RoleOwner)}, r.Collaborators)
	require.Len(t, r.Pages, 1)
	assert.Len(t, r.Pages[0].Elements, 6)
}

func Test_reportApi_access(t *testing.T) {
	f := setup(t)
	ana := testutil.CreateUser(t, f.usrRepo, "Ana", "ana", "ana@test.cd", "", []string{user.RoleAnalyst}, true)
	bob := testutil.CreateUser(t, f.usrRepo, "Bob", "bob", "bob@test.cd", "", nil, true)
	eve := testutil.CreateUser(t, f.usrRepo, "Eve", "eve", "eve@test.cd", "", nil, true)
	r := testutil.CreateReport(t, f.reports, "Monthly figures", report.TemplateMonthlySummary, ana, testutil.Collaborator(bob, report.RoleViewer))
	anaToken, bobToken, eveToken := getToken(t, f.conf, ana), getToken(t, f.conf, bob), getToken(t, f.conf, eve)
	notFound := marshalObj(t, httpErr{Error: "report not found"})

	f.run(t, []httpTest{
		{name: "retrieve (owner)", path: "/v1/reports/" + r.ID, token: anaToken, wantData: marshalObj(t, r)},
		{name: "retrieve (viewer)", path: "/v1/reports/" + r.ID, token: bobToken, wantData: marshalObj(t, r)},
		{name: "retrieve (stranger)", path: "/v1/reports/" + r.ID, token: eveToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "retrieve (unknown)", path: "/v1/reports/nope", token: anaToken, wantCode: http.StatusNotFound, wantData: notFound},
		{name: "query (stranger)", path: "/v1/reports", token: eveToken, wantData: []byte(`[]`)},
		{
			name: "mentionable", path: "/v1/reports/" + r.ID + "/mentionable?q=BO", token: anaToken,
			wantData: []byte(`[{"id":"` + bob.ID + `","name":"Bob","avatar_url":""}]`),
		},
		{
			name: "delete (viewer)", method: http.MethodDelete, path: "/v1/reports/" + r.ID, token: bobToken,
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "only owners can manage this report"}),
		},
		{name: "delete (stranger)", method: http.MethodDelete, path: "/v1/reports/" + r.ID, token: eveToken, wantCode: http.StatusNotFound, wantData: notFound},
	})

	t.Run("query", func(t *testing.T) {
		rec := f.do(http.MethodGet, "/v1/reports", bobToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var got []echoapi.ReportSummary
		unmarshalBody(t, rec, &got)
		require.Len(t, got, 1)
		assert.Equal(t, r.ID, got[0].ID)
		assert.Equal(t, report.RoleViewer, got[0].Role)
		assert.Equal(t, 2, got[0].PageCount)
	})

	t.Run("delete", func(t *testing.T) {
		rec := f.do(http.MethodDelete, "/v1/reports/"+r.ID, anaToken)
		assert.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
		rec = f.do(http.MethodGet, "/v1/reports/"+r.ID, anaToken)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_reportApi_collaborators(t *testing.T) {
	f := setup(t)
	ana := testutil.CreateUser(t, f.usrRepo, "Ana", "ana", "ana@test.cd", "", []string{user.RoleAnalyst}, true)
	bob := testutil.CreateUser(t, f.usrRepo, "Bob", "bob", "bob@test.cd", "", nil, true)
	gone := testutil.CreateUser(t, f.usrRepo, "Gone", "gone", "gone@test.cd", "", nil, false)
	r := testutil.CreateReport(t, f.reports, "Q1", report.TemplateBlank, ana)
	anaToken, bobToken := getToken(t, f.conf, ana), getToken(t, f.conf, bob)
	path := "/v1/reports/" + r.ID + "/collaborators"

	owner := testutil.Collaborator(ana, report.RoleOwner)
	bobViewer := testutil.Collaborator(bob, report.RoleViewer)
	bobEditor := testutil.Collaborator(bob, report.RoleEditor)
	invite := func(userID, role string) []byte {
		return marshalObj(t, echoapi.InviteRequest{UserID: userID, Role: report.Role(role)})
	}

	f.run(t, []httpTest{
		{
			name: "invite (unknown user)", method: http.MethodPost, path: path, token: anaToken, body: invite("nope", "viewer"),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"user_id":"user not found"}`),
		},
		{
			name: "invite (inactive user)", method: http.MethodPost, path: path, token: anaToken, body: invite(gone.ID, "viewer"),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"user_id":"user not found"}`),
		},
		{name: "invite (bad role)", method: http.MethodPost, path: path, token: anaToken, body: invite(bob.ID, "boss"), wantCode: http.StatusBadRequest},
		{
			name: "invite", method: http.MethodPost, path: path, token: anaToken, body: invite(bob.ID, " Viewer "),
			wantCode: http.StatusCreated, wantData: marshalObj(t, []report.Collaborator{owner, bobViewer}),
		},
		{
			name: "invite (twice)", method: http.MethodPost, path: path, token: anaToken, body: invite(bob.ID, "editor"),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"user_id":"this user is already a collaborator"}`),
		},
		{
			name: "invite (not owner)", method: http.MethodPost, path: path, token: bobToken, body: invite(ana.ID, "viewer"),
			wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "only owners can manage this report"}),
		},
		{name: "list", path: path, token: bobToken, wantData: marshalObj(t, []report.Collaborator{owner, bobViewer})},
		{
			name: "change role", method: http.MethodPut, path: path + "/" + bob.ID, token: anaToken, body: []byte(`{"role":"editor"}`),
			wantData: marshalObj(t, []report.Collaborator{owner, bobEditor}),
		},
		{
			name: "demote last owner", method: http.MethodPut, path: path + "/" + ana.ID, token: anaToken, body: []byte(`{"role":"viewer"}`),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"role":"a report must keep at least one owner"}`),
		},
		{
			name: "remove last owner", method: http.MethodDelete, path: path + "/" + ana.ID, token: anaToken,
			wantCode: http.StatusBadRequest, wantData: []byte(`{"user_id":"a report must keep at least one owner"}`),
		},
		{
			name: "remove (unknown)", method: http.MethodDelete, path: path + "/nope", token: anaToken,
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "collaborator not found"}),
		},
		{
			name: "leave", method: http.MethodDelete, path: path + "/" + bob.ID, token: bobToken,
			wantData: marshalObj(t, []report.Collaborator{owner}),
		},
	})
}

func Test_reportApi_publish(t *testing.T) {
	f := setup(t)
	ana := testutil.CreateUser(t, f.usrRepo, "Ana", "ana", "ana@test.cd", "", []string{user.RoleAnalyst}, true)
	bob := testutil.CreateUser(t, f.usrRepo, "Bob", "bob", "bob@test.cd", "", nil, true)
	r := testutil.CreateReport(t, f.reports, "Q1", report.TemplateKPIOverview, ana, testutil.Collaborator(bob, report.RoleViewer))

	rec := f.do(http.MethodPost, "/v1/reports/"+r.ID+"/publish", getToken(t, f.conf, bob))
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/public/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, rec.Body.String())

	rec = f.do(http.MethodPost, "/v1/reports/"+r.ID+"/publish", getToken(t, f.conf, ana))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var published report.Report
	unmarshalBody(t, rec, &published)
	assert.Equal(t, report.StatusPublished, published.Status)
	require.NotEmpty(t, published.PublicID)
	assert.Equal(t, "http://localhost:3000/r/"+published.PublicID, published.PublicURL)
	assert.Contains(t, published.EmbedCode, published.PublicURL)

	rec = f.do(http.MethodGet, "/public/"+published.PublicID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var public echoapi.PublicReport
	unmarshalBody(t, rec, &public)
	assert.Equal(t, "Q1", public.Name)
	assert.Equal(t, published.PublicID, public.PublicID)
	require.Len(t, public.Pages, 1)
	assert.Len(t, public.Pages[0].Elements, 6)
	assert.NotContains(t, rec.Body.String(), "collaborators")
}

func Test_reportApi_export(t *testing.T) {
	f := setup(t)
	ana := testutil.CreateUser(t, f.usrRepo, "Ana", "ana", "ana@test.cd", "", []string{user.RoleAnalyst}, true)
	r := testutil.CreateReport(t, f.reports, "Monthly figures", report.TemplateMonthlySummary, ana)
	token := getToken(t, f.conf, ana)
	path := "/v1/reports/" + r.ID + "/export"

	f.run(t, []httpTest{
		{name: "scope required", path: path, token: token, wantCode: http.StatusBadRequest},
		{
			name: "bad date", path: path + "?scope=organization&scope_id=org-1&from=yesterday", token: token,
			wantCode: http.StatusBadRequest,
		},
	})

	rec := f.do(http.MethodGet, path+"?scope=organization&scope_id=org-1&to=2024-06-30", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, exportsvc.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="monthly-figures.xlsx"`, rec.Header().Get("Content-Disposition"))

	wb, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{exportsvc.SheetName(0), exportsvc.SheetName(1)}, wb.GetSheetList())
	rows, err := wb.GetRows(exportsvc.SheetName(0))
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, "Monthly figures", rows[0][0])
}

func Test_reportApi_emailExport(t *testing.T) {
	f := setup(t)
	ana := testutil.CreateUser(t, f.usrRepo, "Ana", "ana", "ana@test.cd", "", []string{user.RoleAnalyst}, true)
	noMail := testutil.CreateUser(t, f.usrRepo, "Nomad", "nomad", "", "", nil, true)
	eve := testutil.CreateUser(t, f.usrRepo, "Eve", "eve", "eve@test.cd", "", nil, true)
	r := testutil.CreateReport(t, f.reports, "Monthly figures", report.TemplateMonthlySummary, ana, testutil.Collaborator(noMail, report.RoleViewer))
	path := "/v1/reports/" + r.ID + "/export/email"
	scope := "?scope=organization&scope_id=org-1"

	f.run(t, []httpTest{
		{name: "scope required", method: http.MethodPost, path: path, token: getToken(t, f.conf, ana), wantCode: http.StatusBadRequest},
		{
			name: "not a collaborator", method: http.MethodPost, path: path + scope, token: getToken(t, f.conf, eve),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, httpErr{Error: "report not found"}),
		},
		{
			name: "no email address", method: http.MethodPost, path: path + scope, token: getToken(t, f.conf, noMail),
			wantCode: http.StatusBadRequest, wantData: []byte(`{"email":"your account has no email address"}`),
		},
	})
	require.Empty(t, f.mail.Sent())

	rec := f.do(http.MethodPost, path+scope, getToken(t, f.conf, ana))
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success":"The export will be sent to ana@test.cd."}`, rec.Body.String())

	sent := f.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, ana.MailAddress(), sent[0].To[0])
	assert.Equal(t, "Export of Monthly figures", sent[0].Subject)
	assert.Contains(t, sent[0].TextContent, `Please find attached the data export of "Monthly figures".`)
	assert.NotEmpty(t, sent[0].HTMLContent)
	require.Len(t, sent[0].Attachments, 1)
	at := sent[0].Attachments[0]
	assert.Equal(t, "monthly-figures.xlsx", at.Filename)
	assert.Equal(t, exportsvc.ContentTypeXLSX, at.ContentType)

	content, err := base64.StdEncoding.DecodeString(at.Content.String())
	require.NoError(t, err)
	wb, err := excelize.OpenReader(bytes.NewReader(content))
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{exportsvc.SheetName(0), exportsvc.SheetName(1)}, wb.GetSheetList())
}
