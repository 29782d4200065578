package report_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/comment"
	"github.com/trezcool/ripoti/core/report"
	inmemdb "github.com/trezcool/ripoti/storage/database/inmem"
)

var (
	owner  = report.Collaborator{UserID: "owner", Name: "Olive"}
	editor = report.Collaborator{UserID: "editor", Name: "Ed", Role: report.RoleEditor}
	viewer = report.Collaborator{UserID: "viewer", Name: "Vi", Role: report.RoleViewer}
)

func counterIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("id%d", n)
	}
}

func newService() report.Service {
	validate, _ := report.NewValidator()
	conf := core.NewTestConfig()
	conf.Editor.PublicBaseURL = "https://reports.test/"
	return report.NewService(inmemdb.NewReportRepository(inmemdb.Open()), validate, conf)
}

func TestElement_JSON(t *testing.T) {
	el, err := report.NewElement("el1", report.TypeChart, report.Position{X: 40, Y: 40})
	require.NoError(t, err)
	el.Locked = true

	data, err := json.Marshal(el)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"chart"`)
	assert.Contains(t, string(data), `"chart_type":"bar"`)

	var got report.Element
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, el, got)

	tests := []struct {
		name string
		data string
	}{
		{name: "unknown type", data: `{"id":"x","type":"video","config":{}}`},
		{name: "config of another type", data: `{"id":"x","type":"spacer","config":{"content":"hi"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var el report.Element
			assert.Error(t, json.Unmarshal([]byte(tt.data), &el))
		})
	}
}

func TestMergeConfig(t *testing.T) {
	base, err := report.DefaultConfig(report.TypeText)
	require.NoError(t, err)

	merged, err := report.MergeConfig(report.TypeText, base, []byte(`{"content":"Hello","font_size":24}`))
	require.NoError(t, err)
	cfg := merged.(report.TextConfig)
	assert.Equal(t, "Hello", cfg.Content)
	assert.Equal(t, 24, cfg.FontSize)
	assert.Equal(t, "left", cfg.Align) // kept
	assert.Equal(t, "New text", base.(report.TextConfig).Content)

	_, err = report.MergeConfig(report.TypeText, base, []byte(`{"bogus":1}`))
	assert.Error(t, err)
	_, err = report.MergeConfig(report.TypeChart, base, nil)
	assert.Error(t, err)

	style, err := report.MergeStyle(report.Style{Padding: 4}, []byte(`{"background":"#fff"}`))
	require.NoError(t, err)
	assert.Equal(t, report.Style{Padding: 4, Background: "#fff"}, style)
}

func TestElement_MetricKeys(t *testing.T) {
	tests := []struct {
		name string
		cfg  report.Config
		want []string
	}{
		{name: "chart", cfg: report.ChartConfig{MetricKeys: []string{"a.b", "c"}}, want: []string{"a.b", "c"}},
		{name: "table", cfg: report.TableConfig{Columns: []report.TableColumn{{Key: "x"}, {Key: "y"}}}, want: []string{"x", "y"}},
		{name: "metric card", cfg: report.MetricCardConfig{MetricKey: "m"}, want: []string{"m"}},
		{name: "empty metric card", cfg: report.MetricCardConfig{}},
		{name: "text", cfg: report.TextConfig{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := report.Element{Type: tt.cfg.ElementType(), Config: tt.cfg}
			if tt.want == nil {
				assert.Empty(t, el.MetricKeys())
				return
			}
			assert.Equal(t, tt.want, el.MetricKeys())
		})
	}
}

func TestBuildPages(t *testing.T) {
	tests := []struct {
		template  string
		wantPages int
		wantErr   bool
	}{
		{template: "", wantPages: 1},
		{template: report.TemplateBlank, wantPages: 1},
		{template: report.TemplateKPIOverview, wantPages: 1},
		{template: report.TemplateMonthlySummary, wantPages: 2},
		{template: "fancy", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.template, func(t *testing.T) {
			pages, err := report.BuildPages(tt.template, counterIDs())
			if tt.wantErr {
				assert.ErrorIs(t, err, report.ErrUnknownTemplate)
				return
			}
			require.NoError(t, err)
			assert.Len(t, pages, tt.wantPages)

			ids := make(map[string]bool)
			for _, p := range pages {
				assert.Equal(t, report.DefaultPageSettings(), p.Settings)
				ids[p.ID] = true
				for _, el := range p.Elements {
					require.NotNil(t, el.Config)
					assert.Equal(t, el.Type, el.Config.ElementType())
					ids[el.ID] = true
				}
			}
			assert.NotContains(t, ids, "")
		})
	}

	// every build has its own configs
	a, _ := report.BuildPages(report.TemplateKPIOverview, counterIDs())
	b, _ := report.BuildPages(report.TemplateKPIOverview, counterIDs())
	chart := a[0].Elements[4].Config.(report.ChartConfig)
	chart.MetricKeys[0] = "changed"
	assert.Equal(t, "attendance.rate", b[0].Elements[4].Config.(report.ChartConfig).MetricKeys[0])
}

func TestNewPageSettings(t *testing.T) {
	tests := []struct {
		name        string
		size        report.PageSize
		orientation report.Orientation
		w, h        int
		want        report.PageSettings
		wantErr     bool
	}{
		{name: "a4", size: report.PageSizeA4, want: report.PageSettings{Width: 794, Height: 1123, Size: report.PageSizeA4, Orientation: report.Portrait}},
		{name: "letter landscape", size: report.PageSizeLetter, orientation: report.Landscape,
			want: report.PageSettings{Width: 1056, Height: 816, Size: report.PageSizeLetter, Orientation: report.Landscape}},
		{name: "custom", size: report.PageSizeCustom, orientation: report.Portrait, w: 500, h: 300,
			want: report.PageSettings{Width: 500, Height: 300, Size: report.PageSizeCustom, Orientation: report.Portrait}},
		{name: "unknown size", size: "a3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := report.NewPageSettings(tt.size, tt.orientation, tt.w, tt.h)
			if tt.wantErr {
				assert.True(t, core.IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPublicLink(t *testing.T) {
	url, embed := report.PublicLink("https://reports.test/", "abc")
	assert.Equal(t, "https://reports.test/r/abc", url)
	assert.Equal(t, `<iframe src="https://reports.test/r/abc" width="100%" height="800" frameborder="0" allowfullscreen></iframe>`, embed)
}

func TestService_Create(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	tests := []struct {
		name    string
		nr      report.NewReport
		wantErr bool
	}{
		{name: "blank", nr: report.NewReport{Name: " Q1 "}},
		{name: "from template", nr: report.NewReport{Name: "KPIs", Template: report.TemplateKPIOverview, DataMode: report.DataModeSnapshot}},
		{name: "blank name", nr: report.NewReport{Name: "   "}, wantErr: true},
		{name: "unknown template", nr: report.NewReport{Name: "x", Template: "fancy"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := svc.Create(ctx, tt.nr, owner)
			if tt.wantErr {
				assert.True(t, core.IsValidation(err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, report.StatusDraft, r.Status)
			assert.Equal(t, report.RoleOwner, r.RoleOf(owner.UserID))
			assert.Equal(t, owner.UserID, r.CreatedBy)
			assert.NotEmpty(t, r.Pages)
			assert.NotEmpty(t, r.DataMode)
			assert.Equal(t, 1.0, r.Zoom)

			got, err := svc.Get(ctx, r.ID, owner.UserID)
			require.NoError(t, err)
			assert.Equal(t, r.Name, got.Name)
		})
	}
}

func TestService_Access(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	r, err := svc.Create(ctx, report.NewReport{Name: "Q1", OrganizationID: "org1"}, owner)
	require.NoError(t, err)

	_, err = svc.Get(ctx, r.ID, "stranger")
	assert.True(t, core.IsNotFound(err))

	_, err = svc.InviteCollaborator(ctx, r.ID, owner.UserID, editor)
	require.NoError(t, err)
	collabs, err := svc.InviteCollaborator(ctx, r.ID, owner.UserID, viewer)
	require.NoError(t, err)
	assert.Len(t, collabs, 3)

	_, err = svc.InviteCollaborator(ctx, r.ID, owner.UserID, viewer)
	assert.True(t, core.IsValidation(err))
	_, err = svc.InviteCollaborator(ctx, r.ID, editor.UserID, report.Collaborator{UserID: "x", Role: report.RoleViewer})
	assert.ErrorIs(t, err, report.ErrOwnerOnly)

	r.Name = "Q1 draft"
	_, err = svc.Save(ctx, r, viewer.UserID)
	assert.ErrorIs(t, err, report.ErrEditDenied)
	saved, err := svc.Save(ctx, r, editor.UserID)
	require.NoError(t, err)
	assert.Equal(t, "Q1 draft", saved.Name)

	c := comment.Comment{ID: "c1", Author: comment.User{ID: viewer.UserID}, Content: "nice", Anchor: comment.PointAnchor(r.Pages[0].ID, 1, 1)}
	saved, err = svc.SaveComments(ctx, r.ID, []comment.Comment{c}, viewer.UserID)
	require.NoError(t, err)
	assert.Len(t, saved.Comments, 1)
	_, err = svc.SaveComments(ctx, r.ID, nil, "stranger")
	assert.ErrorIs(t, err, report.ErrCommentDenied)

	list, err := svc.Query(ctx, &report.QueryFilter{CollaboratorID: viewer.UserID}, nil)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	list, err = svc.Query(ctx, &report.QueryFilter{OrganizationID: "org2"}, nil)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, svc.Delete(ctx, r.ID, editor.UserID), report.ErrOwnerOnly)
	assert.True(t, core.IsNotFound(svc.Delete(ctx, r.ID, "stranger")))
	require.NoError(t, svc.Delete(ctx, r.ID, owner.UserID))
	_, err = svc.Get(ctx, r.ID, owner.UserID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_SaveElementIDs(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	r, err := svc.Create(ctx, report.NewReport{Name: "Monthly", Template: report.TemplateMonthlySummary}, owner)
	require.NoError(t, err)
	require.Len(t, r.Pages, 2)
	require.NotEmpty(t, r.Pages[0].Elements)

	tests := []struct {
		name   string
		mutate func(r *report.Report)
	}{
		{name: "duplicate across pages", mutate: func(r *report.Report) {
			r.Pages[1].Elements = append(r.Pages[1].Elements, r.Pages[0].Elements[0].Clone())
		}},
		{name: "duplicate on a page", mutate: func(r *report.Report) {
			r.Pages[0].Elements = append(r.Pages[0].Elements, r.Pages[0].Elements[0].Clone())
		}},
		{name: "missing id", mutate: func(r *report.Report) {
			r.Pages[0].Elements[0].ID = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := r.Clone()
			tt.mutate(&doc)
			_, err := svc.Save(ctx, doc, owner.UserID)
			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			require.Len(t, vErr.Fields, 1)
			assert.Equal(t, "elements", vErr.Fields[0].Field)
		})
	}

	_, err = svc.Save(ctx, r, owner.UserID)
	assert.NoError(t, err)
}

func TestService_Collaborators(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	r, err := svc.Create(ctx, report.NewReport{Name: "Q1"}, owner)
	require.NoError(t, err)
	_, err = svc.InviteCollaborator(ctx, r.ID, owner.UserID, editor)
	require.NoError(t, err)

	// the last owner stays
	_, err = svc.RemoveCollaborator(ctx, r.ID, owner.UserID, owner.UserID)
	assert.True(t, core.IsValidation(err))
	_, err = svc.ChangeCollaboratorRole(ctx, r.ID, owner.UserID, owner.UserID, report.RoleViewer)
	assert.True(t, core.IsValidation(err))

	_, err = svc.ChangeCollaboratorRole(ctx, r.ID, owner.UserID, editor.UserID, "boss")
	assert.True(t, core.IsValidation(err))
	collabs, err := svc.ChangeCollaboratorRole(ctx, r.ID, owner.UserID, editor.UserID, report.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, report.RoleOwner, collabs[1].Role)

	// now the first owner can step down
	_, err = svc.ChangeCollaboratorRole(ctx, r.ID, editor.UserID, owner.UserID, report.RoleViewer)
	require.NoError(t, err)

	// anyone may leave
	collabs, err = svc.RemoveCollaborator(ctx, r.ID, owner.UserID, owner.UserID)
	require.NoError(t, err)
	require.Len(t, collabs, 1)
	assert.Equal(t, editor.UserID, collabs[0].UserID)

	_, err = svc.RemoveCollaborator(ctx, r.ID, editor.UserID, "nobody")
	assert.ErrorIs(t, err, report.ErrNotCollaborator)
}

func TestService_Publish(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	r, err := svc.Create(ctx, report.NewReport{Name: "Q1"}, owner)
	require.NoError(t, err)

	_, err = svc.GetPublished(ctx, "nope")
	assert.True(t, core.IsNotFound(err))

	pub, err := svc.Publish(ctx, r.ID, owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, report.StatusPublished, pub.Status)
	assert.Len(t, pub.PublicID, 12)
	assert.Equal(t, "https://reports.test/r/"+pub.PublicID, pub.PublicURL)
	assert.Contains(t, pub.EmbedCode, pub.PublicURL)
	assert.False(t, pub.PublishedAt.IsZero())

	again, err := svc.Publish(ctx, r.ID, owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, pub.PublicID, again.PublicID)
	assert.Equal(t, pub.PublishedAt, again.PublishedAt)

	got, err := svc.GetPublished(ctx, pub.PublicID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
}

func TestSeries_Latest(t *testing.T) {
	_, ok := report.Series{}.Latest()
	assert.False(t, ok)
	v, ok := report.Series{Points: []report.Point{{Value: 1}, {Value: 3}}}.Latest()
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)
}

func TestService_DetachUsers(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	shared, err := svc.Create(ctx, report.NewReport{Name: "Shared"}, owner)
	require.NoError(t, err)
	_, err = svc.InviteCollaborator(ctx, shared.ID, owner.UserID, editor)
	require.NoError(t, err)
	solo, err := svc.Create(ctx, report.NewReport{Name: "Solo"}, editor)
	require.NoError(t, err)

	err = svc.DetachUsers(ctx, editor.UserID)
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, report.ErrLastOwner)
	assert.Equal(t, `a report must keep at least one owner of "Solo"`, vErr.Fields[0].Error)
	got, err := svc.Get(ctx, shared.ID, owner.UserID)
	require.NoError(t, err)
	assert.Len(t, got.Collaborators, 2, "nothing detached")

	require.NoError(t, svc.Delete(ctx, solo.ID, editor.UserID))
	require.NoError(t, svc.DetachUsers(ctx, editor.UserID, "stranger"))
	got, err = svc.Get(ctx, shared.ID, owner.UserID)
	require.NoError(t, err)
	assert.Equal(t, []report.Collaborator{{UserID: owner.UserID, Name: owner.Name, Role: report.RoleOwner}}, got.Collaborators)

	require.NoError(t, svc.DetachUsers(ctx))
}

func TestService_SyncCollaborator(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	r, err := svc.Create(ctx, report.NewReport{Name: "Q1"}, owner)
	require.NoError(t, err)
	_, err = svc.InviteCollaborator(ctx, r.ID, owner.UserID, editor)
	require.NoError(t, err)

	renamed := editor
	renamed.Name, renamed.AvatarURL = "Edwin", "https://cdn.test/ed.png"
	require.NoError(t, svc.SyncCollaborator(ctx, renamed))

	got, err := svc.Get(ctx, r.ID, owner.UserID)
	require.NoError(t, err)
	c, ok := got.Collaborator(editor.UserID)
	require.True(t, ok)
	assert.Equal(t, "Edwin", c.Name)
	assert.Equal(t, "https://cdn.test/ed.png", c.AvatarURL)
	assert.Equal(t, report.RoleEditor, c.Role)
	o, _ := got.Collaborator(owner.UserID)
	assert.Equal(t, owner.Name, o.Name)
}
