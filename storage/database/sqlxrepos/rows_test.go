package sqlxrepos

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/comment"
	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/user"
)

var at = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func TestUserRow(t *testing.T) {
	tests := []struct {
		name string
		usr  user.User
	}{
		{
			name: "complete",
			usr: user.User{
				ID: "u1", Name: "Ana", Username: "ana", Email: "ana@test.com", IsActive: true,
				Roles: []string{user.RoleAdminOwner}, PasswordHash: []byte("hash"),
				CreatedAt: at, UpdatedAt: at, LastLogin: at,
			},
		},
		{
			name: "no username nor login",
			usr:  user.User{ID: "u2", Name: "Bob", Email: "bob@test.com", Roles: []string{}, CreatedAt: at, UpdatedAt: at},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := toUserRow(tt.usr)
			assert.Equal(t, tt.usr.Username != "", row.Username.Valid)
			assert.Equal(t, !tt.usr.LastLogin.IsZero(), row.LastLogin.Valid)
			assert.Equal(t, tt.usr, row.user())
		})
	}

	assert.NotNil(t, toUserRow(user.User{}).Roles, "roles column is not nullable")
}

func TestReportRow(t *testing.T) {
	chart, err := report.NewElement("e1", report.TypeChart, report.Position{X: 40, Y: 80})
	require.NoError(t, err)

	board := comment.NewBoard(nil, func() string { return "c1" }, func() time.Time { return at })
	_, err = board.Add(comment.User{ID: "u1", Name: "Ana"}, "look", comment.ElementAnchor("e1"))
	require.NoError(t, err)

	r := report.Report{
		ID:             "r1",
		Name:           "KPIs",
		Status:         report.StatusPublished,
		OrganizationID: "org1",
		DataMode:       report.DataModeLive,
		Branding:       report.Branding{PrimaryColor: "#3366ff"},
		Zoom:           1.25,
		ShowGrid:       true,
		Pages:          []report.Page{{ID: "p1", Settings: report.DefaultPageSettings(), Elements: []report.Element{chart}}},
		Collaborators:  []report.Collaborator{{UserID: "u1", Name: "Ana", Role: report.RoleOwner}},
		Comments:       board.All(),
		PublicID:       "abc123def456",
		PublishedAt:    at,
		CreatedBy:      "u1",
		CreatedAt:      at,
		UpdatedAt:      at,
	}

	row, err := toReportRow(r)
	require.NoError(t, err)
	assert.True(t, row.PublicID.Valid)
	got, err := row.report()
	require.NoError(t, err)
	assert.Equal(t, r, got)

	draft, err := toReportRow(report.Report{ID: "r2", Status: report.StatusDraft})
	require.NoError(t, err)
	assert.False(t, draft.PublicID.Valid)
	assert.False(t, draft.PublishedAt.Valid)
	assert.Equal(t, "[]", draft.Collaborators.String())
	assert.Equal(t, "[]", draft.Comments.String())

	row.Document = []byte("{")
	_, err = row.report()
	assert.Error(t, err)
}

func TestClauses(t *testing.T) {
	assert.Equal(t, "", whereClause(nil))
	assert.Equal(t, " WHERE a = ? AND b = ?", whereClause([]string{"a = ?", "b = ?"}))

	tests := []struct {
		name     string
		ordering []core.DBOrdering
		want     string
	}{
		{name: "default", want: " ORDER BY created_at ASC"},
		{name: "not allowed", ordering: []core.DBOrdering{{Field: "password"}}, want: " ORDER BY created_at ASC"},
		{
			name:     "allowed",
			ordering: []core.DBOrdering{{Field: "name", Ascending: true}, {Field: "updated_at"}},
			want:     " ORDER BY name ASC, updated_at DESC",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, orderByClause(tt.ordering, reportOrderings...))
		})
	}
}
