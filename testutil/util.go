// Package testutil holds the fixtures shared by the packages tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/ripoti/core/report"
	"github.com/trezcool/ripoti/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// Collaborator returns usr as a report collaborator with role.
func Collaborator(usr user.User, role report.Role) report.Collaborator {
	return report.Collaborator{UserID: usr.ID, Name: usr.Name, AvatarURL: usr.AvatarURL, Role: role}
}

// CreateReport creates a report owned by owner through svc, then invites the others.
func CreateReport(
	t *testing.T,
	svc report.Service,
	name string,
	template string,
	owner user.User,
	others ...report.Collaborator,
) report.Report {
	t.Helper()
	ctx := context.Background()
	r, err := svc.Create(ctx, report.NewReport{Name: name, OrganizationID: "org-1", Template: template}, Collaborator(owner, report.RoleOwner))
	if err != nil {
		t.Fatalf("CreateReport() failed: %v", err)
	}
	for _, c := range others {
		if _, err := svc.InviteCollaborator(ctx, r.ID, owner.ID, c); err != nil {
			t.Fatalf("CreateReport() failed to invite %s: %v", c.UserID, err)
		}
	}
	if r, err = svc.Get(ctx, r.ID, owner.ID); err != nil {
		t.Fatalf("CreateReport() failed: %v", err)
	}
	return r
}
