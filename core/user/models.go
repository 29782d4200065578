package user

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/comment"
	"github.com/trezcool/ripoti/core/report"
)

// Roles are namespaced: every role starting with "admin:" makes an admin.
const (
	RoleAdmin      = "admin:"
	RoleAdminOwner = "admin:owner"

	// builds reports
	RoleAnalyst = "analyst:"
)

// Roles lists the assignable roles, lowest priority first.
var Roles = []Role{
	{Name: "Analyst", Value: RoleAnalyst, priority: 11},
	{Name: "Admin", Value: RoleAdmin, priority: 21},
	{Name: "Admin Owner", Value: RoleAdminOwner, priority: 30},
}

var AllRoles = func() []string {
	all := make([]string, 0, len(Roles))
	for i := len(Roles) - 1; i >= 0; i-- {
		all = append(all, Roles[i].Value)
	}
	return all
}()

type Role struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	priority int
}

func RolePriority(role string) int {
	for _, r := range Roles {
		if r.Value == role {
			return r.priority
		}
	}
	return 0
}

// MaxRolePriority returns the highest priority in roles; 0 when none is known.
func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if p := RolePriority(role); p > max {
			max = p
		}
	}
	return max
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	AvatarURL    string    `json:"avatar_url"`
	IsActive     bool      `json:"is_active"`
	Roles        []string  `json:"roles"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool   { return u.RoleStartsWith(RoleAdmin) }
func (u *User) IsAnalyst() bool { return u.RoleStartsWith(RoleAnalyst) }

// CanBuildReports reports whether u may create reports.
func (u *User) CanBuildReports() bool { return u.IsAnalyst() || u.IsAdmin() }

func (u User) MailAddress() mail.Address {
	return mail.Address{Name: u.Name, Address: u.Email}
}

// Collaborator returns u as a collaborator of a report.
func (u User) Collaborator(role report.Role) report.Collaborator {
	return report.Collaborator{UserID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL, Role: role}
}

// Mentionable returns u as a mention / invitation candidate.
func (u User) Mentionable() comment.User {
	return comment.User{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string   `json:"name" validate:"required"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	AvatarURL       string   `json:"avatar_url" validate:"omitempty,url"`
	Password        string   `json:"password" validate:"required"`
	PasswordConfirm string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.AvatarURL = core.CleanString(nu.AvatarURL)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Blank identity fields keep their current value.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	AvatarURL       *string  `json:"avatar_url" validate:"omitempty,url"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	uu.Name = orDefault(core.CleanString(uu.Name), origUsr.Name)
	uu.Username = orDefault(core.CleanString(uu.Username, true /* lower */), origUsr.Username)
	uu.Email = orDefault(core.CleanString(uu.Email, true /* lower */), origUsr.Email)
	if uu.AvatarURL != nil {
		avatar := core.CleanString(*uu.AvatarURL)
		uu.AvatarURL = &avatar
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

// ChangesProfile reports whether applying uu changes what collaborators see of usr.
func (uu UpdateUser) ChangesProfile(usr User) bool {
	return uu.Name != usr.Name || (uu.AvatarURL != nil && *uu.AvatarURL != usr.AvatarURL)
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

// ActiveMatching returns the filter used to look up active users by name, username or email.
func ActiveMatching(search string) *QueryFilter {
	active := true
	qf := &QueryFilter{Search: search, IsActive: &active}
	qf.Clean()
	return qf
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
