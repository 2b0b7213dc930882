// Package directory is the GORM-backed user, team and asset registry.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yazid-hub/GMOA/internal/auth"
	"github.com/yazid-hub/GMOA/internal/gmaoerr"
	"github.com/yazid-hub/GMOA/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Users answers role and team membership questions.
type Users struct {
	db *gorm.DB
}

// NewUsers creates a user directory.
func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// CreateUserOpts holds parameters for registering a user.
type CreateUserOpts struct {
	ID    string `validate:"required,max=64"`
	Name  string `validate:"max=255"`
	Email string `validate:"omitempty,email"`
	Role  auth.Role
}

// CreateUser registers an active user. The role is mandatory.
func (u *Users) CreateUser(ctx context.Context, opts CreateUserOpts) (*models.User, error) {
	if err := gmaoerr.CheckStruct(opts); err != nil {
		return nil, err
	}
	if !opts.Role.Valid() {
		return nil, gmaoerr.Invalid("role", "unknown role %q", opts.Role)
	}
	user := models.User{
		ID:     opts.ID,
		Name:   opts.Name,
		Email:  strings.ToLower(opts.Email),
		Role:   string(opts.Role),
		Active: true,
	}
	if err := u.db.WithContext(ctx).Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &gmaoerr.ConflictError{Entity: "user", Key: opts.ID, Reason: "already exists"}
		}
		return nil, fmt.Errorf("directory: create user %s: %w", opts.ID, err)
	}
	return &user, nil
}

// GetUser retrieves a user by ID.
func (u *Users) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := u.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gmaoerr.NotFound("user", id)
		}
		return nil, fmt.Errorf("directory: get user %s: %w", id, err)
	}
	return &user, nil
}

// Actor resolves an active user into an authorization actor.
func (u *Users) Actor(ctx context.Context, id string) (auth.Actor, error) {
	user, err := u.GetUser(ctx, id)
	if err != nil {
		return auth.Actor{}, err
	}
	if !user.Active {
		return auth.Actor{}, &gmaoerr.PermissionDeniedError{ActorID: id, Action: "act", Reason: "account is inactive"}
	}
	role, err := auth.ParseRole(user.Role)
	if err != nil {
		return auth.Actor{}, fmt.Errorf("directory: user %s: %w", id, err)
	}
	return auth.Actor{ID: user.ID, Role: role}, nil
}

// ListUsers returns all users ordered by ID.
func (u *Users) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := u.db.WithContext(ctx).Order("id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("directory: list users: %w", err)
	}
	return users, nil
}

// SetRole changes the role of a user.
func (u *Users) SetRole(ctx context.Context, id string, role auth.Role) error {
	if !role.Valid() {
		return gmaoerr.Invalid("role", "unknown role %q", role)
	}
	return u.update(ctx, id, "role", string(role))
}

// SetActive enables or disables a user.
func (u *Users) SetActive(ctx context.Context, id string, active bool) error {
	return u.update(ctx, id, "active", active)
}

func (u *Users) update(ctx context.Context, id, column string, value any) error {
	res := u.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("directory: update user %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return gmaoerr.NotFound("user", id)
	}
	return nil
}

// CreateTeam registers a team.
func (u *Users) CreateTeam(ctx context.Context, id, name string) (*models.Team, error) {
	if strings.TrimSpace(id) == "" {
		return nil, gmaoerr.Invalid("id", "team id is required")
	}
	team := models.Team{ID: id, Name: name}
	if err := u.db.WithContext(ctx).Create(&team).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &gmaoerr.ConflictError{Entity: "team", Key: id, Reason: "already exists"}
		}
		return nil, fmt.Errorf("directory: create team %s: %w", id, err)
	}
	return &team, nil
}

// AddTeamMember adds a user to a team. Adding an existing member is a no-op.
func (u *Users) AddTeamMember(ctx context.Context, teamID, userID string) error {
	db := u.db.WithContext(ctx)
	var count int64
	if err := db.Model(&models.Team{}).Where("id = ?", teamID).Count(&count).Error; err != nil {
		return fmt.Errorf("directory: check team %s: %w", teamID, err)
	}
	if count == 0 {
		return gmaoerr.NotFound("team", teamID)
	}
	if _, err := u.GetUser(ctx, userID); err != nil {
		return err
	}
	m := models.TeamMember{TeamID: teamID, UserID: userID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		return fmt.Errorf("directory: add %s to team %s: %w", userID, teamID, err)
	}
	return nil
}

// RemoveTeamMember removes a user from a team.
func (u *Users) RemoveTeamMember(ctx context.Context, teamID, userID string) error {
	res := u.db.WithContext(ctx).Where("team_id = ? AND user_id = ?", teamID, userID).Delete(&models.TeamMember{})
	if res.Error != nil {
		return fmt.Errorf("directory: remove %s from team %s: %w", userID, teamID, res.Error)
	}
	if res.RowsAffected == 0 {
		return gmaoerr.NotFound("team member", teamID+"/"+userID)
	}
	return nil
}

// IsTeamMember reports whether userID belongs to teamID.
func (u *Users) IsTeamMember(ctx context.Context, teamID, userID string) (bool, error) {
	var count int64
	err := u.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ? AND user_id = ?", teamID, userID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("directory: team membership %s/%s: %w", teamID, userID, err)
	}
	return count > 0, nil
}

// TeamMembers returns the user IDs of a team.
func (u *Users) TeamMembers(ctx context.Context, teamID string) ([]string, error) {
	var ids []string
	err := u.db.WithContext(ctx).Model(&models.TeamMember{}).
		Where("team_id = ?", teamID).Order("user_id ASC").Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("directory: members of %s: %w", teamID, err)
	}
	return ids, nil
}

// UsersWithRole returns the active user IDs holding one of roles.
func (u *Users) UsersWithRole(ctx context.Context, roles ...auth.Role) ([]string, error) {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	var ids []string
	err := u.db.WithContext(ctx).Model(&models.User{}).
		Where("role IN ? AND active = ?", names, true).Order("id ASC").Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("directory: users with role: %w", err)
	}
	return ids, nil
}
