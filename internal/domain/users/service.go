package users

import (
	"context"
	"errors"
	"strings"

	"costume-rental/internal/apperr"
	"costume-rental/internal/infra/security"
	"costume-rental/internal/infra/validation"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type CreateInput struct {
	Email    string  `json:"email" validate:"required,email,max=255"`
	Username string  `json:"username" validate:"required,min=3,max=50,username"`
	FullName *string `json:"full_name" validate:"omitempty,max=100"`
	Password string  `json:"password" validate:"required"`
	Role     *Role   `json:"role"`
}

type UpdateInput struct {
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Username *string `json:"username" validate:"omitempty,min=3,max=50,username"`
	FullName *string `json:"full_name" validate:"omitempty,max=100"`
	Password *string `json:"password"`
	IsActive *bool   `json:"is_active"`
}

type AdminUpdateInput struct {
	UpdateInput
	Role       *Role `json:"role"`
	IsVerified *bool `json:"is_verified"`
}

type Service struct {
	db       *gorm.DB
	validate *validation.Validator
	log      *logrus.Logger
}

func NewService(db *gorm.DB, validate *validation.Validator, log *logrus.Logger) *Service {
	return &Service{db: db, validate: validate, log: log}
}

// Register creates a regular user. Any role in the input is ignored.
func (s *Service) Register(ctx context.Context, in CreateInput) (*User, error) {
	in.Role = nil
	return s.create(ctx, in)
}

// CreateByAdmin creates a user with an explicit role; admins cannot create super admins.
func (s *Service) CreateByAdmin(ctx context.Context, actor *User, in CreateInput) (*User, error) {
	if in.Role != nil && !CanAssign(actor.Role, *in.Role) {
		return nil, apperr.ErrCannotManage.With("Cannot create %s", in.Role)
	}
	return s.create(ctx, in)
}

func (s *Service) create(ctx context.Context, in CreateInput) (*User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	if err := security.CheckPasswordStrength(in.Password); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	if err := s.ensureUnique(db, 0, &in.Email, &in.Username); err != nil {
		return nil, err
	}

	hashed, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := User{
		Email:          in.Email,
		Username:       in.Username,
		FullName:       blankToNil(in.FullName),
		HashedPassword: hashed,
		Role:           RoleUser,
		IsActive:       true,
	}
	if in.Role != nil {
		user.Role = *in.Role
	}

	if err := db.Create(&user).Error; err != nil {
		return nil, translate(err)
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("[Users] user created")
	return &user, nil
}

// Authenticate looks the identifier up as an email first, then as a username.
// Unknown users, wrong passwords and inactive accounts all fail the same way.
func (s *Service) Authenticate(ctx context.Context, identifier, password string) (*User, error) {
	db := s.db.WithContext(ctx)
	var user User
	err := db.Where("email = ?", identifier).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = db.Where("username = ?", identifier).First(&user).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, err
	}
	if !security.VerifyPassword(user.HashedPassword, password) || !user.IsActive {
		return nil, apperr.ErrInvalidCredentials
	}
	return &user, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetVisible returns the user when actor may see it: regular users only see themselves.
func (s *Service) GetVisible(ctx context.Context, actor *User, id uint) (*User, error) {
	if actor.ID != id && !actor.Role.AtLeast(RoleAdmin) {
		return nil, apperr.ErrCannotManage.With("Cannot view other users")
	}
	return s.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, skip, limit int, activeOnly bool) ([]User, error) {
	q := s.db.WithContext(ctx).Model(&User{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []User
	err := q.Order("id ASC").Offset(skip).Limit(limit).Find(&out).Error
	return out, err
}

// Search matches email, username or full name, case-insensitively.
func (s *Service) Search(ctx context.Context, query string, skip, limit int) ([]User, error) {
	like := "%" + strings.ToLower(query) + "%"
	var out []User
	err := s.db.WithContext(ctx).
		Where("LOWER(email) LIKE ? OR LOWER(username) LIKE ? OR LOWER(COALESCE(full_name, '')) LIKE ?", like, like, like).
		Order("id ASC").Offset(skip).Limit(limit).Find(&out).Error
	return out, err
}

// Update is the self-service edit: a user edits itself, an admin may edit anyone it can manage.
func (s *Service) Update(ctx context.Context, actor *User, id uint, in UpdateInput) (*User, error) {
	if actor.ID != id && !actor.Role.AtLeast(RoleAdmin) {
		return nil, apperr.ErrCannotManage.With("Cannot update other users")
	}
	return s.mutate(ctx, actor, id, func(user *User) error {
		return s.applyUpdate(user, in)
	})
}

// AdminUpdate edits every field, including role and verification.
func (s *Service) AdminUpdate(ctx context.Context, actor *User, id uint, in AdminUpdateInput) (*User, error) {
	return s.mutate(ctx, actor, id, func(user *User) error {
		if actor.ID == user.ID {
			if in.IsActive != nil && !*in.IsActive {
				return apperr.ErrSelfAction.With("Cannot deactivate yourself")
			}
			if in.Role != nil && *in.Role != user.Role {
				return apperr.ErrSelfAction.With("Cannot change your own role")
			}
		}
		if in.Role != nil {
			if !CanAssign(actor.Role, *in.Role) {
				return apperr.ErrCannotManage.With("Cannot assign role %s", in.Role)
			}
			user.Role = *in.Role
		}
		if in.IsVerified != nil {
			user.IsVerified = *in.IsVerified
		}
		return s.applyUpdate(user, in.UpdateInput)
	})
}

func (s *Service) ChangeRole(ctx context.Context, actor *User, id uint, role Role) (*User, error) {
	return s.mutate(ctx, actor, id, func(user *User) error {
		if actor.ID == user.ID {
			return apperr.ErrSelfAction.With("Cannot change your own role")
		}
		if !CanAssign(actor.Role, role) {
			return apperr.ErrCannotManage.With("Cannot assign role %s", role)
		}
		user.Role = role
		return nil
	})
}

func (s *Service) SetActive(ctx context.Context, actor *User, id uint, active bool) (*User, error) {
	return s.mutate(ctx, actor, id, func(user *User) error {
		if actor.ID == user.ID && !active {
			return apperr.ErrSelfAction.With("Cannot deactivate yourself")
		}
		user.IsActive = active
		return nil
	})
}

func (s *Service) Verify(ctx context.Context, actor *User, id uint) (*User, error) {
	return s.mutate(ctx, actor, id, func(user *User) error {
		user.IsVerified = true
		return nil
	})
}

// Delete removes a user through the self-service surface: yourself, or anyone you can manage.
func (s *Service) Delete(ctx context.Context, actor *User, id uint) error {
	if actor.ID != id && !actor.Role.AtLeast(RoleAdmin) {
		return apperr.ErrCannotManage.With("Cannot delete other users")
	}
	return s.remove(ctx, actor, id, false)
}

// AdminDelete is Delete for the admin surface, where deleting yourself is refused.
func (s *Service) AdminDelete(ctx context.Context, actor *User, id uint) error {
	return s.remove(ctx, actor, id, true)
}

func (s *Service) remove(ctx context.Context, actor *User, id uint, adminSurface bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.First(&user, id).Error; err != nil {
			return translate(err)
		}
		if err := checkManage(actor, &user); err != nil {
			return err
		}
		if adminSurface && actor.ID == user.ID {
			return apperr.ErrSelfAction.With("Cannot delete yourself")
		}
		if err := tx.Delete(&user).Error; err != nil {
			return err
		}
		s.log.WithFields(logrus.Fields{"user_id": id, "actor_id": actor.ID}).Info("[Users] user deleted")
		return nil
	})
}

// mutate loads the target, checks actor may manage it, applies fn and saves, all in one transaction.
func (s *Service) mutate(ctx context.Context, actor *User, id uint, fn func(*User) error) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			return translate(err)
		}
		if err := checkManage(actor, &user); err != nil {
			return err
		}
		if err := fn(&user); err != nil {
			return err
		}
		if err := s.ensureUnique(tx, user.ID, &user.Email, &user.Username); err != nil {
			return err
		}
		if err := tx.Save(&user).Error; err != nil {
			return translate(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// checkManage applies the role table to actions on someone else's account.
func checkManage(actor, target *User) error {
	if actor.ID == target.ID {
		return nil
	}
	if !CanManage(actor.Role, target.Role) {
		return apperr.ErrCannotManage.With("Cannot modify %s", target.Role)
	}
	return nil
}

func (s *Service) applyUpdate(user *User, in UpdateInput) error {
	if in.Email != nil {
		trimmed := strings.TrimSpace(*in.Email)
		in.Email = &trimmed
	}
	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		in.Username = &trimmed
	}
	if err := s.validate.Struct(in); err != nil {
		return err
	}
	if in.Email != nil {
		user.Email = *in.Email
	}
	if in.Username != nil {
		user.Username = *in.Username
	}
	if in.FullName != nil {
		user.FullName = blankToNil(in.FullName)
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	if in.Password != nil {
		if err := security.CheckPasswordStrength(*in.Password); err != nil {
			return err
		}
		hashed, err := security.HashPassword(*in.Password)
		if err != nil {
			return err
		}
		user.HashedPassword = hashed
	}
	return nil
}

// ensureUnique reports which of email and username is already held by another user.
func (s *Service) ensureUnique(db *gorm.DB, selfID uint, email, username *string) error {
	var count int64
	if err := db.Model(&User{}).Where("email = ? AND id <> ?", *email, selfID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.ErrEmailTaken
	}
	if err := db.Model(&User{}).Where("username = ? AND id <> ?", *username, selfID).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperr.ErrUsernameTaken
	}
	return nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.ErrUserNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.New(apperr.KindConflict, "user_conflict", "Email or username already in use").Wrap(err)
	}
	return err
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// CountByRole returns how many users hold each role. Roles with no users are absent.
func (s *Service) CountByRole(ctx context.Context) (map[Role]int64, error) {
	var rows []struct {
		Role  Role
		Count int64
	}
	err := s.db.WithContext(ctx).Model(&User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[Role]int64, len(rows))
	for _, r := range rows {
		out[r.Role] = r.Count
	}
	return out, nil
}

// EnsureSuperAdmin creates the bootstrap super admin unless a user with that email exists.
// It reports whether a user was created.
func (s *Service) EnsureSuperAdmin(ctx context.Context, email, username, password string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("email = ?", strings.TrimSpace(email)).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	role := RoleSuperAdmin
	if _, err := s.create(ctx, CreateInput{Email: email, Username: username, Password: password, Role: &role}); err != nil {
		return false, err
	}
	return true, nil
}
