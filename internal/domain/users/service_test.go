package users

import (
	"context"
	"io"
	"strings"
	"testing"

	"costume-rental/internal/apperr"
	"costume-rental/internal/infra/validation"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&User{}))

	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewService(db, validation.New(), log)
}

func mustCreate(t *testing.T, svc *Service, username string, role Role) *User {
	t.Helper()
	r := role
	u, err := svc.create(context.Background(), CreateInput{
		Email:    username + "@example.com",
		Username: username,
		Password: "Secret123",
		Role:     &r,
	})
	require.NoError(t, err)
	return u
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := RoleAdmin

	u, err := svc.Register(ctx, CreateInput{Email: "jane@example.com", Username: "jane", Password: "Secret123", Role: &admin})
	require.NoError(t, err)
	assert.Equal(t, RoleUser, u.Role, "registration ignores the requested role")
	assert.True(t, u.IsActive)
	assert.False(t, u.IsVerified)
	assert.NotEqual(t, "Secret123", u.HashedPassword)

	byEmail, err := svc.Authenticate(ctx, "jane@example.com", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	byUsername, err := svc.Authenticate(ctx, "jane", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byUsername.ID)

	_, err = svc.Authenticate(ctx, "jane", "wrong")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "Secret123")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicatesAndWeakInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	mustCreate(t, svc, "jane", RoleUser)

	_, err := svc.Register(ctx, CreateInput{Email: "jane@example.com", Username: "other", Password: "Secret123"})
	assert.ErrorIs(t, err, apperr.ErrEmailTaken)

	_, err = svc.Register(ctx, CreateInput{Email: "other@example.com", Username: "jane", Password: "Secret123"})
	assert.ErrorIs(t, err, apperr.ErrUsernameTaken)

	_, err = svc.Register(ctx, CreateInput{Email: "weak@example.com", Username: "weak", Password: "password"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.Register(ctx, CreateInput{Email: "x@example.com", Username: "bad name", Password: "Secret123"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestInactiveUserCannotLogIn(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := mustCreate(t, svc, "boss", RoleAdmin)
	u := mustCreate(t, svc, "jane", RoleUser)

	_, err := svc.SetActive(ctx, admin, u.ID, false)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "jane", "Secret123")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestAdminCannotTouchSuperAdmin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := mustCreate(t, svc, "boss", RoleAdmin)
	root := mustCreate(t, svc, "root", RoleSuperAdmin)

	_, err := svc.ChangeRole(ctx, admin, root.ID, RoleUser)
	assert.ErrorIs(t, err, apperr.ErrCannotManage)

	_, err = svc.SetActive(ctx, admin, root.ID, false)
	assert.ErrorIs(t, err, apperr.ErrCannotManage)

	assert.ErrorIs(t, svc.AdminDelete(ctx, admin, root.ID), apperr.ErrCannotManage)

	still, err := svc.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, still.Role)
	assert.True(t, still.IsActive)
}

func TestAdminCannotMintSuperAdmin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := mustCreate(t, svc, "boss", RoleAdmin)
	u := mustCreate(t, svc, "jane", RoleUser)
	super := RoleSuperAdmin

	_, err := svc.CreateByAdmin(ctx, admin, CreateInput{Email: "s@example.com", Username: "super", Password: "Secret123", Role: &super})
	assert.ErrorIs(t, err, apperr.ErrCannotManage)

	_, err = svc.ChangeRole(ctx, admin, u.ID, RoleSuperAdmin)
	assert.ErrorIs(t, err, apperr.ErrCannotManage)

	promoted, err := svc.ChangeRole(ctx, admin, u.ID, RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, promoted.Role)
}

func TestNoSelfActionsOnAdminSurface(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	root := mustCreate(t, svc, "root", RoleSuperAdmin)

	_, err := svc.SetActive(ctx, root, root.ID, false)
	assert.ErrorIs(t, err, apperr.ErrSelfAction)

	assert.ErrorIs(t, svc.AdminDelete(ctx, root, root.ID), apperr.ErrSelfAction)

	_, err = svc.ChangeRole(ctx, root, root.ID, RoleUser)
	assert.ErrorIs(t, err, apperr.ErrSelfAction)

	inactive := false
	_, err = svc.AdminUpdate(ctx, root, root.ID, AdminUpdateInput{UpdateInput: UpdateInput{IsActive: &inactive}})
	assert.ErrorIs(t, err, apperr.ErrSelfAction)
}

func TestSelfServiceVisibility(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	jane := mustCreate(t, svc, "jane", RoleUser)
	john := mustCreate(t, svc, "john", RoleUser)
	admin := mustCreate(t, svc, "boss", RoleAdmin)

	_, err := svc.GetVisible(ctx, jane, john.ID)
	assert.ErrorIs(t, err, apperr.ErrCannotManage)

	_, err = svc.GetVisible(ctx, admin, john.ID)
	assert.NoError(t, err)

	name := "Jane Doe"
	updated, err := svc.Update(ctx, jane, jane.ID, UpdateInput{FullName: &name})
	require.NoError(t, err)
	require.NotNil(t, updated.FullName)
	assert.Equal(t, "Jane Doe", *updated.FullName)

	_, err = svc.Update(ctx, jane, john.ID, UpdateInput{FullName: &name})
	assert.ErrorIs(t, err, apperr.ErrCannotManage)

	assert.ErrorIs(t, svc.Delete(ctx, jane, john.ID), apperr.ErrCannotManage)
	assert.NoError(t, svc.Delete(ctx, jane, jane.ID))

	_, err = svc.Get(ctx, jane.ID)
	assert.ErrorIs(t, err, apperr.ErrUserNotFound)
}

func TestUpdateDetectsTakenEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	jane := mustCreate(t, svc, "jane", RoleUser)
	mustCreate(t, svc, "john", RoleUser)

	email := "john@example.com"
	_, err := svc.Update(ctx, jane, jane.ID, UpdateInput{Email: &email})
	assert.ErrorIs(t, err, apperr.ErrEmailTaken)
}

func TestPasswordChange(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	jane := mustCreate(t, svc, "jane", RoleUser)

	weak := "short"
	_, err := svc.Update(ctx, jane, jane.ID, UpdateInput{Password: &weak})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	strong := "NewSecret456"
	_, err = svc.Update(ctx, jane, jane.ID, UpdateInput{Password: &strong})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "jane", "NewSecret456")
	assert.NoError(t, err)
}

func TestListAndSearch(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := mustCreate(t, svc, "boss", RoleAdmin)
	jane := mustCreate(t, svc, "jane", RoleUser)
	mustCreate(t, svc, "john", RoleUser)

	_, err := svc.SetActive(ctx, admin, jane.ID, false)
	require.NoError(t, err)

	all, err := svc.List(ctx, 0, 100, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := svc.List(ctx, 0, 100, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	found, err := svc.Search(ctx, "JA", 0, 50)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "jane", found[0].Username)
}

func TestRoleTable(t *testing.T) {
	assert.True(t, RoleUser < RoleAdmin && RoleAdmin < RoleSuperAdmin)

	assert.False(t, CanManage(RoleUser, RoleUser))
	assert.True(t, CanManage(RoleAdmin, RoleUser))
	assert.True(t, CanManage(RoleAdmin, RoleAdmin))
	assert.False(t, CanManage(RoleAdmin, RoleSuperAdmin))
	assert.True(t, CanManage(RoleSuperAdmin, RoleSuperAdmin))

	assert.False(t, CanAssign(RoleUser, RoleUser))
	assert.True(t, CanAssign(RoleAdmin, RoleAdmin))
	assert.False(t, CanAssign(RoleAdmin, RoleSuperAdmin))
	assert.True(t, CanAssign(RoleSuperAdmin, RoleSuperAdmin))

	r, err := ParseRole("super_admin")
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, r)
	_, err = ParseRole("root")
	assert.Error(t, err)

	b, err := RoleAdmin.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `"admin"`, string(b))
}

func TestEnsureSuperAdmin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.EnsureSuperAdmin(ctx, "root@example.com", "root", "Secret123")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = svc.EnsureSuperAdmin(ctx, "root@example.com", "root", "Secret123")
	require.NoError(t, err)
	assert.False(t, created, "second call is a no-op")

	u, err := svc.Authenticate(ctx, "root", "Secret123")
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, u.Role)

	_, err = svc.EnsureSuperAdmin(ctx, "other@example.com", "other", "weak")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCountByRole(t *testing.T) {
	svc := newTestService(t)
	mustCreate(t, svc, "alice", RoleUser)
	mustCreate(t, svc, "bob", RoleUser)
	mustCreate(t, svc, "carol", RoleAdmin)

	counts, err := svc.CountByRole(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[Role]int64{RoleUser: 2, RoleAdmin: 1}, counts)
}
