package auth_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/bizworx/bizworx-api/shared/auth"
	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/tenancy"
	"github.com/bizworx/bizworx-api/shared/testutil"
)

func newService(t *testing.T) (*auth.Service, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	cache, _ := testutil.NewRedis(t)
	svc := auth.NewService(db, auth.Options{
		Cache:    cache,
		HashCost: bcrypt.MinCost,
		Logger:   testutil.NewLogger(),
	})
	return svc, db
}

func register(t *testing.T, svc *auth.Service, name, pin string) *models.Business {
	t.Helper()
	b, err := svc.RegisterBusiness(context.Background(), auth.RegisterInput{
		BusinessName: name,
		Email:        strings.ToLower(name) + "@example.com",
		Password:     "correct horse",
		OwnerPin:     pin,
	})
	require.NoError(t, err)
	return b
}

func strp(s string) *string { return &s }

func TestRegisterBusiness(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)

	b := register(t, svc, "Acme", "1234")
	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.NotEqual(t, "correct horse", b.PasswordHash)

	var owner models.User
	require.NoError(t, db.Where("business_id = ?", b.ID).First(&owner).Error)
	assert.Equal(t, models.RoleAdmin, owner.Role)
	assert.Equal(t, "owner", owner.Username)

	_, err := svc.RegisterBusiness(ctx, auth.RegisterInput{
		BusinessName: "Acme again",
		Email:        " ACME@example.com ",
		Password:     "another password",
	})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	_, err = svc.RegisterBusiness(ctx, auth.RegisterInput{BusinessName: "x", Email: "x@example.com", Password: "short"})
	var verr *auth.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAuthenticateBusinessIsGeneric(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	b := register(t, svc, "Acme", "")

	got, err := svc.AuthenticateBusiness(ctx, "ACME@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	_, wrongPassword := svc.AuthenticateBusiness(ctx, "acme@example.com", "wrong horse")
	_, unknownEmail := svc.AuthenticateBusiness(ctx, "nobody@example.com", "correct horse")

	assert.ErrorIs(t, wrongPassword, auth.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, auth.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestAuthenticatePinIsTenantScoped(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := register(t, svc, "Acme", "1111")
	b := register(t, svc, "Bolt", "2222")

	user, err := svc.AuthenticatePin(ctx, a.ID, "1111")
	require.NoError(t, err)
	assert.Equal(t, a.ID, user.BusinessID)
	assert.NotNil(t, user.LastLoginAt)

	// Bolt's PIN does not exist in Acme
	_, err = svc.AuthenticatePin(ctx, a.ID, "2222")
	assert.ErrorIs(t, err, auth.ErrInvalidPin)

	user, err = svc.AuthenticatePin(ctx, b.ID, "2222")
	require.NoError(t, err)
	assert.Equal(t, b.ID, user.BusinessID)

	for _, pin := range []string{"", "123", "12345", "abcd", "١٢٣٤"} {
		_, err = svc.AuthenticatePin(ctx, a.ID, pin)
		assert.ErrorIs(t, err, auth.ErrInvalidPin, pin)
	}

	_, err = svc.AuthenticatePin(ctx, uuid.Nil, "1111")
	assert.ErrorIs(t, err, auth.ErrInvalidPin)
}

func TestInactiveUserCannotLogIn(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := register(t, svc, "Acme", "")

	u, err := svc.CreateUser(ctx, a.ID, auth.UserInput{Username: strp("sam"), Pin: strp("4321")})
	require.NoError(t, err)

	inactive := false
	_, err = svc.UpdateUser(ctx, a.ID, u.ID, auth.UserInput{IsActive: &inactive})
	require.NoError(t, err)

	_, err = svc.AuthenticatePin(ctx, a.ID, "4321")
	assert.ErrorIs(t, err, auth.ErrInvalidPin)
}

func TestCreateUserPinRules(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := register(t, svc, "Acme", "1111")
	b := register(t, svc, "Bolt", "")

	_, err := svc.CreateUser(ctx, a.ID, auth.UserInput{Username: strp("dup"), Pin: strp("1111")})
	assert.ErrorIs(t, err, auth.ErrPinTaken)

	// the same PIN is fine in another business
	u, err := svc.CreateUser(ctx, b.ID, auth.UserInput{Username: strp("sam"), Pin: strp("1111")})
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, u.Role)

	_, err = svc.CreateUser(ctx, b.ID, auth.UserInput{Username: strp("sam"), Pin: strp("9999")})
	assert.ErrorIs(t, err, auth.ErrUsernameTaken)

	owner := models.RoleOwner
	_, err = svc.CreateUser(ctx, b.ID, auth.UserInput{Username: strp("boss"), Pin: strp("8888"), Role: &owner})
	assert.ErrorIs(t, err, auth.ErrInvalidRole)

	_, err = svc.CreateUser(ctx, b.ID, auth.UserInput{Username: strp("pat"), Pin: strp("12a4")})
	var verr *auth.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestUpdateUserOfOtherBusinessIsNotFound(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := register(t, svc, "Acme", "")
	b := register(t, svc, "Bolt", "")

	u, err := svc.CreateUser(ctx, b.ID, auth.UserInput{Username: strp("sam"), Pin: strp("1234")})
	require.NoError(t, err)

	_, err = svc.UpdateUser(ctx, a.ID, u.ID, auth.UserInput{FirstName: strp("Mallory")})
	assert.ErrorIs(t, err, tenancy.ErrNotFound)
}

func TestIssueAPIKeyWritesOnlyThatBusiness(t *testing.T) {
	ctx := context.Background()
	svc, db := newService(t)
	a := register(t, svc, "Acme", "")
	b := register(t, svc, "Bolt", "")

	key, business, err := svc.IssueAPIKey(ctx, a.ID)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key, auth.APIKeyPrefix))
	assert.True(t, auth.LooksLikeAPIKey(key))
	assert.Equal(t, a.ID, business.ID)
	assert.Equal(t, key[len(key)-4:], business.APIKeyStatus().Last4)

	var stored models.Business
	require.NoError(t, db.First(&stored, "id = ?", a.ID).Error)
	require.NotNil(t, stored.APIKeyHash)
	assert.Equal(t, auth.HashToken(key), *stored.APIKeyHash)
	assert.NotContains(t, *stored.APIKeyHash, key)

	var other models.Business
	require.NoError(t, db.First(&other, "id = ?", b.ID).Error)
	assert.False(t, other.HasAPIKey())

	_, _, err = svc.IssueAPIKey(ctx, uuid.New())
	assert.ErrorIs(t, err, auth.ErrBusinessNotFound)
}

func TestResolveAPIKey(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := register(t, svc, "Acme", "")

	key, _, err := svc.IssueAPIKey(ctx, a.ID)
	require.NoError(t, err)

	got, err := svc.ResolveAPIKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "Acme", got.Name)

	// second call is served from the cache
	got, err = svc.ResolveAPIKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	for _, bad := range []string{"", "bw_", key + "x", strings.TrimPrefix(key, auth.APIKeyPrefix), "Bearer " + key} {
		_, err = svc.ResolveAPIKey(ctx, bad)
		assert.ErrorIs(t, err, auth.ErrUnauthorized, bad)
	}

	forged, _, err := auth.GenerateAPIKey()
	require.NoError(t, err)
	_, err = svc.ResolveAPIKey(ctx, forged)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
}

func TestUpdateBusinessDropsCachedKey(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := register(t, svc, "Acme", "")

	key, _, err := svc.IssueAPIKey(ctx, a.ID)
	require.NoError(t, err)
	got, err := svc.ResolveAPIKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Acme", got.Name)

	updated, err := svc.UpdateBusiness(ctx, a.ID, auth.BusinessProfile{Name: strp(" Acme Lawn "), Phone: strp("555-0100")})
	require.NoError(t, err)
	assert.Equal(t, "Acme Lawn", updated.Name)
	assert.Equal(t, "555-0100", updated.Phone)

	got, err = svc.ResolveAPIKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Acme Lawn", got.Name)

	var verr *auth.ValidationError
	_, err = svc.UpdateBusiness(ctx, a.ID, auth.BusinessProfile{Name: strp(" ")})
	assert.ErrorAs(t, err, &verr)

	_, err = svc.UpdateBusiness(ctx, uuid.New(), auth.BusinessProfile{Phone: strp("1")})
	assert.ErrorIs(t, err, auth.ErrBusinessNotFound)
}

func TestRotateAndRevokeInvalidateOldKey(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)
	a := register(t, svc, "Acme", "")

	first, _, err := svc.IssueAPIKey(ctx, a.ID)
	require.NoError(t, err)
	_, err = svc.ResolveAPIKey(ctx, first)
	require.NoError(t, err)

	second, _, err := svc.IssueAPIKey(ctx, a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	_, err = svc.ResolveAPIKey(ctx, first)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	_, err = svc.ResolveAPIKey(ctx, second)
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAPIKey(ctx, a.ID))
	_, err = svc.ResolveAPIKey(ctx, second)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	business, err := svc.GetBusiness(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, business.APIKeyStatus().Active)
}

func TestGeneratedKeysAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key, hash, err := auth.GenerateAPIKey()
		require.NoError(t, err)
		assert.False(t, seen[key])
		seen[key] = true
		assert.Equal(t, auth.HashToken(key), hash)
		assert.Len(t, hash, 64)
	}
}
