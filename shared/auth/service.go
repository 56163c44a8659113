// Package auth holds the credential store: business passwords, team member PINs and
// business API keys.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/bizworx/bizworx-api/shared/models"
	"github.com/bizworx/bizworx-api/shared/tenancy"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidPin         = errors.New("invalid pin")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrEmailTaken         = errors.New("email already registered")
	ErrPinTaken           = errors.New("pin already in use")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrBusinessNotFound   = errors.New("business not found")
	ErrInvalidRole        = errors.New("invalid role")
)

// ValidationError reports unusable input; its message is safe to show to clients
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

var pinPattern = regexp.MustCompile(`^\d{4}$`)

const apiKeyCachePrefix = "bizworx:apikey:"

// Options tunes a Service
type Options struct {
	// Cache holds resolved API keys; nil disables caching
	Cache    *redis.Client
	CacheTTL time.Duration
	// HashCost is the bcrypt cost for passwords and PINs
	HashCost int
	Logger   *logrus.Logger
}

// Service implements the credential store on top of gorm
type Service struct {
	db        *gorm.DB
	cache     *redis.Client
	cacheTTL  time.Duration
	cost      int
	log       *logrus.Logger
	dummyHash []byte
}

// NewService creates a credential store
func NewService(db *gorm.DB, opts Options) *Service {
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	// compared against when the email is unknown so both failure paths cost one bcrypt
	dummy, _ := bcrypt.GenerateFromPassword([]byte("bizworx-dummy-password"), opts.HashCost)

	return &Service{
		db:        db,
		cache:     opts.Cache,
		cacheTTL:  opts.CacheTTL,
		cost:      opts.HashCost,
		log:       opts.Logger,
		dummyHash: dummy,
	}
}

// RegisterInput creates a business and, when OwnerPin is set, its first admin user
type RegisterInput struct {
	BusinessName string
	Email        string
	Password     string
	Phone        string
	Address      string

	OwnerUsername  string
	OwnerFirstName string
	OwnerLastName  string
	OwnerPin       string
}

// RegisterBusiness creates a new tenant
func (s *Service) RegisterBusiness(ctx context.Context, in RegisterInput) (*models.Business, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.BusinessName)
	switch {
	case name == "":
		return nil, &ValidationError{Msg: "business name is required"}
	case email == "" || !strings.Contains(email, "@"):
		return nil, &ValidationError{Msg: "a valid email is required"}
	case len(in.Password) < 8:
		return nil, &ValidationError{Msg: "password must be at least 8 characters"}
	case in.OwnerPin != "" && !pinPattern.MatchString(in.OwnerPin):
		return nil, &ValidationError{Msg: "pin must be exactly 4 digits"}
	}

	var n int64
	if err := s.db.WithContext(ctx).Unscoped().Model(&models.Business{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if n > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	business := &models.Business{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Phone:        in.Phone,
		Address:      in.Address,
		IsActive:     true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(business).Error; err != nil {
			return fmt.Errorf("create business: %w", err)
		}
		if in.OwnerPin == "" {
			return nil
		}
		pinHash, err := bcrypt.GenerateFromPassword([]byte(in.OwnerPin), s.cost)
		if err != nil {
			return fmt.Errorf("hash pin: %w", err)
		}
		username := strings.TrimSpace(in.OwnerUsername)
		if username == "" {
			username = "owner"
		}
		owner := &models.User{
			BusinessID: business.ID,
			Username:   username,
			PinHash:    string(pinHash),
			FirstName:  in.OwnerFirstName,
			LastName:   in.OwnerLastName,
			Email:      email,
			Role:       models.RoleAdmin,
			IsActive:   true,
		}
		if err := tx.Create(owner).Error; err != nil {
			return fmt.Errorf("create owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithField("business_id", business.ID).Info("business registered")
	return business, nil
}

// AuthenticateBusiness checks email and password. Unknown emails and wrong passwords
// return the same error.
func (s *Service) AuthenticateBusiness(ctx context.Context, email, password string) (*models.Business, error) {
	var business models.Business
	err := s.db.WithContext(ctx).
		Where("email = ? AND is_active = ?", normalizeEmail(email), true).
		First(&business).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.log.Info("business login failed")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load business: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(business.PasswordHash), []byte(password)); err != nil {
		s.log.WithField("business_id", business.ID).Info("business login failed")
		return nil, ErrInvalidCredentials
	}

	return &business, nil
}

// AuthenticatePin finds the active user of businessID whose PIN matches. Users of other
// businesses are never considered.
func (s *Service) AuthenticatePin(ctx context.Context, businessID uuid.UUID, pin string) (*models.User, error) {
	if !pinPattern.MatchString(pin) {
		return nil, ErrInvalidPin
	}
	scope, err := tenancy.New(s.db, businessID)
	if err != nil {
		return nil, ErrInvalidPin
	}

	var users []models.User
	if err := scope.Query(ctx).Where("is_active = ?", true).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	for i := range users {
		if bcrypt.CompareHashAndPassword([]byte(users[i].PinHash), []byte(pin)) == nil {
			user := &users[i]
			now := time.Now()
			user.LastLoginAt = &now
			if err := scope.UpdateColumns(ctx, &models.User{}, user.ID, map[string]interface{}{"last_login_at": now}); err != nil {
				s.log.WithError(err).Warn("failed to record last login")
			}
			return user, nil
		}
	}

	s.log.WithField("business_id", businessID).Info("pin login failed")
	return nil, ErrInvalidPin
}

// UserInput describes a team member. Nil fields are left unchanged on update.
type UserInput struct {
	Username   *string
	Pin        *string
	FirstName  *string
	LastName   *string
	Email      *string
	Role       *models.UserRole
	HourlyRate *float64
	IsActive   *bool
}

// CreateUser adds a team member to businessID
func (s *Service) CreateUser(ctx context.Context, businessID uuid.UUID, in UserInput) (*models.User, error) {
	if in.Username == nil || strings.TrimSpace(*in.Username) == "" {
		return nil, &ValidationError{Msg: "username is required"}
	}
	if in.Pin == nil {
		return nil, &ValidationError{Msg: "pin is required"}
	}
	user := &models.User{Role: models.RoleMember, IsActive: true}
	if err := s.applyUserInput(ctx, businessID, user, in); err != nil {
		return nil, err
	}

	scope, err := tenancy.New(s.db, businessID)
	if err != nil {
		return nil, err
	}
	if err := scope.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser changes a team member of businessID
func (s *Service) UpdateUser(ctx context.Context, businessID, userID uuid.UUID, in UserInput) (*models.User, error) {
	scope, err := tenancy.New(s.db, businessID)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := scope.Get(ctx, &user, userID); err != nil {
		return nil, err
	}
	if err := s.applyUserInput(ctx, businessID, &user, in); err != nil {
		return nil, err
	}
	if err := scope.Update(ctx, user.ID, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) applyUserInput(ctx context.Context, businessID uuid.UUID, user *models.User, in UserInput) error {
	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if username == "" {
			return &ValidationError{Msg: "username is required"}
		}
		if username != user.Username {
			var n int64
			err := s.db.WithContext(ctx).Model(&models.User{}).
				Where("business_id = ? AND username = ? AND id <> ?", businessID, username, user.ID).
				Count(&n).Error
			if err != nil {
				return fmt.Errorf("check username: %w", err)
			}
			if n > 0 {
				return ErrUsernameTaken
			}
		}
		user.Username = username
	}
	if in.Pin != nil {
		if !pinPattern.MatchString(*in.Pin) {
			return &ValidationError{Msg: "pin must be exactly 4 digits"}
		}
		taken, err := s.pinInUse(ctx, businessID, user.ID, *in.Pin)
		if err != nil {
			return err
		}
		if taken {
			return ErrPinTaken
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*in.Pin), s.cost)
		if err != nil {
			return fmt.Errorf("hash pin: %w", err)
		}
		user.PinHash = string(hash)
	}
	if in.Role != nil {
		if !in.Role.Valid() {
			return ErrInvalidRole
		}
		user.Role = *in.Role
	}
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.Email != nil {
		user.Email = normalizeEmail(*in.Email)
	}
	if in.HourlyRate != nil {
		if *in.HourlyRate < 0 {
			return &ValidationError{Msg: "hourly rate cannot be negative"}
		}
		user.HourlyRate = *in.HourlyRate
	}
	if in.IsActive != nil {
		user.IsActive = *in.IsActive
	}
	return nil
}

// pinInUse reports whether another user of the business already has pin
func (s *Service) pinInUse(ctx context.Context, businessID, exceptID uuid.UUID, pin string) (bool, error) {
	var users []models.User
	err := s.db.WithContext(ctx).
		Where("business_id = ? AND id <> ?", businessID, exceptID).
		Find(&users).Error
	if err != nil {
		return false, fmt.Errorf("load users: %w", err)
	}
	for _, u := range users {
		if bcrypt.CompareHashAndPassword([]byte(u.PinHash), []byte(pin)) == nil {
			return true, nil
		}
	}
	return false, nil
}

// GetBusiness loads an active business by id
func (s *Service) GetBusiness(ctx context.Context, businessID uuid.UUID) (*models.Business, error) {
	var business models.Business
	err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", businessID, true).First(&business).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBusinessNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load business: %w", err)
	}
	return &business, nil
}

// BusinessProfile holds the editable profile fields; nil leaves a field unchanged
type BusinessProfile struct {
	Name    *string
	Phone   *string
	Address *string
}

// UpdateBusiness changes the profile of businessID. A cached resolution of its API key
// is dropped so integrations see the new name on their next call.
func (s *Service) UpdateBusiness(ctx context.Context, businessID uuid.UUID, p BusinessProfile) (*models.Business, error) {
	values := map[string]interface{}{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, &ValidationError{Msg: "name cannot be empty"}
		}
		values["name"] = name
	}
	if p.Phone != nil {
		values["phone"] = *p.Phone
	}
	if p.Address != nil {
		values["address"] = *p.Address
	}

	if len(values) > 0 {
		res := s.db.WithContext(ctx).Model(&models.Business{}).
			Where("id = ? AND is_active = ?", businessID, true).
			Updates(values)
		if res.Error != nil {
			return nil, fmt.Errorf("update business: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrBusinessNotFound
		}
	}

	business, err := s.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if _, renamed := values["name"]; renamed && business.APIKeyHash != nil {
		s.forget(ctx, *business.APIKeyHash)
	}
	return business, nil
}

// IssueAPIKey mints a new key for businessID, replacing any previous key. The returned
// key is never stored and cannot be retrieved again.
func (s *Service) IssueAPIKey(ctx context.Context, businessID uuid.UUID) (string, *models.Business, error) {
	if businessID == uuid.Nil {
		return "", nil, ErrBusinessNotFound
	}
	key, hash, err := GenerateAPIKey()
	if err != nil {
		return "", nil, err
	}

	now := time.Now()
	previous, err := s.writeAPIKey(ctx, businessID, map[string]interface{}{
		"api_key_hash":       hash,
		"api_key_last4":      last4(key),
		"api_key_created_at": now,
	})
	if err != nil {
		return "", nil, err
	}
	s.forget(ctx, previous)

	business, err := s.GetBusiness(ctx, businessID)
	if err != nil {
		return "", nil, err
	}

	s.log.WithField("business_id", businessID).Info("api key issued")
	return key, business, nil
}

// RevokeAPIKey removes the key of businessID
func (s *Service) RevokeAPIKey(ctx context.Context, businessID uuid.UUID) error {
	previous, err := s.writeAPIKey(ctx, businessID, map[string]interface{}{
		"api_key_hash":       nil,
		"api_key_last4":      "",
		"api_key_created_at": nil,
	})
	if err != nil {
		return err
	}
	s.forget(ctx, previous)

	s.log.WithField("business_id", businessID).Info("api key revoked")
	return nil
}

// writeAPIKey updates exactly the row of businessID and returns the hash it replaced
func (s *Service) writeAPIKey(ctx context.Context, businessID uuid.UUID, values map[string]interface{}) (string, error) {
	var previous string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Business
		if err := tx.Where("id = ?", businessID).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBusinessNotFound
			}
			return fmt.Errorf("load business: %w", err)
		}
		if current.APIKeyHash != nil {
			previous = *current.APIKeyHash
		}

		res := tx.Model(&models.Business{}).Where("id = ?", businessID).Updates(values)
		if res.Error != nil {
			return fmt.Errorf("store api key: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return fmt.Errorf("store api key: %d rows affected", res.RowsAffected)
		}
		return nil
	})
	return previous, err
}

// cachedKey is what the resolver keeps in Redis for a key hash
type cachedKey struct {
	BusinessID   uuid.UUID `json:"business_id"`
	BusinessName string    `json:"business_name"`
}

// ResolveAPIKey returns the business that owns key. The match is on the hash of the
// exact key; anything else is ErrUnauthorized.
func (s *Service) ResolveAPIKey(ctx context.Context, key string) (*models.Business, error) {
	if !LooksLikeAPIKey(key) {
		return nil, ErrUnauthorized
	}
	hash := HashToken(key)

	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, apiKeyCachePrefix+hash).Result(); err == nil {
			var hit cachedKey
			if json.Unmarshal([]byte(raw), &hit) == nil && hit.BusinessID != uuid.Nil {
				return &models.Business{ID: hit.BusinessID, Name: hit.BusinessName, IsActive: true}, nil
			}
		} else if err != redis.Nil {
			s.log.WithError(err).Warn("api key cache unavailable")
		}
	}

	var business models.Business
	err := s.db.WithContext(ctx).
		Where("api_key_hash = ? AND is_active = ?", hash, true).
		First(&business).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("resolve api key: %w", err)
	}

	if s.cache != nil {
		data, _ := json.Marshal(cachedKey{BusinessID: business.ID, BusinessName: business.Name})
		if err := s.cache.Set(ctx, apiKeyCachePrefix+hash, data, s.cacheTTL).Err(); err != nil {
			s.log.WithError(err).Warn("failed to cache api key")
		}
	}
	return &business, nil
}

// forget drops a cached key resolution. A request that read the cache just before
// this call can still succeed with the old key until the entry would have expired.
func (s *Service) forget(ctx context.Context, hash string) {
	if s.cache == nil || hash == "" {
		return
	}
	if err := s.cache.Del(ctx, apiKeyCachePrefix+hash).Err(); err != nil {
		s.log.WithError(err).Warn("failed to invalidate api key cache")
	}
}

// HashPassword exposes the configured bcrypt cost for password changes
func (s *Service) HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", &ValidationError{Msg: "password must be at least 8 characters"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
