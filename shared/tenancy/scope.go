// Package tenancy is the only way handlers reach tenant-owned tables. A Scope is bound to
// one business id and adds it to every statement it builds.
package tenancy

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bizworx/bizworx-api/shared/models"
)

var (
	// ErrNotFound covers both missing rows and rows owned by another business
	ErrNotFound = errors.New("record not found")
	// ErrMissingTenant is returned when a scope is requested without a business id
	ErrMissingTenant = errors.New("tenant id is required")
)

// Owned is implemented by every model that carries a business_id column
type Owned interface {
	SetBusinessID(id uuid.UUID)
}

// Scope is a database handle bound to a single business
type Scope struct {
	db         *gorm.DB
	businessID uuid.UUID
}

// New binds db to businessID
func New(db *gorm.DB, businessID uuid.UUID) (*Scope, error) {
	if businessID == uuid.Nil {
		return nil, ErrMissingTenant
	}
	return &Scope{db: db, businessID: businessID}, nil
}

// BusinessID returns the tenant the scope is bound to
func (s *Scope) BusinessID() uuid.UUID {
	return s.businessID
}

// Query returns a statement already filtered to the scope's business
func (s *Scope) Query(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Where("business_id = ?", s.businessID)
}

// Get loads the record with id into dest
func (s *Scope) Get(ctx context.Context, dest interface{}, id uuid.UUID, preloads ...string) error {
	q := s.Query(ctx)
	for _, p := range preloads {
		q = q.Preload(p)
	}
	if err := q.Where("id = ?", id).First(dest).Error; err != nil {
		return translate(err)
	}
	return nil
}

// Create inserts rec as a record of the scope's business, whatever business id it carried
func (s *Scope) Create(ctx context.Context, rec Owned) error {
	rec.SetBusinessID(s.businessID)
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create: %w", err)
	}
	return nil
}

// Update writes every column of rec to the row with id. Identity columns and
// associations are never written.
func (s *Scope) Update(ctx context.Context, id uuid.UUID, rec Owned) error {
	rec.SetBusinessID(s.businessID)
	res := s.db.WithContext(ctx).
		Model(rec).
		Where("id = ? AND business_id = ?", id, s.businessID).
		Select("*").
		Omit("id", "business_id", "created_at", "deleted_at", clause.Associations).
		Updates(rec)
	if res.Error != nil {
		return fmt.Errorf("update: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateColumns applies a partial update to the row with id
func (s *Scope) UpdateColumns(ctx context.Context, model interface{}, id uuid.UUID, values map[string]interface{}) error {
	res := s.Query(ctx).Model(model).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("update: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes the row with id. model is a pointer to the zero value of its type.
func (s *Scope) Delete(ctx context.Context, model interface{}, id uuid.UUID) error {
	res := s.Query(ctx).Where("id = ?", id).Delete(model)
	if res.Error != nil {
		return fmt.Errorf("delete: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Exists reports whether the business owns a row with id
func (s *Scope) Exists(ctx context.Context, model interface{}, id uuid.UUID) (bool, error) {
	var n int64
	if err := s.Query(ctx).Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, fmt.Errorf("exists: %w", err)
	}
	return n > 0, nil
}

// NextNumber takes the next document number for model, e.g. INV-0007, from the
// business's counter for prefix. Call it inside Transaction: the counter row stays
// locked until commit, so concurrent creates get distinct numbers and a rollback gives
// the number back. A missing counter starts after every existing row, deleted ones
// included, so numbers are never reused.
func (s *Scope) NextNumber(ctx context.Context, model interface{}, prefix string) (string, error) {
	db := s.db.WithContext(ctx)
	where := db.Model(&models.DocumentCounter{}).Where("business_id = ? AND prefix = ?", s.businessID, prefix)

	res := where.Session(&gorm.Session{}).UpdateColumn("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return "", fmt.Errorf("next number: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var existing int64
		if err := s.Query(ctx).Unscoped().Model(model).Count(&existing).Error; err != nil {
			return "", fmt.Errorf("next number: %w", err)
		}
		seed := &models.DocumentCounter{BusinessID: s.businessID, Prefix: prefix, Value: existing}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
			return "", fmt.Errorf("next number: %w", err)
		}
		if err := where.Session(&gorm.Session{}).UpdateColumn("value", gorm.Expr("value + 1")).Error; err != nil {
			return "", fmt.Errorf("next number: %w", err)
		}
	}

	var counter models.DocumentCounter
	if err := where.Session(&gorm.Session{}).Take(&counter).Error; err != nil {
		return "", fmt.Errorf("next number: %w", err)
	}
	return fmt.Sprintf("%s-%04d", prefix, counter.Value), nil
}

// ReplaceChildren swaps the rows of childModel that hang off parentID (line items) for
// rows. The parent must belong to the scope; callers set the foreign key on rows.
func (s *Scope) ReplaceChildren(ctx context.Context, parentModel interface{}, parentID uuid.UUID, childModel interface{}, column string, rows interface{}) error {
	ok, err := s.Exists(ctx, parentModel, parentID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	db := s.db.WithContext(ctx)
	if err := db.Where(column+" = ?", parentID).Delete(childModel).Error; err != nil {
		return fmt.Errorf("delete children: %w", err)
	}
	if rows == nil || reflect.ValueOf(rows).Elem().Len() == 0 {
		return nil
	}
	if err := db.Create(rows).Error; err != nil {
		return fmt.Errorf("create children: %w", err)
	}
	return nil
}

// Transaction runs fn with a scope bound to the same business inside one transaction
func (s *Scope) Transaction(ctx context.Context, fn func(tx *Scope) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Scope{db: tx, businessID: s.businessID})
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
