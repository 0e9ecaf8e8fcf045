package customers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/dbx"
)

var ErrNotFound = errors.New("customer not found")

type Customer struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    *string   `gorm:"type:char(36);index" json:"user_id,omitempty"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	FirstName string    `gorm:"type:varchar(100)" json:"first_name"`
	LastName  string    `gorm:"type:varchar(100)" json:"last_name"`
	Phone     string    `gorm:"type:varchar(32)" json:"phone"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (Customer) TableName() string { return "customers" }

// Profile is the identity captured on the checkout form.
type Profile struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// ResolveOrCreate finds the customer by email or creates one. created is true
// only when this call inserted the row.
func (r *Repo) ResolveOrCreate(ctx context.Context, p Profile) (Customer, bool, error) {
	email := NormalizeEmail(p.Email)

	c, err := r.byEmail(ctx, email)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Customer{}, false, err
	}

	c = Customer{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: strings.TrimSpace(p.FirstName),
		LastName:  strings.TrimSpace(p.LastName),
		Phone:     strings.TrimSpace(p.Phone),
	}
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		if dbx.IsDuplicate(err) {
			// concurrent checkout with the same email won the insert
			existing, err := r.byEmail(ctx, email)
			return existing, false, err
		}
		return Customer{}, false, err
	}
	return c, true, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (Customer, error) {
	var c Customer
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

func (r *Repo) byEmail(ctx context.Context, email string) (Customer, error) {
	var c Customer
	err := r.db.WithContext(ctx).First(&c, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Customer{}, ErrNotFound
	}
	return c, err
}

// AttachUser links a login account to a customer that has none yet.
func (r *Repo) AttachUser(ctx context.Context, customerID, userID string) error {
	return r.db.WithContext(ctx).Model(&Customer{}).
		Where("id = ? AND user_id IS NULL", customerID).
		Update("user_id", userID).Error
}

func (r *Repo) DetachUser(ctx context.Context, customerID, userID string) error {
	return r.db.WithContext(ctx).Model(&Customer{}).
		Where("id = ? AND user_id = ?", customerID, userID).
		Update("user_id", nil).Error
}

// Delete removes a customer row. Only used to undo a creation made by a
// checkout that failed before any order existed.
func (r *Repo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&Customer{}).Error
}
