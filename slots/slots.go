// Package slots enforces the one-book-per-category-per-day rule. Slot keys
// normalize a book's category so that all series sub-genres share a single
// daily slot. The series slot additionally uses an explicit claim record so
// the slot closes the moment a slow generation starts, not when it finishes.
package slots

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/odokhq/odok/models"
)

// ErrInvalidCategory means the category is not one of the published kinds.
var ErrInvalidCategory = errors.New("invalid book category")

// SlotTakenError reports a slot collision together with its occupant so the
// caller can redirect the user to the existing content.
type SlotTakenError struct {
	SlotKey    string
	DateKey    string
	BookID     string
	AuthorName string
}

func (e *SlotTakenError) Error() string {
	if e.AuthorName != "" {
		return fmt.Sprintf("오늘의 %s 슬롯은 이미 %s님이 사용했어요", e.SlotKey, e.AuthorName)
	}
	return fmt.Sprintf("오늘의 %s 슬롯은 이미 사용 중이에요", e.SlotKey)
}

// Key normalizes a category/sub-category pair into the slot key used for
// daily exclusivity checks. Any series publication collapses into the single
// global "series" slot regardless of sub-genre; the legacy "self-improvement"
// spelling aliases to "self-help".
func Key(category string, isSeries bool) (string, error) {
	if isSeries || category == models.CategorySeries {
		return models.CategorySeries, nil
	}
	switch category {
	case models.CategoryWebnovel, models.CategoryNovel, models.CategoryEssay,
		models.CategorySelfHelp, models.CategoryHumanities:
		return category, nil
	case "self-improvement":
		return models.CategorySelfHelp, nil
	}
	return "", ErrInvalidCategory
}

// Occupant identifies who holds a slot today.
type Occupant struct {
	BookID     string `json:"book_id,omitempty"`
	AuthorName string `json:"author_name,omitempty"`
	UserID     uint   `json:"user_id,omitempty"`
	// Pending is true when generation is still running: a claim exists but
	// no finished book does yet.
	Pending bool `json:"pending,omitempty"`
}

// Allocator answers slot availability questions and manages series claims.
type Allocator struct {
	db *gorm.DB
}

// NewAllocator creates an Allocator on the given database handle.
func NewAllocator(db *gorm.DB) *Allocator {
	return &Allocator{db: db}
}

// Occupant returns who holds the slot for dateKey, or nil when it is free.
// This is the cheap optimistic check run before spending anything; the
// authoritative guarantees are the books (date_key, slot_key) unique index
// and, for series, the claim record.
func (a *Allocator) Occupant(ctx context.Context, dateKey, slotKey string) (*Occupant, error) {
	var book models.Book
	err := a.db.WithContext(ctx).
		Where("date_key = ? AND slot_key = ?", dateKey, slotKey).
		First(&book).Error
	if err == nil {
		return &Occupant{BookID: book.ID, AuthorName: book.AuthorName, UserID: book.AuthorID}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if slotKey != models.CategorySeries {
		return nil, nil
	}

	// A series claim with no finished book means another author is mid-generation.
	var claim models.SlotClaim
	err = a.db.WithContext(ctx).
		Where("date_key = ? AND slot_key = ?", dateKey, slotKey).
		First(&claim).Error
	if err == nil {
		occ := &Occupant{UserID: claim.UserID, Pending: true}
		if name, nerr := a.username(ctx, claim.UserID); nerr == nil {
			occ.AuthorName = name
		}
		return occ, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

// CheckFree is the fail-fast pre-check: it returns a SlotTakenError naming the
// occupant when the slot is already held.
func (a *Allocator) CheckFree(ctx context.Context, dateKey, slotKey string) error {
	occ, err := a.Occupant(ctx, dateKey, slotKey)
	if err != nil {
		return err
	}
	if occ != nil {
		return &SlotTakenError{
			SlotKey:    slotKey,
			DateKey:    dateKey,
			BookID:     occ.BookID,
			AuthorName: occ.AuthorName,
		}
	}
	return nil
}

// ClaimSeries atomically claims today's series slot for the duration of a
// generation. The claim row is created inside a transaction that first checks
// for an existing claim; a duplicate-key race on the unique index maps to the
// same slot-taken result.
func (a *Allocator) ClaimSeries(ctx context.Context, dateKey string, userID uint, opKey string) (*models.SlotClaim, error) {
	claim := &models.SlotClaim{
		DateKey: dateKey,
		SlotKey: models.CategorySeries,
		UserID:  userID,
		OpKey:   opKey,
	}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.SlotClaim
		err := tx.Where("date_key = ? AND slot_key = ?", dateKey, models.CategorySeries).
			First(&existing).Error
		if err == nil {
			return a.takenError(ctx, dateKey, existing.UserID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return tx.Create(claim).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, a.takenError(ctx, dateKey, 0)
		}
		return nil, err
	}
	return claim, nil
}

// ReleaseSeries rolls a claim back after a failed generation so the slot is
// not wasted for the rest of the day. Only the claim created by the same
// attempt (op key) is deleted; a successful publish never releases its claim.
func (a *Allocator) ReleaseSeries(ctx context.Context, claim *models.SlotClaim) error {
	if claim == nil {
		return nil
	}
	return a.db.WithContext(ctx).
		Where("id = ? AND op_key = ?", claim.ID, claim.OpKey).
		Delete(&models.SlotClaim{}).Error
}

func (a *Allocator) takenError(ctx context.Context, dateKey string, userID uint) error {
	e := &SlotTakenError{SlotKey: models.CategorySeries, DateKey: dateKey}
	if userID != 0 {
		if name, err := a.username(ctx, userID); err == nil {
			e.AuthorName = name
		}
	}
	return e
}

func (a *Allocator) username(ctx context.Context, userID uint) (string, error) {
	var user models.User
	if err := a.db.WithContext(ctx).Select("username").First(&user, userID).Error; err != nil {
		return "", err
	}
	return user.Username, nil
}

// SlotKeys lists every distinct daily slot in display order.
func SlotKeys() []string {
	return []string{
		models.CategoryWebnovel,
		models.CategoryNovel,
		models.CategorySeries,
		models.CategoryEssay,
		models.CategorySelfHelp,
		models.CategoryHumanities,
	}
}
