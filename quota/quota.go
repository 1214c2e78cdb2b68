// Package quota caps publish actions per user per local calendar day. The
// stored counter is never reset by a scheduled job; a stale counter is
// detected lazily by comparing its date key against today at read time.
package quota

import (
	"gorm.io/gorm"

	"github.com/odokhq/odok/models"
)

const (
	// DailyWriteLimit is the maximum publish actions per user per day.
	DailyWriteLimit = 2
	// DailyFreeWrites is how many of those are free; the rest cost ink.
	DailyFreeWrites = 1
)

// Status is the resolved quota for one user on one day.
type Status struct {
	EffectiveCount    int  `json:"effective_count"`
	RemainingWrites   int  `json:"remaining_writes"`
	RequiresPaidWrite bool `json:"requires_paid_write"`
}

// Resolve computes the user's quota against todayKey. A counter anchored to a
// different date key counts as zero.
func Resolve(user *models.User, todayKey string) Status {
	count := 0
	if user.LastBookCreatedDate != nil && *user.LastBookCreatedDate == todayKey {
		count = user.DailyWriteCount
	}

	remaining := DailyWriteLimit - count
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		EffectiveCount:    count,
		RemainingWrites:   remaining,
		RequiresPaidWrite: count >= DailyFreeWrites,
	}
}

// RecordWrite attributes one publish action to todayKey, restarting the count
// when the stored date key is stale. It runs after the book commit; the book
// is never rolled back over a counter failure.
func RecordWrite(tx *gorm.DB, userID uint, todayKey string) error {
	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		return err
	}

	count := 1
	if user.LastBookCreatedDate != nil && *user.LastBookCreatedDate == todayKey {
		count = user.DailyWriteCount + 1
	}

	return tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"daily_write_count":      count,
		"last_book_created_date": todayKey,
	}).Error
}
