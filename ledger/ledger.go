// Package ledger owns every mutation of a user's ink balance, XP, and the
// derived level. Spending ink earns XP (10 per unit) and may trigger a
// level-up bonus; receiving ink never touches XP. All updates run as
// compare-and-swap transactions retried a bounded number of times so two
// rapid submissions from the same user cannot lose a write.
package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/odokhq/odok/datekey"
	"github.com/odokhq/odok/leveling"
	"github.com/odokhq/odok/models"
)

var (
	// ErrInsufficientInk means the balance is too low for the requested spend.
	ErrInsufficientInk = errors.New("잉크가 부족합니다")
	// ErrInvalidAmount means the amount is outside the allowed range.
	ErrInvalidAmount = errors.New("invalid ink amount")
	// ErrDonateLocked means the sender has not reached the gifting level.
	ErrDonateLocked = errors.New("잉크 선물은 레벨 6부터 가능합니다")
	// ErrSelfTransfer means sender and receiver are the same user.
	ErrSelfTransfer = errors.New("cannot transfer ink to yourself")
	// ErrAlreadyAttended means today's attendance reward was already claimed.
	ErrAlreadyAttended = errors.New("오늘은 이미 출석했어요")
	// ErrConflict means concurrent updates kept colliding after several retries.
	ErrConflict = errors.New("ledger update conflict, please retry")
	// ErrUserNotFound means the profile row does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// errRetry signals a lost compare-and-swap race inside one attempt.
var errRetry = errors.New("cas retry")

const (
	casAttempts = 3
	// Transfer bounds for peer-to-peer gifts.
	TransferMin = 1
	TransferMax = 10
)

// Ledger mutates user economy fields through the database handle it wraps.
type Ledger struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

// New creates a Ledger. loc fixes the calendar-day convention for attendance.
func New(db *gorm.DB, loc *time.Location) *Ledger {
	return &Ledger{db: db, loc: loc, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (l *Ledger) WithNow(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// DeductResult reports the outcome of a spend.
type DeductResult struct {
	LeveledUp bool `json:"leveled_up"`
	OldLevel  int  `json:"old_level"`
	NewLevel  int  `json:"new_level"`
	InkAfter  int  `json:"ink_after"`
	XPAfter   int  `json:"xp_after"`
}

// Deduct spends amount ink from the user. XP grows by amount*10, the level is
// recomputed, and a flat bonus is credited when the call crosses a level
// boundary (once per call, even if several levels are crossed at once).
func (l *Ledger) Deduct(ctx context.Context, userID uint, amount int, refBookID string) (*DeductResult, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		res, err := l.tryDeduct(ctx, userID, amount, refBookID)
		if errors.Is(err, errRetry) {
			continue
		}
		return res, err
	}
	return nil, ErrConflict
}

func (l *Ledger) tryDeduct(ctx context.Context, userID uint, amount int, refBookID string) (*DeductResult, error) {
	var result DeductResult

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}
		if user.Ink < amount {
			return ErrInsufficientInk
		}

		newXP := user.XP + amount*leveling.XPPerInkSpent
		oldLevel := leveling.LevelFromXP(user.XP)
		newLevel := leveling.LevelFromXP(newXP)
		leveledUp := newLevel > oldLevel

		newInk := user.Ink - amount
		if leveledUp {
			newInk += leveling.LevelUpInkBonus
		}
		newInk = clampInk(newInk)

		if err := casUpdate(tx, user, map[string]interface{}{
			"ink":             newInk,
			"xp":              newXP,
			"level":           newLevel,
			"total_ink_spent": user.TotalInkSpent + amount,
		}); err != nil {
			return err
		}

		if err := tx.Create(&models.InkTransaction{
			UserID:       userID,
			Type:         models.InkTxDeduct,
			Amount:       -amount,
			BalanceAfter: newInk,
			RefBookID:    refBookID,
		}).Error; err != nil {
			return err
		}
		if leveledUp {
			if err := tx.Create(&models.InkTransaction{
				UserID:       userID,
				Type:         models.InkTxLevelBonus,
				Amount:       leveling.LevelUpInkBonus,
				BalanceAfter: newInk,
			}).Error; err != nil {
				return err
			}
		}

		result = DeductResult{
			LeveledUp: leveledUp,
			OldLevel:  oldLevel,
			NewLevel:  newLevel,
			InkAfter:  newInk,
			XPAfter:   newXP,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Credit adds amount ink to the user, clamped at the balance cap. Crediting
// never grants XP and never moves the level.
func (l *Ledger) Credit(ctx context.Context, userID uint, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		after, err := l.tryCredit(ctx, userID, amount)
		if errors.Is(err, errRetry) {
			continue
		}
		return after, err
	}
	return 0, ErrConflict
}

func (l *Ledger) tryCredit(ctx context.Context, userID uint, amount int) (int, error) {
	var after int
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}
		after = clampInk(user.Ink + amount)
		if err := casUpdate(tx, user, map[string]interface{}{"ink": after}); err != nil {
			return err
		}
		return tx.Create(&models.InkTransaction{
			UserID:       userID,
			Type:         models.InkTxCredit,
			Amount:       amount,
			BalanceAfter: after,
		}).Error
	})
	return after, err
}

// TransferResult reports the outcome of a gift.
type TransferResult struct {
	SenderInkAfter   int  `json:"sender_ink_after"`
	ReceiverInkAfter int  `json:"receiver_ink_after"`
	LeveledUp        bool `json:"leveled_up"`
	SenderLevel      int  `json:"sender_level"`
}

// Transfer gifts ink between two users atomically. The sender spends the
// amount (earning XP exactly like any spend, level-up bonus included); the
// receiver is credited with a clamped balance and untouched XP.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID uint, amount int) (*TransferResult, error) {
	if fromID == toID {
		return nil, ErrSelfTransfer
	}
	if amount < TransferMin || amount > TransferMax {
		return nil, ErrInvalidAmount
	}

	for attempt := 0; attempt < casAttempts; attempt++ {
		res, err := l.tryTransfer(ctx, fromID, toID, amount)
		if errors.Is(err, errRetry) {
			continue
		}
		return res, err
	}
	return nil, ErrConflict
}

func (l *Ledger) tryTransfer(ctx context.Context, fromID, toID uint, amount int) (*TransferResult, error) {
	var result TransferResult

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		from, err := loadUser(tx, fromID)
		if err != nil {
			return err
		}
		to, err := loadUser(tx, toID)
		if err != nil {
			return err
		}

		if !leveling.CanDonate(leveling.LevelFromXP(from.XP)) {
			return ErrDonateLocked
		}
		if from.Ink < amount {
			return ErrInsufficientInk
		}

		newXP := from.XP + amount*leveling.XPPerInkSpent
		oldLevel := leveling.LevelFromXP(from.XP)
		newLevel := leveling.LevelFromXP(newXP)
		leveledUp := newLevel > oldLevel

		senderInk := from.Ink - amount
		if leveledUp {
			senderInk += leveling.LevelUpInkBonus
		}
		senderInk = clampInk(senderInk)
		receiverInk := clampInk(to.Ink + amount)

		if err := casUpdate(tx, from, map[string]interface{}{
			"ink":             senderInk,
			"xp":              newXP,
			"level":           newLevel,
			"total_ink_spent": from.TotalInkSpent + amount,
		}); err != nil {
			return err
		}
		if err := casUpdate(tx, to, map[string]interface{}{"ink": receiverInk}); err != nil {
			return err
		}

		rows := []models.InkTransaction{
			{UserID: fromID, Type: models.InkTxTransferOut, Amount: -amount, BalanceAfter: senderInk, RefUserID: toID},
			{UserID: toID, Type: models.InkTxTransferIn, Amount: amount, BalanceAfter: receiverInk, RefUserID: fromID},
		}
		if leveledUp {
			rows = append(rows, models.InkTransaction{
				UserID: fromID, Type: models.InkTxLevelBonus, Amount: leveling.LevelUpInkBonus, BalanceAfter: senderInk,
			})
		}
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}

		result = TransferResult{
			SenderInkAfter:   senderInk,
			ReceiverInkAfter: receiverInk,
			LeveledUp:        leveledUp,
			SenderLevel:      newLevel,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// AttendanceResult reports the outcome of a daily attendance claim.
type AttendanceResult struct {
	Reward   int    `json:"reward"`
	InkAfter int    `json:"ink_after"`
	DateKey  string `json:"date_key"`
}

// Attendance grants the once-per-day login reward. The reward scales with the
// user's level band.
func (l *Ledger) Attendance(ctx context.Context, userID uint) (*AttendanceResult, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		res, err := l.tryAttendance(ctx, userID)
		if errors.Is(err, errRetry) {
			continue
		}
		return res, err
	}
	return nil, ErrConflict
}

func (l *Ledger) tryAttendance(ctx context.Context, userID uint) (*AttendanceResult, error) {
	todayKey := datekey.For(l.now(), l.loc)
	var result AttendanceResult

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := loadUser(tx, userID)
		if err != nil {
			return err
		}
		if user.LastAttendanceDate != nil && *user.LastAttendanceDate == todayKey {
			return ErrAlreadyAttended
		}

		reward := leveling.AttendanceInk(leveling.LevelFromXP(user.XP))
		after := clampInk(user.Ink + reward)

		if err := casUpdate(tx, user, map[string]interface{}{
			"ink":                  after,
			"last_attendance_date": todayKey,
		}); err != nil {
			return err
		}
		if err := tx.Create(&models.InkTransaction{
			UserID:       userID,
			Type:         models.InkTxAttendance,
			Amount:       reward,
			BalanceAfter: after,
		}).Error; err != nil {
			return err
		}

		result = AttendanceResult{Reward: reward, InkAfter: after, DateKey: todayKey}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// RecordSlotLoss writes an audit row for ink spent on a publish attempt that
// lost the slot after payment. The balance is not refunded; the row exists for
// reconciliation.
func (l *Ledger) RecordSlotLoss(ctx context.Context, userID uint, amount int, slotKey string) error {
	var user models.User
	if err := l.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return err
	}
	return l.db.WithContext(ctx).Create(&models.InkTransaction{
		UserID:       userID,
		Type:         models.InkTxLostOnSlot,
		Amount:       -amount,
		BalanceAfter: user.Ink,
		RefBookID:    slotKey,
	}).Error
}

func loadUser(tx *gorm.DB, userID uint) (*models.User, error) {
	var user models.User
	if err := tx.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// casUpdate applies updates only when the economy fields still hold the values
// read at the start of the attempt. A lost race surfaces as errRetry.
func casUpdate(tx *gorm.DB, user *models.User, updates map[string]interface{}) error {
	res := tx.Model(&models.User{}).
		Where("id = ? AND ink = ? AND xp = ?", user.ID, user.Ink, user.XP).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errRetry
	}
	return nil
}

func clampInk(v int) int {
	if v < 0 {
		return 0
	}
	if v > models.InkMax {
		return models.InkMax
	}
	return v
}
