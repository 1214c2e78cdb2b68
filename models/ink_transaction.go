package models

import "time"

// Ink transaction types.
const (
	InkTxAttendance  = "attendance"
	InkTxDeduct      = "deduct"
	InkTxCredit      = "credit"
	InkTxTransferOut = "transfer_out"
	InkTxTransferIn  = "transfer_in"
	InkTxLevelBonus  = "levelup_bonus"
	InkTxLostOnSlot  = "lost_on_slot"
)

// InkTransaction is an append-only audit row recorded for every ink mutation,
// used for reconciliation. Amount is signed from the user's point of view.
type InkTransaction struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	UserID       uint   `gorm:"index;not null" json:"user_id"`
	Type         string `gorm:"size:16;not null" json:"type"`
	Amount       int    `gorm:"not null" json:"amount"`
	BalanceAfter int    `gorm:"not null" json:"balance_after"`
	RefUserID    uint   `json:"ref_user_id,omitempty"`
	RefBookID    string `gorm:"size:36" json:"ref_book_id,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// BookUnlock marks a reader's paid access to another author's book. Repeat
// opens of an unlocked book are free.
type BookUnlock struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"index:idx_unlocks_user_book,unique;not null" json:"user_id"`
	BookID string `gorm:"size:36;index:idx_unlocks_user_book,unique;not null" json:"book_id"`

	CreatedAt time.Time `json:"created_at"`
}
