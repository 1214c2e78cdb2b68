package models

import "time"

// SlotClaim closes a daily slot the moment generation begins, before any Book
// exists. Its presence for a (date_key, slot_key) pair means the slot is taken
// for the day. Claims are deleted only when generation fails; a successful
// publish leaves the claim in place until the date key rolls over.
type SlotClaim struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	DateKey string `gorm:"size:10;index:idx_claims_date_slot,unique;not null" json:"date_key"`
	SlotKey string `gorm:"size:32;index:idx_claims_date_slot,unique;not null" json:"slot_key"`
	UserID  uint   `gorm:"index;not null" json:"user_id"`
	// OpKey identifies the publish attempt that created the claim so a failed
	// attempt only rolls back its own claim.
	OpKey string `gorm:"size:36;not null" json:"op_key"`

	CreatedAt time.Time `json:"created_at"`
}
