package models

import "time"

// Book categories accepted by the publish API.
const (
	CategoryWebnovel   = "webnovel"
	CategoryNovel      = "novel"
	CategorySeries     = "series"
	CategoryEssay      = "essay"
	CategorySelfHelp   = "self-help"
	CategoryHumanities = "humanities"
)

// Series status values.
const (
	SeriesOngoing   = "ongoing"
	SeriesCompleted = "completed"
)

// Book is one published unit of content. The root record is immutable after
// creation except for engagement counters and series status; series content
// lives in Episode rows instead of the Content field.
//
// DateKey is fixed at creation from the author's local calendar day and is the
// anchor for all slot logic; it must never be recomputed from CreatedAt.
// The (date_key, slot_key) unique index enforces at most one book per daily slot.
type Book struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	AuthorID    uint   `gorm:"index;not null" json:"author_id"`
	AuthorName  string `gorm:"size:64;not null" json:"author_name"`
	Category    string `gorm:"size:32;not null" json:"category"`
	SubCategory string `gorm:"size:32" json:"sub_category"`
	SlotKey     string `gorm:"size:32;index:idx_books_date_slot,unique;not null" json:"slot_key"`
	DateKey     string `gorm:"size:10;index:idx_books_date_slot,unique;not null" json:"date_key"`

	IsSeries bool   `gorm:"default:false" json:"is_series"`
	Status   string `gorm:"size:16" json:"status,omitempty"`

	Title   string `gorm:"size:255;not null" json:"title"`
	Content string `gorm:"type:text" json:"content,omitempty"`
	Summary string `gorm:"type:text" json:"summary,omitempty"`

	Views       int64 `gorm:"default:0" json:"views"`
	Likes       int64 `gorm:"default:0" json:"likes"`
	Favorites   int64 `gorm:"default:0" json:"favorites"`
	Completions int64 `gorm:"default:0" json:"completions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Episodes []Episode `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"episodes,omitempty"`
}

// Episode is one installment of a series book, appended after publication.
type Episode struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	BookID            string `gorm:"size:36;index:idx_episodes_book_ep,unique;not null" json:"book_id"`
	EpNumber          int    `gorm:"index:idx_episodes_book_ep,unique;not null" json:"ep_number"`
	WriterID          uint   `gorm:"not null" json:"writer_id"`
	Content           string `gorm:"type:text;not null" json:"content"`
	Summary           string `gorm:"type:text" json:"summary"`
	CumulativeSummary string `gorm:"type:text" json:"cumulative_summary"`
	IsFinale          bool   `gorm:"default:false" json:"is_finale"`

	CreatedAt time.Time `json:"created_at"`
}
