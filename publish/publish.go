// Package publish orchestrates the book publication workflow: quota check,
// payment resolution, slot claiming, generation, and commit. It is the one
// sequence in the system where money, scarcity, and a slow external call
// interact, so the ordering here follows the product rules exactly.
package publish

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/odokhq/odok/datekey"
	"github.com/odokhq/odok/ledger"
	"github.com/odokhq/odok/leveling"
	"github.com/odokhq/odok/models"
	"github.com/odokhq/odok/quota"
	"github.com/odokhq/odok/slots"
	"github.com/odokhq/odok/utils"
)

var (
	// ErrQuotaExceeded means the daily write limit is used up; terminal for
	// the day.
	ErrQuotaExceeded = errors.New("하루 최대 2회까지 작성할 수 있어요")
	// ErrPublishInProgress means another publish attempt by the same user is
	// still running.
	ErrPublishInProgress = errors.New("이미 진행 중인 작성 요청이 있어요")
	// ErrNotSeries means an episode was requested for a non-series book.
	ErrNotSeries = errors.New("not a series book")
	// ErrSeriesCompleted means the series is finished and takes no more episodes.
	ErrSeriesCompleted = errors.New("완결된 작품이에요")
	// ErrNotAuthor means the caller does not own the series.
	ErrNotAuthor = errors.New("only the author can continue this series")
)

// PaymentRequiredError signals that the second daily write needs an explicit
// payment confirmation before the workflow proceeds.
type PaymentRequiredError struct {
	Cost int
}

func (e *PaymentRequiredError) Error() string {
	return fmt.Sprintf("추가 작성에는 잉크 %d이 필요해요", e.Cost)
}

// GenerationError wraps a failure from the generation collaborator. No partial
// book is written when it occurs.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// Inflight is an idempotency-key store used to suppress concurrent duplicate
// attempts for the same logical operation. Keys are checked-and-inserted
// atomically so the guard holds across processes when backed by Redis.
type Inflight interface {
	TryAcquire(key string, ttl time.Duration) bool
	Release(key string)
}

// Draft carries the author's publish request.
type Draft struct {
	Category    string   `json:"category"`
	SubCategory string   `json:"sub_category"`
	Genre       string   `json:"genre"`
	Keywords    []string `json:"keywords"`
	Title       string   `json:"title"`
	EndingStyle string   `json:"ending_style"`
	Tone        string   `json:"tone"`
	Mood        string   `json:"mood"`
	IsSeries    bool     `json:"is_series"`
}

// Result is a successful publication.
type Result struct {
	Book      *models.Book `json:"book"`
	PaidCost  int          `json:"paid_cost"`
	LeveledUp bool         `json:"leveled_up"`
	NewLevel  int          `json:"new_level,omitempty"`
}

// EpisodeResult is a successful series continuation.
type EpisodeResult struct {
	Episode  *models.Episode `json:"episode"`
	Finished bool            `json:"finished"`
}

// Workflow wires the economy subsystems into the publication sequence.
type Workflow struct {
	db        *gorm.DB
	ledger    *ledger.Ledger
	allocator *slots.Allocator
	generator Generator
	inflight  Inflight
	loc       *time.Location
	now       func() time.Time
	log       *zap.SugaredLogger
}

// NewWorkflow creates a Workflow. inflight may be nil, disabling the
// duplicate-submission guard (tests).
func NewWorkflow(db *gorm.DB, lg *ledger.Ledger, alloc *slots.Allocator, gen Generator, inflight Inflight, loc *time.Location, log *zap.SugaredLogger) *Workflow {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Workflow{
		db:        db,
		ledger:    lg,
		allocator: alloc,
		generator: gen,
		inflight:  inflight,
		loc:       loc,
		now:       time.Now,
		log:       log,
	}
}

// WithNow overrides the clock, for tests.
func (w *Workflow) WithNow(now func() time.Time) *Workflow {
	w.now = now
	return w
}

const inflightTTL = 10 * time.Minute

// Publish runs the full workflow for one publish attempt. Ink spent on the
// paid second write is not refunded if the slot is lost afterwards; the loss
// is logged and written to the audit trail instead.
func (w *Workflow) Publish(ctx context.Context, userID uint, draft *Draft, paymentConfirmed bool) (*Result, error) {
	slotKey, err := slots.Key(draft.Category, draft.IsSeries)
	if err != nil {
		return nil, err
	}
	isSeries := slotKey == models.CategorySeries

	opKey := fmt.Sprintf("publish:%d", userID)
	if w.inflight != nil {
		if !w.inflight.TryAcquire(opKey, inflightTTL) {
			return nil, ErrPublishInProgress
		}
		defer w.inflight.Release(opKey)
	}

	var user models.User
	if err := w.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, err
	}
	todayKey := datekey.For(w.now(), w.loc)

	// Quota: resolved locally before any remote mutation.
	status := quota.Resolve(&user, todayKey)
	if status.RemainingWrites == 0 {
		return nil, ErrQuotaExceeded
	}

	// Payment: the second daily write costs ink, priced by level.
	paidCost := 0
	leveledUp := false
	newLevel := 0
	if status.RequiresPaidWrite {
		cost := leveling.ExtraWriteInkCost(leveling.LevelFromXP(user.XP))
		if !paymentConfirmed {
			return nil, &PaymentRequiredError{Cost: cost}
		}
		dres, err := w.ledger.Deduct(ctx, userID, cost, "")
		if err != nil {
			return nil, err
		}
		paidCost = cost
		leveledUp = dres.LeveledUp
		newLevel = dres.NewLevel
	}

	// Slot: re-checked after payment, immediately before the expensive part.
	// Series closes the slot with an explicit claim for the whole generation.
	var claim *models.SlotClaim
	if isSeries {
		claim, err = w.allocator.ClaimSeries(ctx, todayKey, userID, uuid.NewString())
	} else {
		err = w.allocator.CheckFree(ctx, todayKey, slotKey)
	}
	if err != nil {
		w.noteSlotLoss(ctx, userID, paidCost, slotKey, err)
		return nil, err
	}

	// Generation: any failure surfaces verbatim; no partial book is written.
	gen, err := w.generator.GenerateBook(ctx, &BookRequest{
		Category:    draft.Category,
		SubCategory: draft.SubCategory,
		Genre:       draft.Genre,
		Keywords:    draft.Keywords,
		IsSeries:    isSeries,
		Title:       draft.Title,
		EndingStyle: draft.EndingStyle,
		Tone:        draft.Tone,
		Mood:        draft.Mood,
	})
	if err != nil {
		if rerr := w.allocator.ReleaseSeries(ctx, claim); rerr != nil {
			w.log.Errorf("failed to release series claim after generation failure: %v", rerr)
		}
		return nil, &GenerationError{Err: err}
	}

	book, err := w.commit(ctx, &user, draft, slotKey, todayKey, gen)
	if err != nil {
		if rerr := w.allocator.ReleaseSeries(ctx, claim); rerr != nil {
			w.log.Errorf("failed to release series claim after commit failure: %v", rerr)
		}
		w.noteSlotLoss(ctx, userID, paidCost, slotKey, err)
		return nil, err
	}

	// The book is published at this point; the counter update is best-effort.
	if err := quota.RecordWrite(w.db.WithContext(ctx), userID, todayKey); err != nil {
		w.log.Errorw("daily write counter update failed after publish",
			"user_id", userID, "book_id", book.ID, "error", err)
	}

	return &Result{Book: book, PaidCost: paidCost, LeveledUp: leveledUp, NewLevel: newLevel}, nil
}

func (w *Workflow) commit(ctx context.Context, user *models.User, draft *Draft, slotKey, todayKey string, gen *GeneratedBook) (*models.Book, error) {
	book := &models.Book{
		ID:          uuid.NewString(),
		AuthorID:    user.ID,
		AuthorName:  user.Username,
		Category:    draft.Category,
		SubCategory: draft.SubCategory,
		SlotKey:     slotKey,
		DateKey:     todayKey,
		IsSeries:    slotKey == models.CategorySeries,
		// Generated markup passes through the same HTML policy as any
		// user-supplied content before it is stored.
		Title:   utils.SanitizeStrict(gen.Title),
		Summary: utils.SanitizeStrict(gen.Summary),
	}
	if book.Title == "" {
		book.Title = draft.Title
	}

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if book.IsSeries {
			book.Status = models.SeriesOngoing
			if err := tx.Create(book).Error; err != nil {
				return err
			}
			return tx.Create(&models.Episode{
				BookID:            book.ID,
				EpNumber:          1,
				WriterID:          user.ID,
				Content:           utils.Sanitize(gen.Content),
				Summary:           book.Summary,
				CumulativeSummary: utils.SanitizeStrict(gen.StorySummary),
			}).Error
		}
		book.Content = utils.Sanitize(gen.Content)
		return tx.Create(book).Error
	})
	if err != nil {
		// A duplicate on (date_key, slot_key) means another author committed
		// first while we were generating.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			occ, oerr := w.allocator.Occupant(ctx, todayKey, slotKey)
			taken := &slots.SlotTakenError{SlotKey: slotKey, DateKey: todayKey}
			if oerr == nil && occ != nil {
				taken.BookID = occ.BookID
				taken.AuthorName = occ.AuthorName
			}
			return nil, taken
		}
		return nil, err
	}
	return book, nil
}

// noteSlotLoss records ink already spent on an attempt that then lost the
// slot. The spend is deliberately not refunded.
func (w *Workflow) noteSlotLoss(ctx context.Context, userID uint, paidCost int, slotKey string, cause error) {
	var taken *slots.SlotTakenError
	if paidCost == 0 || !errors.As(cause, &taken) {
		return
	}
	w.log.Warnw("ink spent on publish attempt that lost the slot",
		"user_id", userID, "slot_key", slotKey, "ink", paidCost)
	if err := w.ledger.RecordSlotLoss(ctx, userID, paidCost, slotKey); err != nil {
		w.log.Errorf("failed to record slot loss: %v", err)
	}
}

// AddEpisode continues an ongoing series with the next generated installment.
// Only the series author may continue it; continuationType "finalize" asks the
// backend for a closing episode and completes the series.
func (w *Workflow) AddEpisode(ctx context.Context, userID uint, bookID, continuationType string) (*EpisodeResult, error) {
	if continuationType != "ongoing" && continuationType != "finalize" {
		return nil, fmt.Errorf("invalid continuation type %q", continuationType)
	}

	opKey := "episode:" + bookID
	if w.inflight != nil {
		if !w.inflight.TryAcquire(opKey, inflightTTL) {
			return nil, ErrPublishInProgress
		}
		defer w.inflight.Release(opKey)
	}

	var book models.Book
	if err := w.db.WithContext(ctx).First(&book, "id = ?", bookID).Error; err != nil {
		return nil, err
	}
	if !book.IsSeries {
		return nil, ErrNotSeries
	}
	if book.AuthorID != userID {
		return nil, ErrNotAuthor
	}
	if book.Status == models.SeriesCompleted {
		return nil, ErrSeriesCompleted
	}

	var last models.Episode
	if err := w.db.WithContext(ctx).
		Where("book_id = ?", bookID).
		Order("ep_number DESC").
		First(&last).Error; err != nil {
		return nil, err
	}

	gen, err := w.generator.GenerateSeriesEpisode(ctx, &EpisodeRequest{
		SeriesID:           bookID,
		Category:           book.Category,
		SubCategory:        book.SubCategory,
		CumulativeSummary:  last.CumulativeSummary,
		LastEpisodeContent: last.Content,
		ContinuationType:   continuationType,
	})
	if err != nil {
		return nil, &GenerationError{Err: err}
	}

	episode := &models.Episode{
		BookID:            bookID,
		EpNumber:          last.EpNumber + 1,
		WriterID:          userID,
		Content:           utils.Sanitize(gen.Content),
		Summary:           utils.SanitizeStrict(gen.Summary),
		CumulativeSummary: utils.SanitizeStrict(gen.CumulativeSummary),
		IsFinale:          gen.IsFinale,
	}

	finished := gen.IsFinale || continuationType == "finalize"
	err = w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(episode).Error; err != nil {
			return err
		}
		if finished {
			return tx.Model(&models.Book{}).
				Where("id = ?", bookID).
				Update("status", models.SeriesCompleted).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &EpisodeResult{Episode: episode, Finished: finished}, nil
}
