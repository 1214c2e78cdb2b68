package publish

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/odokhq/odok/ledger"
	"github.com/odokhq/odok/models"
	"github.com/odokhq/odok/slots"
	"github.com/odokhq/odok/testutils"
)

type fakeGenerator struct {
	bookErr    error
	episodeErr error
	calls      int
	finale     bool
}

func (f *fakeGenerator) GenerateBook(ctx context.Context, req *BookRequest) (*GeneratedBook, error) {
	f.calls++
	if f.bookErr != nil {
		return nil, f.bookErr
	}
	return &GeneratedBook{
		Title:   "생성된 제목",
		Content: "본문입니다.",
		Summary: "요약입니다.",
	}, nil
}

func (f *fakeGenerator) GenerateSeriesEpisode(ctx context.Context, req *EpisodeRequest) (*GeneratedEpisode, error) {
	f.calls++
	if f.episodeErr != nil {
		return nil, f.episodeErr
	}
	return &GeneratedEpisode{
		Content:           "다음 화 본문",
		Summary:           "다음 화 요약",
		CumulativeSummary: req.CumulativeSummary + " +",
		IsFinale:          f.finale,
	}, nil
}

func fixedNow() time.Time {
	return time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)
}

func newTestWorkflow(t *testing.T, gen Generator) (*Workflow, *gorm.DB) {
	db := testutils.InitMemoryDB(t)
	lg := ledger.New(db, time.UTC).WithNow(fixedNow)
	alloc := slots.NewAllocator(db)
	wf := NewWorkflow(db, lg, alloc, gen, nil, time.UTC, nil).WithNow(fixedNow)
	return wf, db
}

func essayDraft() *Draft {
	return &Draft{Category: "essay", Genre: "일상", Title: "저녁 무렵"}
}

func TestPublishFirstWriteFree(t *testing.T) {
	gen := &fakeGenerator{}
	wf, db := newTestWorkflow(t, gen)
	user := testutils.SetupUser(t, db, "minji", 10, 0)

	result, err := wf.Publish(context.Background(), user.ID, essayDraft(), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.PaidCost != 0 {
		t.Errorf("first daily write should be free, paid %d", result.PaidCost)
	}
	if result.Book.SlotKey != "essay" || result.Book.DateKey != "2024-01-02" {
		t.Errorf("book slot anchoring wrong: %s/%s", result.Book.SlotKey, result.Book.DateKey)
	}
	if result.Book.Title != "생성된 제목" {
		t.Errorf("title = %q, expected the generated title", result.Book.Title)
	}

	got := testutils.ReloadUser(t, db, user.ID)
	if got.Ink != 10 {
		t.Errorf("ink = %d, free write must not charge", got.Ink)
	}
	if got.DailyWriteCount != 1 || got.LastBookCreatedDate == nil || *got.LastBookCreatedDate != "2024-01-02" {
		t.Errorf("counter not recorded: count=%d date=%v", got.DailyWriteCount, got.LastBookCreatedDate)
	}
}

func TestPublishSecondWriteNeedsConfirmation(t *testing.T) {
	gen := &fakeGenerator{}
	wf, db := newTestWorkflow(t, gen)
	user := testutils.SetupUser(t, db, "minji", 10, 0)

	if _, err := wf.Publish(context.Background(), user.ID, essayDraft(), false); err != nil {
		t.Fatal(err)
	}

	// Second write without confirmation pauses at the payment prompt.
	_, err := wf.Publish(context.Background(), user.ID, &Draft{Category: "novel"}, false)
	var payErr *PaymentRequiredError
	if !errors.As(err, &payErr) {
		t.Fatalf("expected PaymentRequiredError, got %v", err)
	}
	if payErr.Cost != 5 {
		t.Errorf("cost = %d, expected 5 below level 21", payErr.Cost)
	}
	if gen.calls != 1 {
		t.Errorf("generation ran %d times; the prompt must happen before generating", gen.calls)
	}
}

func TestPublishSecondWritePaid(t *testing.T) {
	gen := &fakeGenerator{}
	wf, db := newTestWorkflow(t, gen)
	user := testutils.SetupUser(t, db, "minji", 10, 0)

	if _, err := wf.Publish(context.Background(), user.ID, essayDraft(), false); err != nil {
		t.Fatal(err)
	}

	result, err := wf.Publish(context.Background(), user.ID, &Draft{Category: "novel"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if result.PaidCost != 5 {
		t.Errorf("paid cost = %d, expected 5", result.PaidCost)
	}

	got := testutils.ReloadUser(t, db, user.ID)
	if got.Ink != 5 {
		t.Errorf("ink = %d, expected 5 after paying for the second write", got.Ink)
	}
	if got.XP != 50 {
		t.Errorf("xp = %d, expected 50 from spending 5 ink", got.XP)
	}
	if got.DailyWriteCount != 2 {
		t.Errorf("daily write count = %d, expected 2", got.DailyWriteCount)
	}
}

func TestPublishQuotaExceeded(t *testing.T) {
	gen := &fakeGenerator{}
	wf, db := newTestWorkflow(t, gen)
	user := testutils.SetupUser(t, db, "minji", 100, 0)

	if _, err := wf.Publish(context.Background(), user.ID, essayDraft(), false); err != nil {
		t.Fatal(err)
	}
	if _, err := wf.Publish(context.Background(), user.ID, &Draft{Category: "novel"}, true); err != nil {
		t.Fatal(err)
	}

	_, err := wf.Publish(context.Background(), user.ID, &Draft{Category: "humanities"}, true)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded on third write, got %v", err)
	}
	if gen.calls != 2 {
		t.Errorf("generation ran %d times, expected 2", gen.calls)
	}
}

func TestPublishQuotaResetsNextDay(t *testing.T) {
	gen := &fakeGenerator{}
	wf, db := newTestWorkflow(t, gen)
	user := testutils.SetupUser(t, db, "minji", 10, 0)

	yesterday := "2024-01-01"
	testutils.MustExec(t, db.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"daily_write_count":      2,
		"last_book_created_date": yesterday,
	}), "backdating counter")

	// The stale counter from yesterday must not block today's free write.
	result, err := wf.Publish(context.Background(), user.ID, essayDraft(), false)
	if err != nil {
		t.Fatal(err)
	}
	if result.PaidCost != 0 {
		t.Errorf("write after rollover should be free, paid %d", result.PaidCost)
	}
}

func TestPublishInsufficientInk(t *testing.T) {
	gen := &fakeGenerator{}
	wf, db := newTestWorkflow(t, gen)
	user := testutils.SetupUser(t, db, "minji", 3, 0)

	if _, err := wf.Publish(context.Background(), user.ID, essayDraft(), false); err != nil {
		t.Fatal(err)
	}

	_, err := wf.Publish(context.Background(), user.ID, &Draft{Category: "novel"}, true)
	if !errors.Is(err, ledger.ErrInsufficientInk) {
		t.Fatalf("expected ErrInsufficientInk, got %v", err)
	}

	got := testutils.ReloadUser(t, db, user.ID)
	if got.Ink != 3 {
		t.Errorf("ink = %d, failed payment must not charge", got.Ink)
	}
}

func TestPublishSlotTaken(t *testing.T) {
	gen := &fakeGenerator{}
	wf, db := newTestWorkflow(t, gen)
	first := testutils.SetupUser(t, db, "first", 10, 0)
	second := testutils.SetupUser(t, db, "second", 10, 0)

	if _, err := wf.Publish(context.Background(), first.ID, essayDraft(), false); err != nil {
		t.Fatal(err)
	}

	_, err := wf.Publish(context.Background(), second.ID, essayDraft(), false)
	var taken *slots.SlotTakenError
	if !errors.As(err, &taken) {
		t.Fatalf("expected SlotTakenError, got %v", err)
	}
	if taken.AuthorName != "first" {
		t.Errorf("error names %q, expected the occupying author", taken.AuthorName)
	}

	var count int64
	testutils.MustExec(t, db.Model(&models.Book{}).Count(&count), "counting books")
	if count != 1 {
		t.Errorf("book count = %d, the losing attempt must not create a book", count)
	}
}

func TestPublishSlotTakenAfterPaymentNoRefund(t *testing.T) {
	gen := &fakeGenerator{}
	wf, db := newTestWorkflow(t, gen)
	occupant := testutils.SetupUser(t, db, "occupant", 10, 0)
	payer := testutils.SetupUser(t, db, "payer", 10, 0)

	// Occupy today's novel slot.
	if _, err := wf.Publish(context.Background(), occupant.ID, &Draft{Category: "novel"}, false); err != nil {
		t.Fatal(err)
	}
	// Burn the payer's free write on essay.
	if _, err := wf.Publish(context.Background(), payer.ID, essayDraft(), false); err != nil {
		t.Fatal(err)
	}

	// The paid second attempt collides on the novel slot after payment.
	_, err := wf.Publish(context.Background(), payer.ID, &Draft{Category: "novel"}, true)
	var taken *slots.SlotTakenError
	if !errors.As(err, &taken) {
		t.Fatalf("expected SlotTakenError, got %v", err)
	}

	// The spend is deliberately not refunded, only recorded.
	got := testutils.ReloadUser(t, db, payer.ID)
	if got.Ink != 5 {
		t.Errorf("ink = %d, expected 5 (no refund)", got.Ink)
	}
	var lossCount int64
	testutils.MustExec(t, db.Model(&models.InkTransaction{}).
		Where("user_id = ? AND type = ?", payer.ID, models.InkTxLostOnSlot).
		Count(&lossCount), "counting loss rows")
	if lossCount != 1 {
		t.Errorf("loss audit rows = %d, expected 1", lossCount)
	}
}

func TestPublishSeriesClaimAndRollback(t *testing.T) {
	gen := &fakeGenerator{bookErr: errors.New("backend timeout")}
	wf, db := newTestWorkflow(t, gen)
	user := testutils.SetupUser(t, db, "minji", 10, 0)

	draft := &Draft{Category: "webnovel", IsSeries: true, Title: "연재 시작"}
	_, err := wf.Publish(context.Background(), user.ID, draft, false)
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %v", err)
	}

	// The claim must be rolled back so the slot is not wasted for the day.
	var claims int64
	testutils.MustExec(t, db.Model(&models.SlotClaim{}).Count(&claims), "counting claims")
	if claims != 0 {
		t.Fatalf("claims = %d, expected rollback after generation failure", claims)
	}

	// Retry succeeds and leaves the claim in place.
	gen.bookErr = nil
	// The failed attempt reached neither commit nor the counter, so the free
	// write is still available for the retry.
	result, err := wf.Publish(context.Background(), user.ID, draft, false)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Book.IsSeries || result.Book.Status != models.SeriesOngoing {
		t.Errorf("series book state wrong: isSeries=%v status=%s", result.Book.IsSeries, result.Book.Status)
	}

	testutils.MustExec(t, db.Model(&models.SlotClaim{}).Count(&claims), "counting claims")
	if claims != 1 {
		t.Errorf("claims = %d, success must leave the claim in place", claims)
	}

	var episodes int64
	testutils.MustExec(t, db.Model(&models.Episode{}).
		Where("book_id = ?", result.Book.ID).Count(&episodes), "counting episodes")
	if episodes != 1 {
		t.Errorf("episodes = %d, series publish must write episode 1", episodes)
	}
}

func TestPublishSeriesSlotSharedAcrossSubGenres(t *testing.T) {
	gen := &fakeGenerator{}
	wf, db := newTestWorkflow(t, gen)
	first := testutils.SetupUser(t, db, "first", 10, 0)
	second := testutils.SetupUser(t, db, "second", 10, 0)

	if _, err := wf.Publish(context.Background(), first.ID, &Draft{Category: "webnovel", IsSeries: true}, false); err != nil {
		t.Fatal(err)
	}

	// A novel-style series still collides with the webnovel-style one.
	_, err := wf.Publish(context.Background(), second.ID, &Draft{Category: "novel", IsSeries: true}, false)
	var taken *slots.SlotTakenError
	if !errors.As(err, &taken) {
		t.Fatalf("expected SlotTakenError across series sub-genres, got %v", err)
	}
}

func TestPublishInflightGuard(t *testing.T) {
	gen := &fakeGenerator{}
	db := testutils.InitMemoryDB(t)
	lg := ledger.New(db, time.UTC).WithNow(fixedNow)
	alloc := slots.NewAllocator(db)

	guard := &fakeInflight{held: map[string]bool{}}
	wf := NewWorkflow(db, lg, alloc, gen, guard, time.UTC, nil).WithNow(fixedNow)
	user := testutils.SetupUser(t, db, "minji", 10, 0)

	guard.held[fmt.Sprintf("publish:%d", user.ID)] = true
	_, err := wf.Publish(context.Background(), user.ID, essayDraft(), false)
	if !errors.Is(err, ErrPublishInProgress) {
		t.Fatalf("expected ErrPublishInProgress, got %v", err)
	}
}

type fakeInflight struct {
	held map[string]bool
}

func (f *fakeInflight) TryAcquire(key string, ttl time.Duration) bool {
	if f.held[key] {
		return false
	}
	f.held[key] = true
	return true
}

func (f *fakeInflight) Release(key string) { delete(f.held, key) }

func TestAddEpisode(t *testing.T) {
	gen := &fakeGenerator{}
	wf, db := newTestWorkflow(t, gen)
	author := testutils.SetupUser(t, db, "author", 10, 0)
	other := testutils.SetupUser(t, db, "other", 10, 0)

	result, err := wf.Publish(context.Background(), author.ID, &Draft{Category: "webnovel", IsSeries: true}, false)
	if err != nil {
		t.Fatal(err)
	}
	bookID := result.Book.ID

	// Only the author can continue the series.
	if _, err := wf.AddEpisode(context.Background(), other.ID, bookID, "ongoing"); !errors.Is(err, ErrNotAuthor) {
		t.Fatalf("expected ErrNotAuthor, got %v", err)
	}

	ep, err := wf.AddEpisode(context.Background(), author.ID, bookID, "ongoing")
	if err != nil {
		t.Fatal(err)
	}
	if ep.Episode.EpNumber != 2 {
		t.Errorf("ep number = %d, expected 2", ep.Episode.EpNumber)
	}
	if ep.Finished {
		t.Error("ongoing continuation must not finish the series")
	}

	// Finalize closes the series.
	gen.finale = true
	ep, err = wf.AddEpisode(context.Background(), author.ID, bookID, "finalize")
	if err != nil {
		t.Fatal(err)
	}
	if !ep.Finished {
		t.Error("finalize must finish the series")
	}

	var book models.Book
	testutils.MustExec(t, db.First(&book, "id = ?", bookID), "reloading book")
	if book.Status != models.SeriesCompleted {
		t.Errorf("status = %s, expected completed", book.Status)
	}

	// A completed series takes no more episodes.
	if _, err := wf.AddEpisode(context.Background(), author.ID, bookID, "ongoing"); !errors.Is(err, ErrSeriesCompleted) {
		t.Fatalf("expected ErrSeriesCompleted, got %v", err)
	}
}

func TestAddEpisodeNonSeries(t *testing.T) {
	gen := &fakeGenerator{}
	wf, db := newTestWorkflow(t, gen)
	author := testutils.SetupUser(t, db, "author", 10, 0)

	result, err := wf.Publish(context.Background(), author.ID, essayDraft(), false)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := wf.AddEpisode(context.Background(), author.ID, result.Book.ID, "ongoing"); !errors.Is(err, ErrNotSeries) {
		t.Fatalf("expected ErrNotSeries, got %v", err)
	}
}
