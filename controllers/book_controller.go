package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/odokhq/odok/config"
	"github.com/odokhq/odok/datekey"
	"github.com/odokhq/odok/ledger"
	"github.com/odokhq/odok/leveling"
	"github.com/odokhq/odok/models"
	"github.com/odokhq/odok/publish"
	"github.com/odokhq/odok/quota"
	"github.com/odokhq/odok/slots"
	"github.com/odokhq/odok/utils"
)

// BookController manages publication, reading, and engagement of books.
type BookController struct {
	db        *gorm.DB
	ledger    *ledger.Ledger
	workflow  *publish.Workflow
	allocator *slots.Allocator
}

// NewBookController creates a new controller instance.
func NewBookController(db *gorm.DB, lg *ledger.Ledger, wf *publish.Workflow, alloc *slots.Allocator) *BookController {
	return &BookController{db: db, ledger: lg, workflow: wf, allocator: alloc}
}

// Publish runs the full publication workflow for the authenticated user.
// The generation call may take minutes; the client may stop waiting but a
// cancelled wait does not abort work already delegated to the backend.
func (b *BookController) Publish(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		Category         string   `json:"category" binding:"required"`
		SubCategory      string   `json:"sub_category"`
		Genre            string   `json:"genre"`
		Keywords         []string `json:"keywords"`
		Title            string   `json:"title"`
		EndingStyle      string   `json:"ending_style"`
		Tone             string   `json:"tone"`
		Mood             string   `json:"mood"`
		IsSeries         bool     `json:"is_series"`
		PaymentConfirmed bool     `json:"payment_confirmed"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid request payload")
		return
	}

	draft := &publish.Draft{
		Category:    strings.TrimSpace(req.Category),
		SubCategory: strings.TrimSpace(req.SubCategory),
		Genre:       utils.SanitizeStrict(strings.TrimSpace(req.Genre)),
		Title:       utils.SanitizeStrict(strings.TrimSpace(req.Title)),
		EndingStyle: req.EndingStyle,
		Tone:        req.Tone,
		Mood:        req.Mood,
		IsSeries:    req.IsSeries,
	}
	for _, kw := range req.Keywords {
		if cleaned := utils.SanitizeStrict(strings.TrimSpace(kw)); cleaned != "" {
			draft.Keywords = append(draft.Keywords, cleaned)
		}
	}

	result, err := b.workflow.Publish(ctx.Request.Context(), userID, draft, req.PaymentConfirmed)
	if err != nil {
		b.renderPublishError(ctx, err)
		return
	}

	utils.InvalidateByPrefix(utils.BookListPrefix)

	utils.Created(ctx, gin.H{
		"book":       result.Book,
		"paid_cost":  result.PaidCost,
		"leveled_up": result.LeveledUp,
		"new_level":  result.NewLevel,
	})
}

func (b *BookController) renderPublishError(ctx *gin.Context, err error) {
	var paymentErr *publish.PaymentRequiredError
	var slotErr *slots.SlotTakenError
	var genErr *publish.GenerationError

	switch {
	case errors.Is(err, publish.ErrQuotaExceeded):
		utils.Error(ctx, http.StatusForbidden, 40330, err.Error())
	case errors.As(err, &paymentErr):
		utils.Respond(ctx, http.StatusPaymentRequired, 40230, paymentErr.Error(), gin.H{
			"required_ink": paymentErr.Cost,
		})
	case errors.Is(err, ledger.ErrInsufficientInk):
		utils.Error(ctx, http.StatusPaymentRequired, 40231, err.Error())
	case errors.As(err, &slotErr):
		utils.Respond(ctx, http.StatusConflict, 40930, slotErr.Error(), gin.H{
			"slot_key":    slotErr.SlotKey,
			"book_id":     slotErr.BookID,
			"author_name": slotErr.AuthorName,
		})
	case errors.Is(err, slots.ErrInvalidCategory):
		utils.Error(ctx, http.StatusBadRequest, 40021, err.Error())
	case errors.Is(err, publish.ErrPublishInProgress):
		utils.Error(ctx, http.StatusConflict, 40931, err.Error())
	case errors.As(err, &genErr):
		utils.Error(ctx, http.StatusBadGateway, 50230, "책 생성에 실패했어요. 다시 시도해 주세요")
	case errors.Is(err, ledger.ErrConflict):
		utils.Error(ctx, http.StatusConflict, 40932, err.Error())
	default:
		utils.Error(ctx, http.StatusInternalServerError, 50031, "failed to publish book")
	}
}

// Quota reports the caller's remaining daily writes and whether the next one
// costs ink.
func (b *BookController) Quota(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var user models.User
	if err := b.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}

	todayKey := datekey.Today(config.Get().Location())
	status := quota.Resolve(&user, todayKey)

	resp := gin.H{
		"date_key":            todayKey,
		"remaining_writes":    status.RemainingWrites,
		"requires_paid_write": status.RequiresPaidWrite,
	}
	if status.RequiresPaidWrite {
		resp["next_write_cost"] = leveling.ExtraWriteInkCost(leveling.LevelFromXP(user.XP))
	}
	utils.Success(ctx, resp)
}

// List returns paginated books with optional category filter. Unfiltered and
// category pages are cached.
func (b *BookController) List(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	category := strings.TrimSpace(ctx.Query("category"))

	cacheKey := utils.BookListKey(category, page, pageSize)
	if raw, ok := utils.CacheGetBytes(cacheKey); ok {
		ctx.Data(200, "application/json", raw)
		return
	}

	var books []models.Book
	var total int64

	query := b.db.Order("created_at DESC")
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Model(&models.Book{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50021, "failed to count books")
		return
	}
	if err := query.Offset((page - 1) * pageSize).Limit(pageSize).Find(&books).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50022, "failed to list books")
		return
	}

	// Content stays out of list payloads; readers pay ink to open a book.
	for i := range books {
		books[i].Content = ""
	}

	payload := gin.H{
		"items": books,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	}
	wrapper := utils.JSONResponse{Code: 0, Message: "success", Data: payload}
	utils.CacheSetJSON(cacheKey, wrapper, time.Hour)
	utils.Success(ctx, payload)
}

// Get returns one book with its episodes. Opening another author's book for
// the first time costs level-priced ink and records an unlock; later opens of
// the same book are free. Every open counts a view.
func (b *BookController) Get(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	bookID := ctx.Param("id")

	var book models.Book
	if err := b.db.Preload("Episodes", func(db *gorm.DB) *gorm.DB {
		return db.Order("ep_number ASC")
	}).First(&book, "id = ?", bookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.Error(ctx, http.StatusNotFound, 40402, "book not found")
			return
		}
		utils.Error(ctx, http.StatusInternalServerError, 50023, "failed to load book")
		return
	}

	charged := 0
	if book.AuthorID != userID {
		paid, cost, err := b.chargeRead(ctx, userID, &book)
		if err != nil {
			if errors.Is(err, ledger.ErrInsufficientInk) {
				utils.Error(ctx, http.StatusPaymentRequired, 40232, err.Error())
				return
			}
			utils.Error(ctx, http.StatusInternalServerError, 50024, "failed to unlock book")
			return
		}
		if paid {
			charged = cost
		}
	}

	if err := b.db.Model(&models.Book{}).Where("id = ?", book.ID).
		UpdateColumn("views", gorm.Expr("views + 1")).Error; err != nil {
		utils.Sugar.Warnf("failed to count view for book %s: %v", book.ID, err)
	}

	utils.Success(ctx, gin.H{"book": book, "charged_ink": charged})
}

// chargeRead deducts the read cost once per (reader, book) pair.
func (b *BookController) chargeRead(ctx *gin.Context, userID uint, book *models.Book) (bool, int, error) {
	var unlock models.BookUnlock
	err := b.db.Where("user_id = ? AND book_id = ?", userID, book.ID).First(&unlock).Error
	if err == nil {
		return false, 0, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, 0, err
	}

	var reader models.User
	if err := b.db.First(&reader, userID).Error; err != nil {
		return false, 0, err
	}
	cost := leveling.ReadInkCost(leveling.LevelFromXP(reader.XP))

	if _, err := b.ledger.Deduct(ctx.Request.Context(), userID, cost, book.ID); err != nil {
		return false, 0, err
	}

	if err := b.db.Create(&models.BookUnlock{UserID: userID, BookID: book.ID}).Error; err != nil {
		// Duplicate from a racing open: the book is unlocked either way.
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			utils.Sugar.Errorw("failed to record book unlock after charging",
				"user_id", userID, "book_id", book.ID, "error", err)
		}
	}
	return true, cost, nil
}

// AddEpisode continues an ongoing series with the next generated episode.
func (b *BookController) AddEpisode(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		ContinuationType string `json:"continuation_type"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40022, "invalid request payload")
		return
	}
	if req.ContinuationType == "" {
		req.ContinuationType = "ongoing"
	}

	result, err := b.workflow.AddEpisode(ctx.Request.Context(), userID, ctx.Param("id"), req.ContinuationType)
	if err != nil {
		var genErr *publish.GenerationError
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			utils.Error(ctx, http.StatusNotFound, 40402, "book not found")
		case errors.Is(err, publish.ErrNotSeries):
			utils.Error(ctx, http.StatusBadRequest, 40023, err.Error())
		case errors.Is(err, publish.ErrNotAuthor):
			utils.Error(ctx, http.StatusForbidden, 40331, err.Error())
		case errors.Is(err, publish.ErrSeriesCompleted):
			utils.Error(ctx, http.StatusConflict, 40933, err.Error())
		case errors.Is(err, publish.ErrPublishInProgress):
			utils.Error(ctx, http.StatusConflict, 40931, err.Error())
		case errors.As(err, &genErr):
			utils.Error(ctx, http.StatusBadGateway, 50230, "다음 화 생성에 실패했어요. 다시 시도해 주세요")
		default:
			utils.Error(ctx, http.StatusInternalServerError, 50032, "failed to add episode")
		}
		return
	}

	utils.Created(ctx, gin.H{"episode": result.Episode, "finished": result.Finished})
}

// engagement counters are independent, eventually-consistent increments.
var engagementColumns = map[string]string{
	"like":     "likes",
	"favorite": "favorites",
	"complete": "completions",
}

// Engage increments one engagement counter for a book.
func (b *BookController) Engage(ctx *gin.Context) {
	column, ok := engagementColumns[ctx.Param("action")]
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40024, "unknown engagement action")
		return
	}

	res := b.db.Model(&models.Book{}).Where("id = ?", ctx.Param("id")).
		UpdateColumn(column, gorm.Expr(column+" + 1"))
	if res.Error != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50025, "failed to update counter")
		return
	}
	if res.RowsAffected == 0 {
		utils.Error(ctx, http.StatusNotFound, 40402, "book not found")
		return
	}
	utils.Success(ctx, gin.H{"message": "ok"})
}

func parsePagination(pageStr, sizeStr string) (int, int) {
	page := 1
	pageSize := 10
	if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
		page = p
	}
	if s, err := strconv.Atoi(sizeStr); err == nil && s > 0 && s <= 100 {
		pageSize = s
	}
	return page, pageSize
}
