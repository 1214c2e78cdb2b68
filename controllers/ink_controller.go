package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/odokhq/odok/ledger"
	"github.com/odokhq/odok/leveling"
	"github.com/odokhq/odok/models"
	"github.com/odokhq/odok/utils"
)

// InkController exposes the ink economy: attendance rewards, gifts, balance
// and the audit trail.
type InkController struct {
	db     *gorm.DB
	ledger *ledger.Ledger
}

// NewInkController creates a new controller instance.
func NewInkController(db *gorm.DB, lg *ledger.Ledger) *InkController {
	return &InkController{db: db, ledger: lg}
}

// Attendance grants the once-per-day login reward.
func (i *InkController) Attendance(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	result, err := i.ledger.Attendance(ctx.Request.Context(), userID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAlreadyAttended):
			utils.Error(ctx, http.StatusBadRequest, 40040, err.Error())
		case errors.Is(err, ledger.ErrConflict):
			utils.Error(ctx, http.StatusConflict, 40940, err.Error())
		default:
			utils.Error(ctx, http.StatusInternalServerError, 50040, "failed to record attendance")
		}
		return
	}

	utils.Success(ctx, result)
}

// Transfer gifts ink to another author.
func (i *InkController) Transfer(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var req struct {
		ToUserID uint `json:"to_user_id" binding:"required"`
		Amount   int  `json:"amount" binding:"required"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40041, "invalid request payload")
		return
	}

	result, err := i.ledger.Transfer(ctx.Request.Context(), userID, req.ToUserID, req.Amount)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrDonateLocked):
			utils.Error(ctx, http.StatusForbidden, 40340, err.Error())
		case errors.Is(err, ledger.ErrInsufficientInk):
			utils.Error(ctx, http.StatusPaymentRequired, 40240, err.Error())
		case errors.Is(err, ledger.ErrInvalidAmount):
			utils.Error(ctx, http.StatusBadRequest, 40042, "선물 금액은 1-10 잉크예요")
		case errors.Is(err, ledger.ErrSelfTransfer):
			utils.Error(ctx, http.StatusBadRequest, 40043, err.Error())
		case errors.Is(err, ledger.ErrUserNotFound):
			utils.Error(ctx, http.StatusNotFound, 40441, "받는 사람을 찾을 수 없어요")
		case errors.Is(err, ledger.ErrConflict):
			utils.Error(ctx, http.StatusConflict, 40940, err.Error())
		default:
			utils.Error(ctx, http.StatusInternalServerError, 50041, "failed to transfer ink")
		}
		return
	}

	utils.Success(ctx, result)
}

// Status returns the caller's balance, level, grade, and progress.
func (i *InkController) Status(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	var user models.User
	if err := i.db.First(&user, userID).Error; err != nil {
		utils.Error(ctx, http.StatusNotFound, 40401, "user not found")
		return
	}

	utils.Success(ctx, gin.H{
		"ink":              user.Ink,
		"ink_max":          models.InkMax,
		"xp":               user.XP,
		"level":            user.Level,
		"grade":            leveling.GradeInfo(user.Level),
		"xp_to_next_level": leveling.XPToNextLevel(user.XP),
		"level_progress":   leveling.LevelProgressPercent(user.XP),
		"total_ink_spent":  user.TotalInkSpent,
		"can_donate":       leveling.CanDonate(user.Level),
		"attendance_ink":   leveling.AttendanceInk(user.Level),
		"read_cost":        leveling.ReadInkCost(user.Level),
		"extra_write_cost": leveling.ExtraWriteInkCost(user.Level),
	})
}

// Transactions returns the caller's paginated ink audit trail.
func (i *InkController) Transactions(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}

	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))

	var rows []models.InkTransaction
	var total int64
	q := i.db.Where("user_id = ?", userID).Order("created_at DESC")
	if err := q.Model(&models.InkTransaction{}).Count(&total).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50042, "failed to count transactions")
		return
	}
	if err := q.Offset((page - 1) * pageSize).Limit(pageSize).Find(&rows).Error; err != nil {
		utils.Error(ctx, http.StatusInternalServerError, 50043, "failed to list transactions")
		return
	}

	utils.Success(ctx, gin.H{
		"items": rows,
		"pagination": gin.H{
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": int((total + int64(pageSize) - 1) / int64(pageSize)),
		},
	})
}
