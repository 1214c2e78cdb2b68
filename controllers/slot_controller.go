package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/odokhq/odok/config"
	"github.com/odokhq/odok/datekey"
	"github.com/odokhq/odok/slots"
	"github.com/odokhq/odok/utils"
)

// SlotController reports daily slot availability.
type SlotController struct {
	allocator *slots.Allocator
}

// NewSlotController creates a new controller instance.
func NewSlotController(db *gorm.DB) *SlotController {
	return &SlotController{allocator: slots.NewAllocator(db)}
}

// Today returns the availability and occupant of every daily slot. This is
// the cheap pre-check surface the client uses before starting a publish; the
// authoritative decision still happens inside the publish workflow.
func (s *SlotController) Today(ctx *gin.Context) {
	todayKey := datekey.Today(config.Get().Location())

	result := make([]gin.H, 0, len(slots.SlotKeys()))
	for _, key := range slots.SlotKeys() {
		occ, err := s.allocator.Occupant(ctx.Request.Context(), todayKey, key)
		if err != nil {
			utils.Error(ctx, http.StatusInternalServerError, 50050, "failed to check slots")
			return
		}
		entry := gin.H{"slot_key": key, "available": occ == nil}
		if occ != nil {
			entry["occupant"] = occ
		}
		result = append(result, entry)
	}

	utils.Success(ctx, gin.H{"date_key": todayKey, "slots": result})
}
