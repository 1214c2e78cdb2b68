package main

import (
	"github.com/odokhq/odok/config"
	"github.com/odokhq/odok/models"
	"github.com/odokhq/odok/routes"
	"github.com/odokhq/odok/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{},
		&models.Book{},
		&models.Episode{},
		&models.SlotClaim{},
		&models.InkTransaction{},
		&models.BookUnlock{},
	)

	r := routes.SetupRouter(db)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
