package postgres

import (
	"log"

	"github.com/voltgate/ev-session-service/internal/config"
	"github.com/voltgate/ev-session-service/internal/infrastructure/postgres/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func MustInitDB(cfg *config.SessionConfig) *gorm.DB {
	dsn := cfg.SessionDB.Dsn
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to init db: %v\n", err.Error())
	}

	db.AutoMigrate(&models.SessionModel{}, &models.AuditLogModel{})

	return db
}
