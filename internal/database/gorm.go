package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"whatsapp-inbox/internal/config"
	"whatsapp-inbox/internal/models"
)

// Connect opens the configured database and runs migrations. The
// returned error is fatal to startup; callers wire the *gorm.DB into
// the stores explicitly.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		// Unique-constraint violations are an idempotency signal for
		// the ingestion pipeline; translate them to gorm.ErrDuplicatedKey
		// so the stores can branch on them across drivers.
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(cfg.DBPath), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.DBDriver, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate runs the schema migration plus the constraints AutoMigrate
// cannot express. Also used by tests against in-memory sqlite.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Contact{},
		&models.Conversation{},
		&models.Message{},
		&models.InternalNote{},
		&models.QuickReply{},
	)
	if err != nil {
		return fmt.Errorf("failed to run auto-migration: %w", err)
	}

	// At most one open conversation per contact. Both supported
	// drivers understand partial unique indexes.
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_one_open_per_contact
		ON conversations (contact_id) WHERE status = 'open'`).Error
	if err != nil {
		return fmt.Errorf("failed to create open-conversation index: %w", err)
	}

	return nil
}
