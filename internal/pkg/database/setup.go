package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/env"
	"github.com/akshayverma3685/SmartX-Assistance-Bot/internal/pkg/store"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var DB *gorm.DB

func GetDB() *gorm.DB {
	return DB
}

// Dialector picks the gorm driver from DB_DIALECT. Timestamps are always stored in UTC.
func Dialector() (gorm.Dialector, string, error) {
	dialect := strings.ToLower(env.GetEnv("DB_DIALECT", "mysql"))
	switch dialect {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_PORT", "3306"),
			env.GetEnv("DB_NAME", ""),
		)
		return mysql.New(mysql.Config{
			DSN:                       dsn,
			DefaultStringSize:         256,
			SkipInitializeWithVersion: false,
		}), dialect, nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_NAME", ""),
			env.GetEnv("DB_PORT", "5432"),
			env.GetEnv("DB_SSLMODE", "disable"),
		)
		return postgres.Open(dsn), dialect, nil
	case "sqlite":
		path := env.GetEnv("DB_PATH", "smartx.db")
		return sqlite.Open(path + "?_busy_timeout=5000&_txlock=immediate"), dialect, nil
	default:
		return nil, dialect, fmt.Errorf("unsupported DB_DIALECT %q", dialect)
	}
}

// SetupDatabase connects with retries and optionally auto-migrates the schema.
func SetupDatabase() error {
	dialector, dialect, err := Dialector()
	if err != nil {
		return err
	}

	cfg := &gorm.Config{TranslateError: true}
	if !env.IsDev() {
		cfg.Logger = logger.Default.LogMode(logger.Warn)
	}

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(dialector, cfg)
		if err == nil {
			break
		}
		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return fmt.Errorf("connect %s database: %w", dialect, err)
	}

	if dialect == "sqlite" {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if env.GetEnvBool("DB_AUTO_MIGRATE", false) {
		if err := store.AutoMigrate(DB); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("[Database] Schema auto-migrated")
	}

	log.Infof("[Database] Connected (dialect: %s)", dialect)
	return nil
}
