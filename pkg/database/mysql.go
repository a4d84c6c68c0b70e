package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"optifish/pkg/config"
	"optifish/pkg/logger"

	mysqldriver "github.com/go-sql-driver/mysql"
	pkgerrors "github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const mysqlDuplicateEntry = 1062

// InitMySQL opens the pool. Times are read and written in UTC.
func InitMySQL(cfg config.MysqlConfig, production bool) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DbName,
	)

	db, err := gorm.Open(mysql.Open(dsn), GormConfig(production))
	if err != nil {
		return nil, pkgerrors.Wrap(err, "open mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "mysql pool")
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Info().Str("host", cfg.Host).Int("pool", cfg.MaxOpenConns).Msg("mysql connected")
	return db, nil
}

// GormConfig is shared with tests so every dialect translates duplicate keys the same way.
func GormConfig(production bool) *gorm.Config {
	level := gormlogger.Info
	if production {
		level = gormlogger.Warn
	}
	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(level),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

// IsDuplicateKey reports a unique constraint violation, translated by gorm or raw from the driver.
func IsDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	// sqlite, when the dialector does not translate
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
