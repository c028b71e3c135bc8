// Package database 负责初始化关系型数据库与 Redis 连接。
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"section-studio-go/internal/config"
	"section-studio-go/pkg/log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB 根据配置初始化全局数据库连接，失败时直接退出。
func InitDB(cfg config.DatabaseConfig) {
	db, err := Open(cfg)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	DB = db
	log.Infof("%s database connected successfully", cfg.Driver)
}

// Open 按 driver 打开 MySQL 或 SQLite 连接。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	switch cfg.Driver {
	case "", "mysql":
		return OpenMySQL(cfg.MySQL.DSN)
	case "sqlite":
		return OpenSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenMySQL 打开 MySQL 连接并配置连接池。
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)           // 设置空闲连接池中连接的最大数量
	sqlDB.SetMaxOpenConns(100)          // 设置打开数据库连接的最大数量
	sqlDB.SetConnMaxLifetime(time.Hour) // 设置了连接可复用的最大时间
	return db, nil
}

// OpenSQLite 打开本地 SQLite 文件，用于开发环境和测试。
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, os.ModePerm)
	}
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_journal_mode=WAL"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	// SQLite 只允许单写者
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
