package store

import (
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 表结构
type Document struct {
	ID        string `gorm:"primaryKey;size:36"`
	OwnerID   uint64 `gorm:"index;not null"`
	Title     string `gorm:"size:255;uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DocumentSnapshot struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`
	// 同一文档同一版本只保留一份
	DocumentID string `gorm:"size:36;not null;uniqueIndex:uk_doc_rev,priority:1"`
	Revision   uint64 `gorm:"not null;uniqueIndex:uk_doc_rev,priority:2"`
	Content    string `gorm:"type:longtext;not null"`
	CreatedAt  time.Time
}

func (Document) TableName() string         { return "documents" }
func (DocumentSnapshot) TableName() string { return "document_snapshots" }

func InitMySQL(dsn string, verbose bool) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if verbose {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}
	db, err := gorm.Open(gormmysql.Open(dsn), cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Document{}, &DocumentSnapshot{})
}

// 1062 = duplicate key
func isDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}
