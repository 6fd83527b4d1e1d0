package store

import (
	"time"

	"gorm.io/gorm"
)

// Document 是文档注册表的一行：title → docID 的映射加归属。
// 修订历史不在这张表里，历史的权威在文件存储。
type Document struct {
	ID        string `gorm:"primaryKey;size:32"`
	OwnerID   uint64 `gorm:"index"`
	Title     string `gorm:"uniqueIndex;size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentSnapshot 是某一修订的纯文本归档，(document_id, rev_num) 唯一。
// 只做备份/导出用途。
type DocumentSnapshot struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	DocumentID string `gorm:"size:32;uniqueIndex:idx_doc_rev"`
	RevNum     int    `gorm:"uniqueIndex:idx_doc_rev"`
	Content    string `gorm:"type:longtext"`
	CreatedAt  time.Time
}

type User struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Username  string `gorm:"uniqueIndex;size:64"`
	CreatedAt time.Time
}

// AutoMigrate 建出全部表结构，启动时调用一次。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Document{}, &DocumentSnapshot{}, &User{})
}
