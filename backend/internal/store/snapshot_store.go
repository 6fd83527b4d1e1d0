package store

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type SnapshotStore struct{ db *gorm.DB }

func NewSnapshotStore(db *gorm.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveDocumentSnapshot 归档某修订的纯文本。同一 (docID, revNum) 重复
// 归档撞唯一索引（MySQL 1062），快照内容对同一修订恒定，视为成功。
func (s *SnapshotStore) SaveDocumentSnapshot(ctx context.Context, docID string, revNum int, content string) error {
	snap := DocumentSnapshot{
		DocumentID: docID,
		RevNum:     revNum,
		Content:    content,
	}
	if err := s.db.WithContext(ctx).Create(&snap).Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return err
	}
	return nil
}

// LatestSnapshot 取某文档修订号最大的一份归档。
func (s *SnapshotStore) LatestSnapshot(ctx context.Context, docID string) (DocumentSnapshot, error) {
	var snap DocumentSnapshot
	err := s.db.WithContext(ctx).
		Where("document_id = ?", docID).
		Order("rev_num DESC").
		First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DocumentSnapshot{}, ErrNotFound
	}
	if err != nil {
		return DocumentSnapshot{}, err
	}
	return snap, nil
}
