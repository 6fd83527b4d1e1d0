package store

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("STORE_NOT_FOUND")

// DocumentRegistry 管 title → docID 的注册表。docID 用 ULID，
// 按时间有序，适合做文件存储里的目录名。
type DocumentRegistry struct{ db *gorm.DB }

func NewDocumentRegistry(db *gorm.DB) *DocumentRegistry {
	return &DocumentRegistry{db: db}
}

func (s *DocumentRegistry) GetDocumentID(ctx context.Context, title string) (string, error) {
	var d Document
	err := s.db.WithContext(ctx).Select("id").Where("title = ?", title).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return d.ID, nil
}

// CreateDocument 注册一份新文档并返回生成的 docID。
// title 撞了唯一索引时不算错误，直接返回已有文档的 ID（幂等创建）。
func (s *DocumentRegistry) CreateDocument(ctx context.Context, ownerID uint64, title string) (string, error) {
	d := Document{
		ID:      ulid.Make().String(),
		OwnerID: ownerID,
		Title:   title,
	}
	err := s.db.WithContext(ctx).Create(&d).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return s.GetDocumentID(ctx, title)
		}
		return "", err
	}
	return d.ID, nil
}

// UserDirectory 只做 username → userID 的查询，注册/鉴权在别的服务。
type UserDirectory struct{ db *gorm.DB }

func NewUserDirectory(db *gorm.DB) *UserDirectory {
	return &UserDirectory{db: db}
}

func (s *UserDirectory) GetUserID(ctx context.Context, username string) (uint64, error) {
	var u User
	err := s.db.WithContext(ctx).Select("id").Where("username = ?", username).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}
