package repository

import (
	"section-studio-go/internal/model"

	"gorm.io/gorm"
)

// Migrate 创建或更新本服务拥有的表结构。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Conversation{}, &model.AISection{})
}
