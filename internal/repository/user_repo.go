package repository

import (
	"context"

	"gorm.io/gorm"

	"nextstep/backend/internal/model"
)

// UserRepository 员工用户数据访问接口（只读，账号由外部认证服务维护）
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	ListByRole(ctx context.Context, roles ...string) ([]model.User, error)
}

// userRepo UserRepository 的 GORM 实现
type userRepo struct {
	db *gorm.DB
}

// NewUserRepo 创建 UserRepository 实例
func NewUserRepo(db *gorm.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).
		Where("user_id = ?", id).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) ListByRole(ctx context.Context, roles ...string) ([]model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("role IN ?", roles).
		Order("created_at ASC").
		Find(&users).Error
	return users, err
}
