package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/approveflow/internal/model/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository 用户仓库
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID 根据ID查找用户
func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// EnsureAndLock 确保用户行存在并加行锁。
// 配额检查前调用：同一用户的“先计数再写入”序列被该行锁串行化，
// 并发提交不会双双越过配额上限。
func (r *UserRepository) EnsureAndLock(ctx context.Context, actor entity.Actor) (*entity.User, error) {
	user := entity.User{
		ID:              actor.ID,
		Email:           actor.Email,
		NormalizedEmail: actor.NormalizedEmail,
		CreatedAt:       time.Now(),
	}
	if err := r.db.WithContext(ctx).
		Where(entity.User{ID: actor.ID}).
		FirstOrCreate(&user).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", actor.ID).
		First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
