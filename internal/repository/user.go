package repository

import (
	"context"

	"gorm.io/gorm"

	"FamilyWell/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ListByIDs 按 ID 批量查询，结果按 ID 升序
func (r *UserRepository) ListByIDs(ctx context.Context, ids []int64) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("id").
		Find(&users).Error
	return users, err
}

// ListActiveMembers 家庭内的活跃成员，role 为空时不按角色过滤
func (r *UserRepository) ListActiveMembers(ctx context.Context, familyID int64, role model.UserRole) ([]model.User, error) {
	q := r.db.WithContext(ctx).
		Where("family_id = ? AND status = ?", familyID, model.UserStatusActive)
	if role != "" {
		q = q.Where("role = ?", role)
	}

	var users []model.User
	err := q.Order("id").Find(&users).Error
	return users, err
}

// ListActiveInFamily 限定在同一家庭内的活跃用户
func (r *UserRepository) ListActiveInFamily(ctx context.Context, familyID int64, ids []int64) ([]model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("id IN ? AND family_id = ? AND status = ?", ids, familyID, model.UserStatusActive).
		Order("id").
		Find(&users).Error
	return users, err
}

// UpdateContact 只更新传入的列
func (r *UserRepository) UpdateContact(ctx context.Context, userID int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ExistsByPhoneHash 排除 exceptID 之后是否已有用户绑定该手机号
func (r *UserRepository) ExistsByPhoneHash(ctx context.Context, phoneHash string, exceptID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("phone_hash = ? AND id <> ?", phoneHash, exceptID).
		Count(&count).Error
	return count > 0, err
}
