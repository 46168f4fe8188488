package repository

import (
	"context"

	"gorm.io/gorm"

	"FamilyWell/internal/model"
)

type FamilyRepository struct {
	db *gorm.DB
}

func (r *FamilyRepository) GetByID(ctx context.Context, id int64) (*model.Family, error) {
	var family model.Family
	if err := r.db.WithContext(ctx).First(&family, id).Error; err != nil {
		return nil, err
	}
	return &family, nil
}

// ListActive 所有活跃家庭
func (r *FamilyRepository) ListActive(ctx context.Context) ([]model.Family, error) {
	var families []model.Family
	err := r.db.WithContext(ctx).
		Where("status = ?", model.FamilyStatusActive).
		Order("id").
		Find(&families).Error
	return families, err
}

// AdminOf 家庭管理员，未设置管理员时返回 gorm.ErrRecordNotFound
func (r *FamilyRepository) AdminOf(ctx context.Context, family *model.Family) (*model.User, error) {
	if family.AdminID == nil {
		return nil, gorm.ErrRecordNotFound
	}
	var admin model.User
	if err := r.db.WithContext(ctx).First(&admin, *family.AdminID).Error; err != nil {
		return nil, err
	}
	return &admin, nil
}

// AdminOfFamily 按家庭 ID 查询管理员
func (r *FamilyRepository) AdminOfFamily(ctx context.Context, familyID int64) (*model.User, error) {
	family, err := r.GetByID(ctx, familyID)
	if err != nil {
		return nil, err
	}
	return r.AdminOf(ctx, family)
}
