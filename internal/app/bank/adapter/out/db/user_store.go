package db

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/JoeShih716/go-bank-api/internal/app/bank/domain"
	"github.com/JoeShih716/go-bank-api/internal/app/bank/usecase"
	"github.com/JoeShih716/go-bank-api/pkg/database"
)

// sqlUser 對應資料庫的 users 表
type sqlUser struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserName  string `gorm:"size:64;uniqueIndex;not null"`
	FirstName string `gorm:"size:128"`
	LastName  string `gorm:"size:128"`
	Email     string `gorm:"size:255"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (*sqlUser) TableName() string {
	return "users"
}

func (r *sqlUser) toDomain() *domain.User {
	return &domain.User{
		ID:        r.ID,
		UserName:  r.UserName,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type UserStore struct {
	client *database.Client
}

func NewUserStore(client *database.Client) *UserStore {
	return &UserStore{client: client}
}

func (s *UserStore) db(ctx context.Context) *gorm.DB {
	return s.client.DB().WithContext(ctx)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *UserStore) GetByUserName(ctx context.Context, userName string) (*domain.User, error) {
	return s.first(ctx, "user_name = ?", userName)
}

func (s *UserStore) first(ctx context.Context, query string, arg any) (*domain.User, error) {
	var record sqlUser
	res := s.db(ctx).Where(query, arg).Limit(1).Find(&record)
	if res.Error != nil {
		return nil, domain.StoreError(res.Error, "get user")
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrUserNotFound
	}
	return record.toDomain(), nil
}

func (s *UserStore) List(ctx context.Context) ([]*domain.User, error) {
	var records []sqlUser
	if err := s.db(ctx).Order("user_name").Find(&records).Error; err != nil {
		return nil, domain.StoreError(err, "list users")
	}
	users := make([]*domain.User, 0, len(records))
	for i := range records {
		users = append(users, records[i].toDomain())
	}
	return users, nil
}

func (s *UserStore) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	var count int64
	err := s.db(ctx).Model(&sqlUser{}).
		Where("id = ? OR user_name = ?", user.ID, user.UserName).
		Count(&count).Error
	if err != nil {
		return nil, domain.StoreError(err, "create user")
	}
	if count > 0 {
		return nil, domain.ErrUserAlreadyExists
	}

	record := &sqlUser{
		ID:        user.ID,
		UserName:  user.UserName,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	if err := s.db(ctx).Create(record).Error; err != nil {
		return nil, translate(err, domain.ErrUserAlreadyExists, "create user")
	}
	return record.toDomain(), nil
}

// Update 更新姓名與 email；MySQL 的 RowsAffected 在值未變時為 0，所以先查存在與否
func (s *UserStore) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	current, err := s.GetByID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	err = s.db(ctx).Model(&sqlUser{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"email":      user.Email,
			"updated_at": user.UpdatedAt,
		}).Error
	if err != nil {
		return nil, domain.StoreError(err, "update user")
	}
	updated := user.Clone()
	updated.UserName = current.UserName
	updated.CreatedAt = current.CreatedAt
	return updated, nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	res := s.db(ctx).Where("id = ?", id).Delete(&sqlUser{})
	if res.Error != nil {
		return domain.StoreError(res.Error, "delete user")
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

var _ usecase.UserRepository = (*UserStore)(nil)
