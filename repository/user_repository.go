// Package repository persists the development backend's users and refresh tokens.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"Soundy/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrDuplicateUser = errors.New("username or email already taken")
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByName(ctx context.Context, name string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// gormUserRepository implements UserRepository for MySQL through GORM.
type gormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository creates a UserRepository backed by gdb. The users table is migrated by
// the caller.
func NewGormUserRepository(gdb *gorm.DB) UserRepository {
	return &gormUserRepository{db: gdb}
}

// CreateUser assigns an id when the user has none and inserts it.
func (r *gormUserRepository) CreateUser(ctx context.Context, user *model.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	err := r.db.WithContext(ctx).Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Name, err)
	}
	return nil
}

func (r *gormUserRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *gormUserRepository) GetUserByName(ctx context.Context, name string) (*model.User, error) {
	return r.first(ctx, "name = ?", name)
}

func (r *gormUserRepository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *gormUserRepository) first(ctx context.Context, query string, arg string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user (%s %s): %w", query, arg, err)
	}
	return &user, nil
}

// memoryUserRepository keeps users in process memory.
type memoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]model.User
}

func NewMemoryUserRepository() UserRepository {
	return &memoryUserRepository{users: make(map[string]model.User)}
}

func (r *memoryUserRepository) CreateUser(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.users {
		if u.Name == user.Name || (user.Email != "" && strings.EqualFold(u.Email, user.Email)) {
			return ErrDuplicateUser
		}
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = *user
	return nil
}

func (r *memoryUserRepository) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.ID == id })
}

func (r *memoryUserRepository) GetUserByName(_ context.Context, name string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Name == name })
}

func (r *memoryUserRepository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u model.User) bool { return email != "" && strings.EqualFold(u.Email, email) })
}

func (r *memoryUserRepository) find(match func(model.User) bool) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if match(u) {
			user := u
			return &user, nil
		}
	}
	return nil, ErrNotFound
}
