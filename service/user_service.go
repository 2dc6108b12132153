// file: service/user_service.go

package service

import (
	"book-club-api/model"
	"book-club-api/repository"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// IUserService defines the contract for user profile operations.
type IUserService interface {
	GetProfile(ctx context.Context, userID int) (*model.User, error)
}

// UserService serves user profiles, utilizing a cache-aside strategy so that
// the /users/me hydration done on every session restore stays cheap.
type UserService struct {
	userRepo    repository.IUserRepository
	cacheClient ICacheClient
}

// NewUserService creates a new UserService.
func NewUserService(userRepo repository.IUserRepository, cacheClient ICacheClient) *UserService {
	return &UserService{userRepo: userRepo, cacheClient: cacheClient}
}

// GetProfile returns the user's profile, preferring the cache.
func (s *UserService) GetProfile(ctx context.Context, userID int) (*model.User, error) {
	cacheKey := fmt.Sprintf("users:%d", userID)

	if s.cacheClient != nil {
		cached, err := s.cacheClient.Get(ctx, cacheKey).Result()
		if err == nil {
			var user model.User
			if err := json.Unmarshal([]byte(cached), &user); err == nil {
				return &user, nil
			}
		}
	}

	user, err := s.userRepo.GetUserByID(userID)
	if err != nil {
		return nil, err
	}

	if s.cacheClient != nil {
		if data, err := json.Marshal(user); err == nil {
			s.cacheClient.Set(ctx, cacheKey, data, 10*time.Minute)
		}
	}

	return user, nil
}
