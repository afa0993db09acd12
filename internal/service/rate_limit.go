package service

import (
	"context"
	"time"

	"campus_social/internal/repository"
	"campus_social/pkg/logger"
)

type RateLimitService interface {
	// Allow counts one hit against key and reports whether it is within limit.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	count, err := s.rateLimitRepo.Hit(ctx, "ratelimit:"+key, window)
	if err != nil {
		return false, err
	}
	return count <= int64(limit), nil
}
