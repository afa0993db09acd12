package repository

import (
	"context"
	"fmt"

	"campus_social/internal/domain"
	"campus_social/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository reads the account subsystem's users table.
type UserRepository interface {
	IsActive(ctx context.Context, id int64) (bool, error)
	GetProfiles(ctx context.Context, ids []int64) (map[int64]*domain.UserProfile, error)
	// ListActiveIDsAfter pages active user ids in id order (keyset on id).
	ListActiveIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error)
}

type userRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewUserRepository(db *pgxpool.Pool, log logger.Logger) UserRepository {
	return &userRepository{db: db, log: log}
}

func (r *userRepository) IsActive(ctx context.Context, id int64) (bool, error) {
	var active bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1 AND is_active)`, id).Scan(&active)
	if err != nil {
		r.log.Error("Failed to check user", "error", err, "user_id", id)
		return false, fmt.Errorf("check user: %w", err)
	}
	return active, nil
}

func (r *userRepository) GetProfiles(ctx context.Context, ids []int64) (map[int64]*domain.UserProfile, error) {
	profiles := make(map[int64]*domain.UserProfile, len(ids))
	if len(ids) == 0 {
		return profiles, nil
	}

	rows, err := r.db.Query(ctx, `SELECT id, nickname, avatar_url, is_active FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		r.log.Error("Failed to load user profiles", "error", err)
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p := &domain.UserProfile{}
		if err := rows.Scan(&p.ID, &p.Nickname, &p.AvatarURL, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles[p.ID] = p
	}
	return profiles, rows.Err()
}

func (r *userRepository) ListActiveIDsAfter(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM users WHERE is_active AND id > $1 ORDER BY id LIMIT $2`, afterID, limit)
	if err != nil {
		r.log.Error("Failed to list active users", "error", err)
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
