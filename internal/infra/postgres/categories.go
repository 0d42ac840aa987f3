package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/expense-assistant/internal/domain"
	"github.com/jackc/pgx/v5"
)

// FindCategoryBySlug returns the user's category with the given slug, or nil.
func (s *Store) FindCategoryBySlug(ctx context.Context, userID, slug string) (*domain.Category, error) {
	var (
		c       domain.Category
		catType string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, slug, name, type
		FROM categories
		WHERE user_id = $1 AND slug = lower($2)
	`, userID, slug).Scan(&c.ID, &c.UserID, &c.Slug, &c.Name, &catType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindCategoryBySlug: %w", err)
	}
	c.Type = domain.TransactionType(catType)
	return &c, nil
}

// ListCategories returns the user's categories ordered by slug.
func (s *Store) ListCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, slug, name, type
		FROM categories
		WHERE user_id = $1
		ORDER BY slug
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}
	defer rows.Close()

	var cats []domain.Category
	for rows.Next() {
		var (
			c       domain.Category
			catType string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.Slug, &c.Name, &catType); err != nil {
			return nil, fmt.Errorf("ListCategories: scan: %w", err)
		}
		c.Type = domain.TransactionType(catType)
		cats = append(cats, c)
	}
	return cats, rows.Err()
}
