package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/reviewalarm/pkg/models"
	"github.com/jmoiron/sqlx"
)

const knowledgeColumns = `id, user_id, title, content, category, is_active, created_at`

// KnowledgeRepository handles database operations for knowledge items
type KnowledgeRepository struct {
	db *sqlx.DB
}

// NewKnowledgeRepository creates a new repository instance
func NewKnowledgeRepository(db *sqlx.DB) *KnowledgeRepository {
	return &KnowledgeRepository{db: db}
}

// Create inserts a new knowledge item and fills in its ID
func (r *KnowledgeRepository) Create(ctx context.Context, item *models.KnowledgeItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	query := `
		INSERT INTO knowledge_items (user_id, title, content, category, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(query),
		item.UserID,
		item.Title,
		item.Content,
		item.Category,
		item.IsActive,
		item.CreatedAt.UTC(),
	).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to create knowledge item: %w", err)
	}
	return nil
}

// GetByID retrieves an owner's knowledge item
func (r *KnowledgeRepository) GetByID(ctx context.Context, id, userID int64) (*models.KnowledgeItem, error) {
	query := `SELECT ` + knowledgeColumns + ` FROM knowledge_items WHERE id = ? AND user_id = ?`
	var item models.KnowledgeItem
	err := r.db.GetContext(ctx, &item, r.db.Rebind(query), id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge item: %w", err)
	}
	return &item, nil
}

// Update modifies the title, content and category of an item
func (r *KnowledgeRepository) Update(ctx context.Context, item *models.KnowledgeItem) error {
	query := `
		UPDATE knowledge_items SET title = ?, content = ?, category = ?
		WHERE id = ? AND user_id = ?
	`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query),
		item.Title,
		item.Content,
		item.Category,
		item.ID,
		item.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update knowledge item: %w", err)
	}
	return expectOneRow(result)
}

// Archive deactivates an item. Its schedules and records are kept.
func (r *KnowledgeRepository) Archive(ctx context.Context, id, userID int64) error {
	query := `UPDATE knowledge_items SET is_active = FALSE WHERE id = ? AND user_id = ?`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), id, userID)
	if err != nil {
		return fmt.Errorf("failed to archive knowledge item: %w", err)
	}
	return expectOneRow(result)
}

// List returns an owner's items, newest first
func (r *KnowledgeRepository) List(ctx context.Context, userID int64, activeOnly bool) ([]models.KnowledgeItem, error) {
	query := `SELECT ` + knowledgeColumns + ` FROM knowledge_items WHERE user_id = ?`
	if activeOnly {
		query += ` AND is_active = TRUE`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	items := []models.KnowledgeItem{}
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), userID); err != nil {
		return nil, fmt.Errorf("failed to list knowledge items: %w", err)
	}
	return items, nil
}

// Search finds active items whose title contains term, ignoring case
func (r *KnowledgeRepository) Search(ctx context.Context, userID int64, term string) ([]models.KnowledgeItem, error) {
	query := `
		SELECT ` + knowledgeColumns + `
		FROM knowledge_items
		WHERE user_id = ? AND is_active = TRUE AND LOWER(title) LIKE LOWER(?) ESCAPE '\'
		ORDER BY created_at DESC, id DESC
	`
	items := []models.KnowledgeItem{}
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), userID, "%"+likeEscaper.Replace(term)+"%"); err != nil {
		return nil, fmt.Errorf("failed to search knowledge items: %w", err)
	}
	return items, nil
}

// likeEscaper makes LIKE wildcards in a search term match literally
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
