package repositories

import (
	"context"
	"strconv"

	"github.com/anonto42/nano-midea/notifications/internal/models"
	"gorm.io/gorm"
)

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	EntityLoader
	CreateComment(ctx context.Context, comment *models.Comment) error
	GetCommentByID(ctx context.Context, id uint) (*models.Comment, error)
}

// PostgresCommentRepository implements CommentRepository for PostgreSQL
type PostgresCommentRepository struct {
	db *gorm.DB
}

// NewPostgresCommentRepository creates a new PostgresCommentRepository
func NewPostgresCommentRepository(db *gorm.DB) *PostgresCommentRepository {
	return &PostgresCommentRepository{db: db}
}

// CreateComment creates a new comment in PostgreSQL
func (r *PostgresCommentRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

// GetCommentByID retrieves a comment by ID from PostgreSQL
func (r *PostgresCommentRepository) GetCommentByID(ctx context.Context, id uint) (*models.Comment, error) {
	var comment models.Comment
	if err := r.db.WithContext(ctx).First(&comment, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &comment, nil
}

// LoadEntities resolves Comment references in one query.
func (r *PostgresCommentRepository) LoadEntities(ctx context.Context, ids []string) (map[string]any, error) {
	keys := parseUintIDs(ids)
	result := make(map[string]any, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	var comments []models.Comment
	if err := r.db.WithContext(ctx).Where("id IN ?", keys).Find(&comments).Error; err != nil {
		return nil, err
	}
	for i := range comments {
		result[strconv.FormatUint(uint64(comments[i].ID), 10)] = &comments[i]
	}
	return result, nil
}
