package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/example/reviewalarm/internal/database"
	"github.com/example/reviewalarm/internal/spaced_repetition"
	"github.com/example/reviewalarm/pkg/models"
	"go.uber.org/zap"
)

// MaxTitleLength bounds item titles, in runes
const MaxTitleLength = 200

// ErrItemNotFound is returned when the item does not exist for the owner
var ErrItemNotFound = spaced_repetition.ErrItemNotFound

// Repository stores knowledge items
type Repository interface {
	Create(ctx context.Context, item *models.KnowledgeItem) error
	GetByID(ctx context.Context, id, userID int64) (*models.KnowledgeItem, error)
	Update(ctx context.Context, item *models.KnowledgeItem) error
	Archive(ctx context.Context, id, userID int64) error
	List(ctx context.Context, userID int64, activeOnly bool) ([]models.KnowledgeItem, error)
	Search(ctx context.Context, userID int64, term string) ([]models.KnowledgeItem, error)
}

// Seeder opens the first review of a new item
type Seeder interface {
	ScheduleFirstReview(ctx context.Context, itemID, ownerID int64, now time.Time) (*models.ReviewSchedule, error)
}

// Service manages a learner's knowledge items
type Service struct {
	repo   Repository
	seeder Seeder
	logger *zap.Logger
}

// NewService creates a knowledge service
func NewService(repo Repository, seeder Seeder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, seeder: seeder, logger: logger}
}

// Input is the user-editable part of an item
type Input struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

func (in Input) normalize() (Input, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Category = strings.TrimSpace(in.Category)

	if in.Title == "" {
		return in, &spaced_repetition.ValidationError{Field: "title", Value: in.Title, Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(in.Title); n > MaxTitleLength {
		return in, &spaced_repetition.ValidationError{Field: "title", Value: n, Reason: fmt.Sprintf("must be at most %d characters", MaxTitleLength)}
	}
	if in.Content == "" {
		return in, &spaced_repetition.ValidationError{Field: "content", Value: in.Content, Reason: "must not be empty"}
	}
	return in, nil
}

// Add creates an item and schedules its first review
func (s *Service) Add(ctx context.Context, ownerID int64, in Input, now time.Time) (*models.KnowledgeItem, *models.ReviewSchedule, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, nil, err
	}

	item := &models.KnowledgeItem{
		UserID:    ownerID,
		Title:     in.Title,
		Content:   in.Content,
		Category:  in.Category,
		IsActive:  true,
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, nil, err
	}

	sched, err := s.seeder.ScheduleFirstReview(ctx, item.ID, ownerID, now)
	if err != nil {
		s.logger.Error("item created without a review schedule",
			zap.Int64("item_id", item.ID),
			zap.Error(err))
		return item, nil, fmt.Errorf("failed to schedule first review: %w", err)
	}

	s.logger.Info("knowledge item added",
		zap.Int64("item_id", item.ID),
		zap.Int64("owner_id", ownerID),
		zap.String("category", item.Category))
	return item, sched, nil
}

// Get returns one of the owner's items
func (s *Service) Get(ctx context.Context, ownerID, id int64) (*models.KnowledgeItem, error) {
	item, err := s.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, notFound(err)
	}
	return item, nil
}

// Update replaces the title, content and category of an item
func (s *Service) Update(ctx context.Context, ownerID, id int64, in Input) (*models.KnowledgeItem, error) {
	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	item, err := s.repo.GetByID(ctx, id, ownerID)
	if err != nil {
		return nil, notFound(err)
	}
	item.Title = in.Title
	item.Content = in.Content
	item.Category = in.Category
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, notFound(err)
	}
	return item, nil
}

// Archive soft-deletes an item. Its review history is kept and its open
// schedule stops showing up as due.
func (s *Service) Archive(ctx context.Context, ownerID, id int64) error {
	if err := s.repo.Archive(ctx, id, ownerID); err != nil {
		return notFound(err)
	}
	s.logger.Info("knowledge item archived", zap.Int64("item_id", id))
	return nil
}

// List returns the owner's items, newest first
func (s *Service) List(ctx context.Context, ownerID int64, activeOnly bool) ([]models.KnowledgeItem, error) {
	return s.repo.List(ctx, ownerID, activeOnly)
}

// Search matches active items by title, ignoring case. An empty term lists
// every active item.
func (s *Service) Search(ctx context.Context, ownerID int64, term string) ([]models.KnowledgeItem, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return s.repo.List(ctx, ownerID, true)
	}
	return s.repo.Search(ctx, ownerID, term)
}

func notFound(err error) error {
	if errors.Is(err, database.ErrNotFound) {
		return ErrItemNotFound
	}
	return err
}
