package gifts

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"edutrack/internal/apperr"
	"edutrack/internal/model"
)

// Repository persists the gift catalog.
type Repository interface {
	InsertGift(ctx context.Context, g model.Gift) error
	GiftByID(ctx context.Context, id string) (*model.Gift, error)
	ListGifts(ctx context.Context) ([]model.Gift, error)
	CountGifts(ctx context.Context) (int, error)
}

// Service manages the admin-owned gift catalog. The ledger reads it but
// never writes to it.
type Service struct {
	repo Repository
}

// NewService creates a catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// GiftInput is an admin catalog submission.
type GiftInput struct {
	Name        string `json:"name"`
	Cost        int    `json:"cost"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	ImageURL    string `json:"image_url"`
}

// AddGift appends a catalog entry.
func (s *Service) AddGift(ctx context.Context, in GiftInput) (model.Gift, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return model.Gift{}, apperr.Invalid("gift name is required")
	}
	if in.Cost <= 0 {
		return model.Gift{}, apperr.Invalid("gift cost must be a positive integer")
	}
	g := model.Gift{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Cost:        in.Cost,
		Icon:        in.Icon,
		Description: in.Description,
		ImageURL:    in.ImageURL,
	}
	if err := s.repo.InsertGift(ctx, g); err != nil {
		return model.Gift{}, err
	}
	return g, nil
}

// GiftByID returns a catalog entry or nil when absent. Satisfies the
// ledger's Catalog dependency.
func (s *Service) GiftByID(ctx context.Context, id string) (*model.Gift, error) {
	return s.repo.GiftByID(ctx, id)
}

// Gifts lists the catalog.
func (s *Service) Gifts(ctx context.Context) ([]model.Gift, error) {
	return s.repo.ListGifts(ctx)
}

// SeedDefaults installs the stock catalog when the store is empty, so a
// fresh deployment has something to redeem against.
func (s *Service) SeedDefaults(ctx context.Context) error {
	n, err := s.repo.CountGifts(ctx)
	if err != nil || n > 0 {
		return err
	}
	for _, g := range DefaultGifts() {
		if err := s.repo.InsertGift(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

// DefaultGifts returns the stock catalog entries.
func DefaultGifts() []model.Gift {
	return []model.Gift{
		{ID: uuid.NewString(), Name: "Premium Notebook", Cost: 100, Icon: "📓", Description: "High quality A5 notebook for your daily notes."},
		{ID: uuid.NewString(), Name: "Gel Pen Set", Cost: 200, Icon: "🖊️", Description: "Set of 5 colorful smooth-writing gel pens."},
		{ID: uuid.NewString(), Name: "Water Bottle", Cost: 300, Icon: "💧", Description: "Durable and eco-friendly sports water bottle."},
		{ID: uuid.NewString(), Name: "School Cap", Cost: 400, Icon: "🧢", Description: "Embroidered cap with school logo."},
		{ID: uuid.NewString(), Name: "Sports Gear", Cost: 500, Icon: "⚽", Description: "Football or Basketball (subject to availability)."},
	}
}
