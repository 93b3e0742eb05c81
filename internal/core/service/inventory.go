package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rl1809/library-lending/internal/core/domain"
)

// AddTitle registers a new title with every copy on the shelf.
func (s *LoanService) AddTitle(ctx context.Context, id, name string, totalCopies int, price decimal.NullDecimal) (domain.Title, error) {
	title, err := domain.NewTitle(strings.TrimSpace(id), strings.TrimSpace(name), totalCopies, price, s.nowFn())
	if err != nil {
		return domain.Title{}, err
	}
	if err := s.catalog.CreateTitle(ctx, title); err != nil {
		return domain.Title{}, fmt.Errorf("create title: %w", err)
	}
	s.logger.InfoContext(ctx, "title added",
		"operation", "add_title",
		"outcome", "success",
		"title_id", title.ID,
		"total_copies", totalCopies,
	)
	return title, nil
}

func (s *LoanService) GetTitle(ctx context.Context, titleID string) (domain.Title, error) {
	titleID = strings.TrimSpace(titleID)
	if titleID == "" {
		return domain.Title{}, domain.Validationf("title id is required")
	}
	return s.catalog.GetTitle(ctx, titleID)
}

// ResizeInventory changes a title's total copies while the loaned count stays fixed.
func (s *LoanService) ResizeInventory(ctx context.Context, titleID string, newTotal int) (domain.Title, error) {
	titleID = strings.TrimSpace(titleID)
	if titleID == "" {
		return domain.Title{}, domain.Validationf("title id is required")
	}
	if newTotal < 0 {
		return domain.Title{}, domain.Validationf("total copies must not be negative, got %d", newTotal)
	}
	title, err := s.catalog.Resize(ctx, titleID, newTotal)
	if err != nil {
		return domain.Title{}, err
	}
	s.logger.InfoContext(ctx, "inventory resized",
		"operation", "resize_inventory",
		"outcome", "success",
		"title_id", titleID,
		"total_copies", title.TotalCopies,
		"available_copies", title.AvailableCopies,
	)
	return title, nil
}
