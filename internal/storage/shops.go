package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/aagii9912/smarthub-sub002/internal/domain"
)

// ShopRepository resolves shops and their connected social pages.
type ShopRepository struct {
	db *sql.DB

	mu        sync.RWMutex
	pageCache map[string]string
}

func NewShopRepository(db *sql.DB) *ShopRepository {
	return &ShopRepository{
		db:        db,
		pageCache: make(map[string]string),
	}
}

// ShopProfile returns the display name and page username used in replies.
func (r *ShopRepository) ShopProfile(ctx context.Context, shopID string) (string, string, error) {
	var name, pageUsername string
	err := r.db.QueryRowContext(ctx,
		`SELECT name, COALESCE(page_username, '') FROM shops WHERE id = $1`,
		shopID).Scan(&name, &pageUsername)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", domain.ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("querying shop %s: %w", shopID, err)
	}
	return name, pageUsername, nil
}

// ShopIDForPage maps a platform page/account id to the owning shop. The
// mapping changes rarely, so hits are cached for the process lifetime.
func (r *ShopRepository) ShopIDForPage(ctx context.Context, pageID string) (string, error) {
	r.mu.RLock()
	if shopID, ok := r.pageCache[pageID]; ok {
		r.mu.RUnlock()
		return shopID, nil
	}
	r.mu.RUnlock()

	var shopID string
	err := r.db.QueryRowContext(ctx,
		`SELECT shop_id FROM shop_pages WHERE page_id = $1`,
		pageID).Scan(&shopID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("resolving page %s: %w", pageID, err)
	}

	r.mu.Lock()
	r.pageCache[pageID] = shopID
	r.mu.Unlock()
	return shopID, nil
}
