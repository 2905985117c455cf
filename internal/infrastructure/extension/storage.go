package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// document is the on-disk layout of the extension's storage export
type document struct {
	ExtractedProducts []domain.CapturedProduct `json:"extractedProducts"`
}

// Storage reads and writes the browser extension's captured products. The
// extension syncs its storage area to a JSON file; writes here replace the
// file atomically so the extension never sees a partial document.
type Storage struct {
	path   string
	logger zerolog.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewStorage creates a storage bridge over the export file at path
func NewStorage(path string, logger zerolog.Logger) *Storage {
	return &Storage{
		path:   path,
		logger: logger.With().Str("component", "extension_storage").Logger(),
		now:    time.Now,
	}
}

// Path returns the export file location
func (s *Storage) Path() string {
	return s.path
}

// Products returns the captured products, newest first. A missing export
// file means the extension has captured nothing yet.
func (s *Storage) Products(ctx context.Context) ([]domain.CapturedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Save stamps a new capture with an id and capture time and prepends it
func (s *Storage) Save(ctx context.Context, product domain.CapturedProduct) (domain.CapturedProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.read()
	if err != nil {
		return domain.CapturedProduct{}, err
	}

	now := s.now()
	if product.ID == "" {
		product.ID = s.nextID(products, now)
	}
	product.ExtractedAt = now.UTC().Format(time.RFC3339)
	if !product.Status.Valid() {
		product.Status = domain.ProductStatusTracking
	}

	products = append([]domain.CapturedProduct{product}, products...)
	if err := s.write(products); err != nil {
		return domain.CapturedProduct{}, err
	}
	s.logger.Debug().Str("id", product.ID).Str("product", product.ProductName).Msg("Saved captured product")
	return product, nil
}

// nextID derives an id from the capture time in milliseconds, stepping past
// ids already in use
func (s *Storage) nextID(products []domain.CapturedProduct, now time.Time) string {
	used := make(map[string]struct{}, len(products))
	for _, p := range products {
		used[p.ID] = struct{}{}
	}
	ms := now.UnixMilli()
	for {
		id := strconv.FormatInt(ms, 10)
		if _, taken := used[id]; !taken {
			return id
		}
		ms++
	}
}

// Update applies fn to the product with the given id
func (s *Storage) Update(ctx context.Context, id string, fn func(*domain.CapturedProduct)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.read()
	if err != nil {
		return err
	}
	for i := range products {
		if products[i].ID == id {
			fn(&products[i])
			products[i].ID = id
			return s.write(products)
		}
	}
	return fmt.Errorf("%w: %s", domain.ErrProductNotFound, id)
}

// Delete removes the product with the given id. Unknown ids are ignored.
func (s *Storage) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.read()
	if err != nil {
		return err
	}
	kept := products[:0]
	for _, p := range products {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(products) {
		return nil
	}
	return s.write(kept)
}

func (s *Storage) read() ([]domain.CapturedProduct, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []domain.CapturedProduct{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read extension storage: %w", err)
	}
	if len(data) == 0 {
		return []domain.CapturedProduct{}, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		// older exports hold the bare array
		var bare []domain.CapturedProduct
		if errBare := json.Unmarshal(data, &bare); errBare != nil {
			return nil, fmt.Errorf("decode extension storage: %w", err)
		}
		doc.ExtractedProducts = bare
	}
	if doc.ExtractedProducts == nil {
		doc.ExtractedProducts = []domain.CapturedProduct{}
	}
	return doc.ExtractedProducts, nil
}

func (s *Storage) write(products []domain.CapturedProduct) error {
	data, err := json.MarshalIndent(document{ExtractedProducts: products}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode extension storage: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure storage dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".extension-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace extension storage: %w", err)
	}
	return nil
}

// Watch calls fn with the full product list whenever the export file
// changes, until ctx is done. The parent directory is watched because the
// file is replaced rather than rewritten in place.
func (s *Storage) Watch(ctx context.Context, fn func([]domain.CapturedProduct)) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure storage dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) {
					continue
				}
				products, err := s.Products(ctx)
				if err != nil {
					s.logger.Warn().Err(err).Msg("Failed to reload extension storage")
					continue
				}
				fn(products)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logger.Warn().Err(err).Msg("Extension storage watcher error")
			}
		}
	}()
	return nil
}
