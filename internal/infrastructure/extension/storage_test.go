package extension

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s := NewStorage(filepath.Join(t.TempDir(), "extension", "storage.json"), zerolog.Nop())
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s
}

func TestStorage_MissingFileIsEmpty(t *testing.T) {
	s := newTestStorage(t)

	products, err := s.Products(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestStorage_SavePrependsAndStamps(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	first, err := s.Save(ctx, domain.CapturedProduct{ProductName: "Kettle", Price: "$49.99"})
	require.NoError(t, err)
	assert.Equal(t, "1705312800000", first.ID)
	assert.Equal(t, "2024-01-15T10:00:00Z", first.ExtractedAt)
	assert.Equal(t, domain.ProductStatusTracking, first.Status)

	second, err := s.Save(ctx, domain.CapturedProduct{ProductName: "Toaster", Price: "$29.99"})
	require.NoError(t, err)
	assert.Equal(t, "1705312800001", second.ID, "same millisecond gets the next free id")

	products, err := s.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Toaster", products[0].ProductName)

	raw, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"extractedProducts"`)
}

func TestStorage_UpdateAndDelete(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, domain.CapturedProduct{ProductName: "Kettle", Price: "$49.99"})
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, saved.ID, func(p *domain.CapturedProduct) {
		p.TargetPrice = "39.99"
		p.Status = domain.ProductStatusPaused
		p.ID = "hijacked"
	}))
	products, err := s.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, saved.ID, products[0].ID)
	assert.Equal(t, "39.99", products[0].TargetPrice)

	err = s.Update(ctx, "missing", func(*domain.CapturedProduct) {})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	require.NoError(t, s.Delete(ctx, "missing"))
	require.NoError(t, s.Delete(ctx, saved.ID))
	products, err = s.Products(ctx)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestStorage_ReadsBareArray(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`[{"id":"7","product_name":"Lamp","price":"$10"}]`), 0o644))

	products, err := s.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Lamp", products[0].ProductName)
}

func TestStorage_CorruptFile(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(s.Path()), 0o755))
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{not json`), 0o644))

	_, err := s.Products(context.Background())
	assert.Error(t, err)
}

func TestStorage_WatchReportsChanges(t *testing.T) {
	s := newTestStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan []domain.CapturedProduct, 8)
	require.NoError(t, s.Watch(ctx, func(p []domain.CapturedProduct) { changes <- p }))

	// the extension writes through its own handle
	writer := NewStorage(s.Path(), zerolog.Nop())
	_, err := writer.Save(context.Background(), domain.CapturedProduct{ProductName: "Kettle"})
	require.NoError(t, err)

	select {
	case products := <-changes:
		require.Len(t, products, 1)
		assert.Equal(t, "Kettle", products[0].ProductName)
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
}
