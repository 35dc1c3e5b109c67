package wishlist

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/zaya-storefront/internal/domain/cart"
	"github.com/xenking/zaya-storefront/internal/domain/catalog"
	"github.com/xenking/zaya-storefront/internal/kv"
)

// --- Mock implementations ---

type mockItems struct {
	items map[string]map[string]Item
}

func newMockItems() *mockItems {
	return &mockItems{items: make(map[string]map[string]Item)}
}

func (m *mockItems) Save(_ context.Context, userID string, item Item) error {
	if m.items[userID] == nil {
		m.items[userID] = make(map[string]Item)
	}
	m.items[userID][item.ProductID] = item
	return nil
}

func (m *mockItems) Remove(_ context.Context, userID, productID string) error {
	delete(m.items[userID], productID)
	return nil
}

func (m *mockItems) List(_ context.Context, userID string) ([]Item, error) {
	var out []Item
	for _, it := range m.items[userID] {
		out = append(out, it)
	}
	return out, nil
}

func (m *mockItems) Get(_ context.Context, userID, productID string) (*Item, error) {
	it, ok := m.items[userID][productID]
	if !ok {
		return nil, ErrNotSaved
	}
	return &it, nil
}

type mockProducts struct {
	catalog.Repository
	products map[string]catalog.Product
}

func (m *mockProducts) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func newService() *Service {
	return NewService(newMockItems(), &mockProducts{products: map[string]catalog.Product{
		"A": {ID: "A", Name: "Ankara Dress", Price: decimal.NewFromInt(15000), Image: "a.jpg"},
	}})
}

// --- Tests ---

func TestSaveAndList(t *testing.T) {
	ctx := context.Background()
	s := newService()

	item, err := s.Save(ctx, "u1", "A")
	require.NoError(t, err)
	assert.Equal(t, "Ankara Dress", item.Name)

	_, err = s.Save(ctx, "u1", "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	items, err := s.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	require.NoError(t, s.Remove(ctx, "u1", "A"))
	items, err = s.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMoveToCart(t *testing.T) {
	ctx := context.Background()
	s := newService()
	c := cart.NewLocalStore(kv.NewMemory(), 0)

	_, err := s.Save(ctx, "u1", "A")
	require.NoError(t, err)

	require.NoError(t, s.MoveToCart(ctx, "u1", "A", c))
	lines, err := c.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 1, lines[0].Quantity)

	require.ErrorIs(t, s.MoveToCart(ctx, "u1", "A", c), ErrAlreadyInCart)
	lines, err = c.Lines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, lines[0].Quantity)

	require.ErrorIs(t, s.MoveToCart(ctx, "u1", "B", c), ErrNotSaved)
}
