package ngsi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pageServer serves a fixed item list page by page, recording the
// offsets and limits of every fetch.
type pageServer struct {
	items   []string
	offsets []int
	limits  []int
	calls   int
}

func (s *pageServer) fetch(_ context.Context, offset, limit int) ([]string, int, error) {
	s.calls++
	s.offsets = append(s.offsets, offset)
	s.limits = append(s.limits, limit)

	if offset >= len(s.items) {
		return nil, len(s.items), nil
	}

	end := offset + limit
	if end > len(s.items) {
		end = len(s.items)
	}

	return s.items[offset:end], len(s.items), nil
}

func TestPageIterator_WalksAllPages(t *testing.T) {
	server := &pageServer{items: []string{"Room1", "Room2", "Room3", "Room4", "Room5"}}
	it := NewPageIterator(context.Background(), server.fetch, &PaginationOptions{PageSize: 2})

	items, err := it.All()
	require.NoError(t, err)
	assert.Equal(t, server.items, items)
	assert.Equal(t, 5, it.TotalCount())
	assert.Equal(t, 3, server.calls)
	assert.Equal(t, []int{0, 2, 4}, server.offsets)
}

func TestPageIterator_PageSizeEquivalence(t *testing.T) {
	items := []string{"Room1", "Room2", "Room3", "Room4", "Room5"}

	baseline, err := NewPageIterator(context.Background(),
		(&pageServer{items: items}).fetch, &PaginationOptions{PageSize: 5}).All()
	require.NoError(t, err)

	for _, pageSize := range []int{1, 2, 3, 4, 7} {
		it := NewPageIterator(context.Background(),
			(&pageServer{items: items}).fetch, &PaginationOptions{PageSize: pageSize})

		paged, err := it.All()
		require.NoError(t, err)
		assert.Equal(t, baseline, paged, "page size %d changed the sequence", pageSize)
	}
}

func TestPageIterator_Empty(t *testing.T) {
	server := &pageServer{}
	it := NewPageIterator(context.Background(), server.fetch, nil)

	assert.False(t, it.HasNext())

	_, err := it.Next()
	require.ErrorIs(t, err, ErrNoMoreItems)

	items, err := it.All()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestPageIterator_DefaultsAndCaps(t *testing.T) {
	server := &pageServer{items: []string{"Room1"}}

	_, err := NewPageIterator(context.Background(), server.fetch, nil).All()
	require.NoError(t, err)
	require.NotEmpty(t, server.limits)
	assert.Equal(t, DefaultLimit, server.limits[0])

	capped := &pageServer{items: []string{"Room1"}}

	_, err = NewPageIterator(context.Background(), capped.fetch, &PaginationOptions{PageSize: MaxLimit + 500}).All()
	require.NoError(t, err)
	require.NotEmpty(t, capped.limits)
	assert.Equal(t, MaxLimit, capped.limits[0])
}

func TestPageIterator_StickyError(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, offset, _ int) ([]string, int, error) {
		calls++
		if offset > 0 {
			return nil, -1, ErrSomeError
		}

		return []string{"Room1", "Room2"}, 5, nil
	}

	it := NewPageIterator(context.Background(), fetch, &PaginationOptions{PageSize: 2})

	first, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "Room1", first)

	second, err := it.Next()
	require.NoError(t, err)
	assert.Equal(t, "Room2", second)

	_, err = it.Next()
	require.ErrorIs(t, err, ErrSomeError)

	// The error is sticky and no further fetches happen.
	assert.True(t, it.HasNext())

	_, err = it.Next()
	require.ErrorIs(t, err, ErrSomeError)
	assert.Equal(t, 2, calls)
}

func TestPageIterator_FreshIteratorRestartsAtZero(t *testing.T) {
	server := &pageServer{items: []string{"Room1", "Room2", "Room3"}}

	first, err := NewPageIterator(context.Background(), server.fetch, &PaginationOptions{PageSize: 2}).All()
	require.NoError(t, err)

	restartIdx := len(server.offsets)

	second, err := NewPageIterator(context.Background(), server.fetch, &PaginationOptions{PageSize: 2}).All()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 0, server.offsets[restartIdx])
}

func TestPageIterator_MaxPages(t *testing.T) {
	server := &pageServer{items: []string{"a", "b", "c", "d", "e", "f", "g"}}
	it := NewPageIterator(context.Background(), server.fetch, &PaginationOptions{PageSize: 3, MaxPages: 2})

	items, err := it.All()
	require.NoError(t, err)
	assert.Len(t, items, 6)
	assert.Equal(t, 2, server.calls)
}

func TestPageIterator_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := &pageServer{items: []string{"Room1"}}
	it := NewPageIterator(ctx, server.fetch, nil)

	_, err := it.Next()
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, server.calls)
}

func TestPageIterator_UnknownTotal(t *testing.T) {
	fetch := func(_ context.Context, offset, limit int) ([]string, int, error) {
		if offset >= 3 {
			return nil, -1, nil
		}

		items := []string{"a", "b", "c"}[offset:]
		if len(items) > limit {
			items = items[:limit]
		}

		return items, -1, nil
	}

	it := NewPageIterator(context.Background(), fetch, &PaginationOptions{PageSize: 2})

	items, err := it.All()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, items)
	assert.Equal(t, -1, it.TotalCount())
}

func TestPageIterator_ForEach(t *testing.T) {
	server := &pageServer{items: []string{"Room1", "Room2", "Room3"}}
	it := NewPageIterator(context.Background(), server.fetch, &PaginationOptions{PageSize: 2})

	var seen []string

	err := it.ForEach(func(item string) error {
		seen = append(seen, item)

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, server.items, seen)

	// A second pass over the same list stops at the first error.
	failing := NewPageIterator(context.Background(),
		(&pageServer{items: server.items}).fetch, &PaginationOptions{PageSize: 2})

	count := 0

	err = failing.ForEach(func(string) error {
		count++
		if count == 2 {
			return ErrBoom
		}

		return nil
	})
	require.ErrorIs(t, err, ErrBoom)
	assert.Equal(t, 2, count)
}

func TestFetchAllPages(t *testing.T) {
	server := &pageServer{items: []string{"Room1", "Room2", "Room3", "Room4"}}

	items, err := FetchAllPages(context.Background(), server.fetch, &PaginationOptions{PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, server.items, items)
}

func TestStreamPages(t *testing.T) {
	server := &pageServer{items: []string{"Room1", "Room2", "Room3", "Room4", "Room5"}}

	var items []string

	for result := range StreamPages(context.Background(), server.fetch, &PaginationOptions{PageSize: 2}) {
		require.NoError(t, result.Err)

		items = append(items, result.Items...)
	}

	assert.Equal(t, server.items, items)
}

func TestStreamPages_Error(t *testing.T) {
	fetch := func(_ context.Context, offset, _ int) ([]string, int, error) {
		if offset > 0 {
			return nil, -1, ErrSomeError
		}

		return []string{"Room1", "Room2"}, 5, nil
	}

	var (
		items   []string
		lastErr error
	)

	for result := range StreamPages(context.Background(), fetch, &PaginationOptions{PageSize: 2}) {
		if result.Err != nil {
			lastErr = result.Err

			continue
		}

		items = append(items, result.Items...)
	}

	assert.Equal(t, []string{"Room1", "Room2"}, items)
	require.ErrorIs(t, lastErr, ErrSomeError)
}
