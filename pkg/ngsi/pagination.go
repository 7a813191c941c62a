package ngsi

import (
	"context"
)

// PaginationOptions controls how paginated sequences fetch their pages.
type PaginationOptions struct {
	// PageSize is the number of items requested per page. It defaults
	// to DefaultLimit and is capped at MaxLimit.
	PageSize int
	// MaxPages bounds the number of pages fetched; zero means
	// unbounded.
	MaxPages int
}

// DefaultPaginationOptions returns the default pagination settings.
func DefaultPaginationOptions() *PaginationOptions {
	return &PaginationOptions{PageSize: DefaultLimit}
}

func (o *PaginationOptions) normalized() PaginationOptions {
	out := PaginationOptions{PageSize: DefaultLimit}

	if o != nil {
		if o.PageSize > 0 {
			out.PageSize = o.PageSize
		}

		if o.PageSize > MaxLimit {
			out.PageSize = MaxLimit
		}

		if o.MaxPages > 0 {
			out.MaxPages = o.MaxPages
		}
	}

	return out
}

// PageFunc fetches one page of a broker collection. It returns the
// items at the given offset and the total count advertised by the
// broker, or -1 when the total is unknown.
type PageFunc[T any] func(ctx context.Context, offset, limit int) (items []T, total int, err error)

// PageIterator lazily walks a paginated broker collection, fetching
// pages on demand. Each iterator starts at offset zero and keeps its
// own cursor, so independent iterators never share pagination state.
// Iterators are not safe for concurrent use.
type PageIterator[T any] struct {
	ctx     context.Context
	fetch   PageFunc[T]
	options PaginationOptions

	buffer []T
	offset int
	total  int
	pages  int
	done   bool
	err    error
}

// NewPageIterator creates an iterator over the pages served by fetch.
func NewPageIterator[T any](ctx context.Context, fetch PageFunc[T], options *PaginationOptions) *PageIterator[T] {
	return &PageIterator[T]{
		ctx:     ctx,
		fetch:   fetch,
		options: options.normalized(),
		total:   -1,
	}
}

// HasNext reports whether another item is available, fetching the next
// page when the buffer is exhausted. It also reports true when the last
// fetch failed, so that Next can surface the error.
func (it *PageIterator[T]) HasNext() bool {
	if it.err != nil || len(it.buffer) > 0 {
		return true
	}

	if it.done {
		return false
	}

	it.fetchNextPage()

	return it.err != nil || len(it.buffer) > 0
}

// Next returns the next item. Once the sequence is exhausted it returns
// ErrNoMoreItems; a fetch error is sticky and returned on every
// subsequent call.
func (it *PageIterator[T]) Next() (T, error) {
	var zero T

	if it.err != nil {
		return zero, it.err
	}

	if len(it.buffer) == 0 && !it.done {
		it.fetchNextPage()

		if it.err != nil {
			return zero, it.err
		}
	}

	if len(it.buffer) == 0 {
		return zero, ErrNoMoreItems
	}

	item := it.buffer[0]
	it.buffer = it.buffer[1:]

	return item, nil
}

// All drains the remaining items into a slice.
func (it *PageIterator[T]) All() ([]T, error) {
	var items []T

	for it.HasNext() {
		item, err := it.Next()
		if err != nil {
			return nil, err
		}

		items = append(items, item)
	}

	return items, nil
}

// ForEach applies fn to each remaining item, stopping at the first
// error fn returns.
func (it *PageIterator[T]) ForEach(fn func(T) error) error {
	for it.HasNext() {
		item, err := it.Next()
		if err != nil {
			return err
		}

		err = fn(item)
		if err != nil {
			return err
		}
	}

	return nil
}

// TotalCount returns the collection size advertised by the broker, or
// -1 before the first page arrives.
func (it *PageIterator[T]) TotalCount() int {
	return it.total
}

func (it *PageIterator[T]) fetchNextPage() {
	if it.options.MaxPages > 0 && it.pages >= it.options.MaxPages {
		it.done = true

		return
	}

	if it.ctx != nil {
		err := it.ctx.Err()
		if err != nil {
			it.err = err
			it.done = true

			return
		}
	}

	items, total, err := it.fetch(it.ctx, it.offset, it.options.PageSize)
	if err != nil {
		it.err = err
		it.done = true

		return
	}

	it.buffer = items
	it.offset += len(items)
	it.pages++

	if total >= 0 {
		it.total = total
	}

	if len(items) < it.options.PageSize || (it.total >= 0 && it.offset >= it.total) {
		it.done = true
	}
}

// PageResult carries one page of a streamed sequence, or the error that
// ended it.
type PageResult[T any] struct {
	Items []T
	Err   error
}

// FetchAllPages drains every page served by fetch into a single slice.
func FetchAllPages[T any](ctx context.Context, fetch PageFunc[T], options *PaginationOptions) ([]T, error) {
	return NewPageIterator(ctx, fetch, options).All()
}

// StreamPages fetches pages in a goroutine and delivers them on the
// returned channel, which closes when the sequence ends. Cancelling the
// context stops the stream.
func StreamPages[T any](ctx context.Context, fetch PageFunc[T], options *PaginationOptions) <-chan PageResult[T] {
	results := make(chan PageResult[T])

	go func() {
		defer close(results)

		opts := options.normalized()
		offset := 0
		total := -1
		pages := 0

		for {
			if opts.MaxPages > 0 && pages >= opts.MaxPages {
				return
			}

			items, pageTotal, err := fetch(ctx, offset, opts.PageSize)
			if err != nil {
				select {
				case results <- PageResult[T]{Err: err}:
				case <-ctx.Done():
				}

				return
			}

			if len(items) > 0 {
				select {
				case results <- PageResult[T]{Items: items}:
				case <-ctx.Done():
					return
				}
			}

			offset += len(items)
			pages++

			if pageTotal >= 0 {
				total = pageTotal
			}

			if len(items) < opts.PageSize || (total >= 0 && offset >= total) {
				return
			}
		}
	}()

	return results
}
