package pagination

import (
	"errors"
	"fmt"
)

// ErrInvalidPerPage indicates a non-positive page size.
var ErrInvalidPerPage = errors.New("pagination: per page must be positive")

// Window describes the resolved position of one page inside a collection.
type Window struct {
	Number     int
	TotalPages int
	TotalItems int
	PerPage    int
}

// NewWindow resolves the requested page against a collection of totalItems
// entries. An empty collection still has exactly one page.
func NewWindow(totalItems int, request PageRequest, perPage int) (Window, error) {
	if perPage < 1 {
		return Window{}, fmt.Errorf("%w: %d", ErrInvalidPerPage, perPage)
	}
	if totalItems < 0 {
		totalItems = 0
	}
	totalPages := 1
	if totalItems > 0 {
		totalPages = (totalItems + perPage - 1) / perPage
	}
	return Window{
		Number:     ResolvePageNumber(request, totalPages),
		TotalPages: totalPages,
		TotalItems: totalItems,
		PerPage:    perPage,
	}, nil
}

// Offset returns the index of the first item on the page.
func (w Window) Offset() int {
	return (w.Number - 1) * w.PerPage
}

// Limit returns the number of items the page can hold.
func (w Window) Limit() int {
	return w.PerPage
}

// Page is one slice of an ordered collection plus navigation metadata.
type Page[T any] struct {
	Items      []T
	Number     int
	TotalPages int
	TotalItems int
	PerPage    int
	Range      []PageLink
}

// HasNext reports whether a later page exists.
func (p Page[T]) HasNext() bool {
	return p.Number < p.TotalPages
}

// HasPrevious reports whether an earlier page exists.
func (p Page[T]) HasPrevious() bool {
	return p.Number > 1
}

// NextNumber returns the following page number, or 0 on the last page.
func (p Page[T]) NextNumber() int {
	if !p.HasNext() {
		return 0
	}
	return p.Number + 1
}

// PreviousNumber returns the preceding page number, or 0 on the first page.
func (p Page[T]) PreviousNumber() int {
	if !p.HasPrevious() {
		return 0
	}
	return p.Number - 1
}

// NewPage wraps items that were already cut to the window (for example by a
// LIMIT/OFFSET query) into a Page.
func NewPage[T any](items []T, window Window) Page[T] {
	copied := make([]T, 0, len(items))
	copied = append(copied, items...)
	return Page[T]{
		Items:      copied,
		Number:     window.Number,
		TotalPages: window.TotalPages,
		TotalItems: window.TotalItems,
		PerPage:    window.PerPage,
		Range:      PageRange(window.Number, window.TotalPages),
	}
}

// Paginate returns the requested page of an in-memory ordered collection.
func Paginate[T any](items []T, request PageRequest, perPage int) (Page[T], error) {
	window, err := NewWindow(len(items), request, perPage)
	if err != nil {
		return Page[T]{}, err
	}
	start := window.Offset()
	if start > len(items) {
		start = len(items)
	}
	end := start + window.Limit()
	if end > len(items) {
		end = len(items)
	}
	return NewPage(items[start:end], window), nil
}
