// Package connection converts a filtered, shaped result into a Relay-style
// connection envelope with offset cursors and a total count.
package connection

import (
	"fmt"
)

// Args are the standard connection arguments. Nil means not given.
type Args struct {
	First  *int
	After  *string
	Last   *int
	Before *string
}

// Window is the slice of the full result a connection page covers.
type Window struct {
	Start int
	End   int
	Count int
}

// Skip returns the number of rows before the window.
func (w Window) Skip() int { return w.Start }

// Take returns the number of rows in the window.
func (w Window) Take() int { return w.End - w.Start }

// PageInfo describes the position of a page in the full result.
type PageInfo struct {
	HasNextPage     bool
	HasPreviousPage bool
	StartCursor     *string
	EndCursor       *string
}

// Edge pairs a node with its cursor.
type Edge[T any] struct {
	Cursor string
	Node   T
}

// Connection is one page of a result.
type Connection[T any] struct {
	TotalCount int
	Edges      []Edge[T]
	Items      []T
	PageInfo   PageInfo
}

// ComputeWindow applies args to a result of count rows of typeName. after and
// before bound the range first, then first keeps the leading rows and last
// the trailing ones. maxPageSize caps the page when positive and neither
// first nor last was given.
func ComputeWindow(typeName string, args Args, count, maxPageSize int) (Window, error) {
	start, end := 0, count
	if args.After != nil {
		index, err := ValidateCursor(typeName, *args.After)
		if err != nil {
			return Window{}, fmt.Errorf("after: %w", err)
		}
		// Rows may have been removed since the cursor was issued, so an
		// index past the end yields an empty page rather than an error.
		if index < count {
			start = index + 1
		} else {
			start = count
		}
	}
	if args.Before != nil {
		index, err := ValidateCursor(typeName, *args.Before)
		if err != nil {
			return Window{}, fmt.Errorf("before: %w", err)
		}
		end = min(index, end)
	}
	if end < start {
		end = start
	}
	if args.First != nil {
		if *args.First < 0 {
			return Window{}, fmt.Errorf("first must be non-negative")
		}
		if *args.First < end-start {
			end = start + *args.First
		}
	}
	if args.Last != nil {
		if *args.Last < 0 {
			return Window{}, fmt.Errorf("last must be non-negative")
		}
		if *args.Last < end-start {
			start = end - *args.Last
		}
	}
	if args.First == nil && args.Last == nil && maxPageSize > 0 {
		if maxPageSize < end-start {
			end = start + maxPageSize
		}
	}
	return Window{Start: start, End: end, Count: count}, nil
}

// Build wraps the rows of w. items must be the rows from w.Start on; rows
// past the window are ignored.
func Build[T any](typeName string, items []T, w Window) Connection[T] {
	if len(items) > w.Take() {
		items = items[:w.Take()]
	}
	out := Connection[T]{
		TotalCount: w.Count,
		Edges:      make([]Edge[T], len(items)),
		Items:      items,
		PageInfo: PageInfo{
			HasPreviousPage: w.Start > 0,
			HasNextPage:     w.Start+len(items) < w.Count,
		},
	}
	for i, item := range items {
		out.Edges[i] = Edge[T]{Cursor: EncodeCursor(typeName, w.Start+i), Node: item}
	}
	if len(out.Edges) > 0 {
		first := out.Edges[0].Cursor
		last := out.Edges[len(out.Edges)-1].Cursor
		out.PageInfo.StartCursor = &first
		out.PageInfo.EndCursor = &last
	}
	return out
}
