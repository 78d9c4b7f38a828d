// Package sequence allocates the zero-padded, lexicographically sortable ids
// that key messages inside a scope.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/npezzotti/go-teamchat/internal/scope"
)

const DefaultWidth = 4

var (
	// ErrSequenceOverflow is returned once a scope has used every id that
	// fits the configured width. Nothing is written.
	ErrSequenceOverflow = errors.New("sequence: scope exhausted")
	// ErrSequenceConflict is returned when a message already exists under
	// the allocated id.
	ErrSequenceConflict = errors.New("sequence: id already taken")
)

type Allocator interface {
	Next(ctx context.Context, s scope.Scope) (string, error)
}

// Pad left-pads n with zeros to width. Numbers wider than width are
// returned unpadded; use Format to enforce the bound.
func Pad(n, width int) string {
	s := strconv.Itoa(n)
	if len(s) >= width {
		return s
	}

	return strings.Repeat("0", width-len(s)) + s
}

// Format pads n to width, failing when n does not fit.
func Format(n, width int) (string, error) {
	if n < 0 {
		return "", fmt.Errorf("sequence: negative index %d", n)
	}

	if n >= Capacity(width) {
		return "", fmt.Errorf("%w: index %d, width %d", ErrSequenceOverflow, n, width)
	}

	return Pad(n, width), nil
}

// Capacity is the number of ids a scope can hold at width.
func Capacity(width int) int {
	c := 1
	for i := 0; i < width; i++ {
		c *= 10
	}

	return c
}

// Parse converts a padded id back to its index.
func Parse(id string) (int, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("sequence: invalid id %q", id)
	}

	return n, nil
}

// Counter is an in-process allocator. Each call reserves the next index
// under a lock, so concurrent senders never receive the same id.
type Counter struct {
	width int
	mu    sync.Mutex
	next  map[string]int
}

func NewCounter(width int) *Counter {
	if width <= 0 {
		width = DefaultWidth
	}

	return &Counter{
		width: width,
		next:  make(map[string]int),
	}
}

// Seed sets the number of documents already stored in a scope. Seeding
// never moves a counter backwards.
func (c *Counter) Seed(s scope.Scope, count int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if count > c.next[s.Path()] {
		c.next[s.Path()] = count
	}
}

func (c *Counter) Next(ctx context.Context, s scope.Scope) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.next[s.Path()]
	id, err := Format(n, c.width)
	if err != nil {
		return "", err
	}

	c.next[s.Path()] = n + 1
	return id, nil
}
