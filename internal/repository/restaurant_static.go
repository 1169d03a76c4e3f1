package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/iliyamo/restaurant-reservation/internal/model"
)

// StaticDirectory is an in-memory restaurant directory.  It backs the
// memory store mode and the tests.
type StaticDirectory struct {
	mu          sync.RWMutex
	restaurants map[string]model.Restaurant
}

// NewStaticDirectory builds a directory from the given restaurants.
func NewStaticDirectory(rs ...model.Restaurant) *StaticDirectory {
	d := &StaticDirectory{restaurants: make(map[string]model.Restaurant, len(rs))}
	for _, r := range rs {
		d.restaurants[r.ID] = r
	}
	return d
}

// LoadStaticDirectory reads a JSON array of restaurants from path.
func LoadStaticDirectory(path string) (*StaticDirectory, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file: %w", err)
	}
	var rs []model.Restaurant
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("decode directory file: %w", err)
	}
	return NewStaticDirectory(rs...), nil
}

// Put adds or replaces a restaurant.
func (d *StaticDirectory) Put(r model.Restaurant) {
	d.mu.Lock()
	d.restaurants[r.ID] = r
	d.mu.Unlock()
}

// Restaurant returns the restaurant with id or ErrNotFound.
func (d *StaticDirectory) Restaurant(ctx context.Context, id string) (model.Restaurant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.restaurants[id]
	if !ok {
		return model.Restaurant{}, ErrNotFound
	}
	return r, nil
}
