package selection

import (
	"fmt"
	"sync"

	"github.com/manash/stitchgen/pkg/models"
)

// Snapshot is the selection as seen by one generation at trigger time.
type Snapshot struct {
	Category models.Category `json:"category"`
	Style    models.Style    `json:"style"`
	Filters  models.Filters  `json:"filters"`
}

// State holds the user's current category, style and filter choices. It is
// owned by whoever drives the flow; there is no package-level instance.
type State struct {
	mu       sync.RWMutex
	category models.Category
	style    models.Style
	filters  models.Filters
}

func New() *State {
	return &State{
		category: models.DefaultCategory,
		style:    models.DefaultStyle,
		filters:  make(models.Filters),
	}
}

// NewWithDefaults starts from the given category and style. Invalid values
// fall back to the package defaults.
func NewWithDefaults(category models.Category, style models.Style) *State {
	s := New()
	if category.IsValid() {
		s.category = category
	}
	if style.IsValid() {
		s.style = style
	}
	return s
}

func (s *State) Category() models.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.category
}

func (s *State) SetCategory(c models.Category) error {
	if !c.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidCategory, c)
	}
	s.mu.Lock()
	s.category = c
	s.mu.Unlock()
	return nil
}

func (s *State) Style() models.Style {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.style
}

func (s *State) SetStyle(st models.Style) error {
	if !st.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidStyle, st)
	}
	s.mu.Lock()
	s.style = st
	s.mu.Unlock()
	return nil
}

// Filters returns a copy of the active filters.
func (s *State) Filters() models.Filters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters.Clone()
}

// SetFilter replaces the value for dim. Values matching a suggested option
// take the option's spelling.
func (s *State) SetFilter(dim models.FilterDimension, value string) error {
	value = dim.CanonicalValue(value)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters.Set(dim, value)
}

func (s *State) UnsetFilter(dim models.FilterDimension) error {
	if !dim.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidDimension, dim)
	}
	s.mu.Lock()
	delete(s.filters, dim)
	s.mu.Unlock()
	return nil
}

// ReplaceFilters swaps the whole filter set after validating it.
func (s *State) ReplaceFilters(f models.Filters) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.filters = f.Clone()
	s.mu.Unlock()
	return nil
}

func (s *State) ClearFilters() {
	s.mu.Lock()
	s.filters = make(models.Filters)
	s.mu.Unlock()
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Category: s.category,
		Style:    s.style,
		Filters:  s.filters.Clone(),
	}
}

// Reset restores the defaults and drops every filter.
func (s *State) Reset() {
	s.mu.Lock()
	s.category = models.DefaultCategory
	s.style = models.DefaultStyle
	s.filters = make(models.Filters)
	s.mu.Unlock()
}
