package types

import (
	"sort"
	"time"
)

// Universe is a named set of tradable symbols with a last-updated stamp.
type Universe struct {
	Name       string
	symbols    map[string]struct{}
	UpdateTime time.Time
}

// NewUniverse creates a universe containing the given symbols.
func NewUniverse(name string, symbols ...string) *Universe {
	u := &Universe{
		Name:    name,
		symbols: make(map[string]struct{}, len(symbols)),
	}
	u.SetSymbols(symbols, time.Now())
	return u
}

// Add inserts a symbol.
func (u *Universe) Add(symbol string, ts time.Time) {
	u.symbols[symbol] = struct{}{}
	u.UpdateTime = ts
}

// Remove deletes a symbol.
func (u *Universe) Remove(symbol string, ts time.Time) {
	delete(u.symbols, symbol)
	u.UpdateTime = ts
}

// SetSymbols replaces the whole set.
func (u *Universe) SetSymbols(symbols []string, ts time.Time) {
	u.symbols = make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		u.symbols[s] = struct{}{}
	}
	u.UpdateTime = ts
}

// Contains reports membership.
func (u *Universe) Contains(symbol string) bool {
	_, ok := u.symbols[symbol]
	return ok
}

// Symbols returns the members in sorted order.
func (u *Universe) Symbols() []string {
	out := make([]string, 0, len(u.symbols))
	for s := range u.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of symbols.
func (u *Universe) Len() int {
	return len(u.symbols)
}
