package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/teamsync/internal/client/repositories/preferences"
	"github.com/dmitrijs2005/teamsync/internal/models"
)

const (
	prefToken    = "token"
	prefSort     = "sort"
	prefFilters  = "filters"
	prefDropdown = "dropdown_options"
)

// Preferences is the typed view over the preferences table.
type Preferences struct {
	repo preferences.Repository
}

func NewPreferences(repo preferences.Repository) *Preferences {
	return &Preferences{repo: repo}
}

func (p *Preferences) Token(ctx context.Context) (string, error) {
	v, err := p.repo.Get(ctx, prefToken)
	return string(v), err
}

func (p *Preferences) SetToken(ctx context.Context, token string) error {
	return p.repo.Set(ctx, prefToken, []byte(token))
}

func (p *Preferences) ClearToken(ctx context.Context) error {
	return p.repo.Delete(ctx, prefToken)
}

// SortDesc defaults to newest first.
func (p *Preferences) SortDesc(ctx context.Context) (bool, error) {
	v, err := p.repo.Get(ctx, prefSort)
	if err != nil {
		return true, err
	}
	return string(v) != "asc", nil
}

func (p *Preferences) SetSortDesc(ctx context.Context, desc bool) error {
	v := "desc"
	if !desc {
		v = "asc"
	}
	return p.repo.Set(ctx, prefSort, []byte(v))
}

// Filters maps a field key to the value rows must carry.
func (p *Preferences) Filters(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	if err := p.getJSON(ctx, prefFilters, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Preferences) SetFilters(ctx context.Context, f map[string]string) error {
	if len(f) == 0 {
		return p.repo.Delete(ctx, prefFilters)
	}
	return p.setJSON(ctx, prefFilters, f)
}

// CacheDropdownOptions remembers the options of every dropdown column so
// they can be offered offline.
func (p *Preferences) CacheDropdownOptions(ctx context.Context, cols []models.Column) error {
	opts := make(map[string][]string)
	for _, c := range cols {
		if c.Kind == models.ColumnDropdown {
			opts[c.ID] = c.Options
		}
	}
	return p.setJSON(ctx, prefDropdown, opts)
}

// DropdownOptions returns the cached options keyed by column id.
func (p *Preferences) DropdownOptions(ctx context.Context) (map[string][]string, error) {
	out := map[string][]string{}
	if err := p.getJSON(ctx, prefDropdown, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Preferences) getJSON(ctx context.Context, key string, dst any) error {
	raw, err := p.repo.Get(ctx, key)
	if err != nil || raw == nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode preference %s: %w", key, err)
	}
	return nil
}

func (p *Preferences) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode preference %s: %w", key, err)
	}
	return p.repo.Set(ctx, key, raw)
}
