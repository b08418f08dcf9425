package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

// Catalog is the file-backed decision-tree catalog. Files are loaded once and
// served from memory until Reload.
type Catalog struct {
	dir string

	mu        sync.RWMutex
	standards map[string]domain.Standard
	order     []string
}

func New(dir string) *Catalog {
	return &Catalog{dir: dir, standards: map[string]domain.Standard{}}
}

// Load builds a catalog and reads every catalog file in dir.
func Load(dir string) (*Catalog, error) {
	c := New(dir)
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Dir() string {
	return c.dir
}

// Reload re-reads the catalog directory and swaps the in-memory set atomically.
// On error the previous set is kept.
func (c *Catalog) Reload() error {
	standards, order, err := loadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reload catalog: %w", err)
	}

	c.mu.Lock()
	c.standards = standards
	c.order = order
	c.mu.Unlock()

	slog.Info("catalog_loaded", "dir", c.dir, "standards", len(order))
	return nil
}

func (c *Catalog) ListStandards() []domain.StandardInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.StandardInfo, 0, len(c.order))
	for _, key := range c.order {
		out = append(out, c.standards[key].Info())
	}
	return out
}

func (c *Catalog) GetStandard(key string) (domain.Standard, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	std, ok := c.standards[key]
	if !ok {
		std, ok = c.standards[domain.StandardKey(key)]
	}
	if !ok {
		return domain.Standard{}, domain.WrapError(domain.ErrStandardNotFound, "get standard", errors.New(key))
	}
	return std, nil
}

// ItemsForStandards returns the questions of the given standards in the
// order the keys were given. Unknown keys are skipped.
func (c *Catalog) ItemsForStandards(keys []string) []domain.Question {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.Question
	for _, key := range keys {
		std, ok := c.standards[key]
		if !ok {
			std, ok = c.standards[domain.StandardKey(key)]
		}
		if !ok {
			continue
		}
		out = append(out, std.Items...)
	}
	return out
}

// SearchItems finds questions whose text, original text or reference contains
// query, case-insensitively.
func (c *Catalog) SearchItems(query string) []domain.CatalogItem {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []domain.CatalogItem
	for _, key := range c.order {
		std := c.standards[key]
		for _, item := range std.Items {
			if strings.Contains(strings.ToLower(item.Question), needle) ||
				strings.Contains(strings.ToLower(item.OriginalQuestion), needle) ||
				strings.Contains(strings.ToLower(item.Reference), needle) {
				out = append(out, domain.CatalogItem{Standard: std.Section, Question: item})
			}
		}
	}
	return out
}

func (c *Catalog) Summary() domain.CatalogSummary {
	standards := c.ListStandards()

	total := 0
	frameworks := map[string]struct{}{}
	for _, std := range standards {
		total += std.ItemCount
		frameworks[std.Framework] = struct{}{}
	}
	names := make([]string, 0, len(frameworks))
	for name := range frameworks {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		names = []string{domain.DefaultFramework}
	}

	return domain.CatalogSummary{
		TotalStandards: len(standards),
		TotalQuestions: total,
		Frameworks:     names,
		Standards:      standards,
	}
}
