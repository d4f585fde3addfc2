package catalog

import (
	"context"
	"sort"

	"github.com/RainBowCreation/LangCategory/internal/domain"
)

// Provider — источник справочника известных категорий.
// Справочник чисто информационный (команда list): движок принимает решения
// по любому имени, незнакомые категории не отклоняются.
type Provider interface {
	Categories(ctx context.Context) ([]string, error)
}

// Static отдает список из конфигурации: нижний регистр, без дублей, по алфавиту.
type Static struct {
	cats []string
}

func NewStatic(cats []string) *Static {
	seen := make(map[string]struct{}, len(cats))
	out := make([]string, 0, len(cats))
	for _, c := range cats {
		c = domain.NormCategory(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return &Static{cats: out}
}

func (s *Static) Categories(_ context.Context) ([]string, error) {
	out := make([]string, len(s.cats))
	copy(out, s.cats)
	return out, nil
}
