package engine

import (
	"fmt"
	"strings"

	"github.com/RainBowCreation/LangCategory/internal/domain"
)

// Формат записи в хранилище: "MODE|cat1,cat2,...".
// Хвост после '|' может быть пустым ("NONE|"), сама черта — опущена ("ALL"):
// исторические записи встречаются в обеих формах, декодер обязан читать обе.

// EncodePolicy собирает строковую запись политики.
// Категории сортируются — запись детерминирована и удобна для диффов в логах.
func EncodePolicy(p *domain.Policy) string {
	return string(p.Mode) + "|" + strings.Join(p.Categories(), ",")
}

// DecodePolicy разбирает запись. Режим сопоставляется строго (только верхний
// регистр), пустые сегменты списка пропускаются, категории приводятся к нижнему
// регистру. Нормализация формы здесь не выполняется: "ONLY|" читается как ONLY
// с пустым набором, ровно как записано.
func DecodePolicy(raw string) (*domain.Policy, error) {
	head, tail, _ := strings.Cut(raw, "|")

	mode, ok := domain.ParseMode(head)
	if !ok {
		return nil, fmt.Errorf("codec: unknown mode token %q", head)
	}

	p := domain.NewPolicy(mode)
	if tail != "" {
		for _, c := range strings.Split(tail, ",") {
			if c = domain.NormCategory(c); c != "" {
				p.Cats[c] = struct{}{}
			}
		}
	}
	return p, nil
}
