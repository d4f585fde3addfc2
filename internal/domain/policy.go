package domain

import (
	"sort"
	"strings"
)

// Mode определяет общую диспозицию политики по отношению к категориям.
type Mode string

const (
	ModeAll    Mode = "ALL"    // Разрешены все категории, набор игнорируется
	ModeNone   Mode = "NONE"   // Запрещены все категории (deny all)
	ModeOnly   Mode = "ONLY"   // Разрешены только категории из набора (allow-list)
	ModeExcept Mode = "EXCEPT" // Разрешено всё, кроме категорий из набора (deny-list)
)

// UncategorizedName — литеральное имя категории для контента без категории.
// Пустая категория при проверке всегда трактуется как это имя.
const UncategorizedName = "uncategorized"

// ParseMode строго сопоставляет токен с одним из четырех режимов.
// Регистр не приводится: "all" — не режим (контракт кодека, см. engine/codec.go).
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeAll, ModeNone, ModeOnly, ModeExcept:
		return Mode(s), true
	}
	return "", false
}

// ParseModeDefault — мягкий вариант для конфигурации: приводит к верхнему
// регистру и при неизвестном токене откатывается к ALL (fail-open по умолчанию).
func ParseModeDefault(s string) Mode {
	if m, ok := ParseMode(strings.ToUpper(s)); ok {
		return m
	}
	return ModeAll
}

// Policy — состояние доступа одной идентичности: режим плюс набор категорий.
// Набор всегда хранится в нижнем регистре (канонической формой владеют
// функции-переходы, а не вызывающая сторона).
type Policy struct {
	Mode Mode
	Cats map[string]struct{}
}

// NewPolicy создает политику в заданном режиме. Категории приводятся к
// нижнему регистру, пустые отбрасываются.
func NewPolicy(mode Mode, cats ...string) *Policy {
	p := &Policy{Mode: mode, Cats: make(map[string]struct{}, len(cats))}
	for _, c := range cats {
		if c = NormCategory(c); c != "" {
			p.Cats[c] = struct{}{}
		}
	}
	return p
}

// NormCategory приводит имя категории к канонической форме набора.
func NormCategory(c string) string {
	return strings.ToLower(c)
}

// Clone возвращает глубокую копию. Кэш и вызывающие стороны никогда не
// делят один экземпляр: aliased mutation закрываем структурно.
func (p *Policy) Clone() *Policy {
	cp := &Policy{Mode: p.Mode, Cats: make(map[string]struct{}, len(p.Cats))}
	for c := range p.Cats {
		cp.Cats[c] = struct{}{}
	}
	return cp
}

// Has проверяет членство категории в наборе (без учета регистра).
func (p *Policy) Has(cat string) bool {
	_, ok := p.Cats[NormCategory(cat)]
	return ok
}

// Categories возвращает набор отсортированным срезом — для ответов API и логов.
func (p *Policy) Categories() []string {
	out := make([]string, 0, len(p.Cats))
	for c := range p.Cats {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Decide — тотальная функция решения: всегда возвращает ответ, ошибок нет.
// Пустая категория трактуется как "uncategorized".
func (p *Policy) Decide(category string) bool {
	category = NormCategory(category)
	if category == "" {
		category = UncategorizedName
	}

	switch p.Mode {
	case ModeNone:
		return false
	case ModeOnly:
		_, ok := p.Cats[category]
		return ok
	case ModeExcept:
		_, ok := p.Cats[category]
		return !ok
	case ModeAll:
		return true
	default:
		// Неизвестный режим в рантайме не возникает (ParseMode строгий),
		// но решение обязано быть тотальным.
		return true
	}
}

// normalize приводит политику к простейшей эквивалентной форме:
// ONLY с пустым набором — это NONE, EXCEPT с пустым набором — это ALL.
// Вызывается жадно после каждого перехода, чтобы неканоническая форма
// никогда не попадала в хранилище.
func (p *Policy) normalize() *Policy {
	if len(p.Cats) == 0 {
		switch p.Mode {
		case ModeOnly:
			p.Mode = ModeNone
		case ModeExcept:
			p.Mode = ModeAll
		}
	}
	return p
}

func (p *Policy) clear() {
	for c := range p.Cats {
		delete(p.Cats, c)
	}
}

// EnableAll — режим ALL, набор очищается.
func (p *Policy) EnableAll() *Policy {
	p.Mode = ModeAll
	p.clear()
	return p
}

// DisableAll — режим NONE, набор очищается.
func (p *Policy) DisableAll() *Policy {
	p.Mode = ModeNone
	p.clear()
	return p
}

// EnableOnly оставляет разрешенной ровно одну категорию (allow-list из одного элемента).
func (p *Policy) EnableOnly(cat string) *Policy {
	p.Mode = ModeOnly
	p.clear()
	p.Cats[NormCategory(cat)] = struct{}{}
	return p
}

// DisableOnly блокирует ровно одну категорию, всё остальное открыто.
// Асимметрия с EnableOnly намеренная: EnableOnly сужает разрешенное до одной
// категории, DisableOnly сужает заблокированное до одной категории.
func (p *Policy) DisableOnly(cat string) *Policy {
	p.Mode = ModeExcept
	p.clear()
	p.Cats[NormCategory(cat)] = struct{}{}
	return p
}

// Enable разрешает категорию с учетом текущего режима.
func (p *Policy) Enable(cat string) *Policy {
	cat = NormCategory(cat)
	switch p.Mode {
	case ModeNone:
		p.Mode = ModeOnly
		p.clear()
		p.Cats[cat] = struct{}{}
	case ModeOnly:
		p.Cats[cat] = struct{}{}
	case ModeExcept:
		delete(p.Cats, cat)
	case ModeAll:
		// уже разрешена
	}
	return p.normalize()
}

// Disable запрещает категорию с учетом текущего режима.
func (p *Policy) Disable(cat string) *Policy {
	cat = NormCategory(cat)
	switch p.Mode {
	case ModeNone:
		// уже запрещена
	case ModeOnly:
		delete(p.Cats, cat)
	case ModeExcept:
		p.Cats[cat] = struct{}{}
	case ModeAll:
		p.Mode = ModeExcept
		p.clear()
		p.Cats[cat] = struct{}{}
	}
	return p.normalize()
}

// Toggle переключает видимость категории.
// NONE: ничего не разрешено — переключение открывает ровно эту категорию.
// ALL: разрешено всё — переключение блокирует ровно эту категорию.
// ONLY/EXCEPT: переворачиваем членство в наборе.
func (p *Policy) Toggle(cat string) *Policy {
	cat = NormCategory(cat)
	switch p.Mode {
	case ModeNone:
		p.Mode = ModeOnly
		p.clear()
		p.Cats[cat] = struct{}{}
	case ModeAll:
		p.Mode = ModeExcept
		p.clear()
		p.Cats[cat] = struct{}{}
	case ModeOnly, ModeExcept:
		if _, ok := p.Cats[cat]; ok {
			delete(p.Cats, cat)
		} else {
			p.Cats[cat] = struct{}{}
		}
	}
	return p.normalize()
}

// Equal сравнивает режим и содержимое набора.
func (p *Policy) Equal(other *Policy) bool {
	if p.Mode != other.Mode || len(p.Cats) != len(other.Cats) {
		return false
	}
	for c := range p.Cats {
		if _, ok := other.Cats[c]; !ok {
			return false
		}
	}
	return true
}
