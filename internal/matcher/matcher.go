package matcher

import (
	"sort"
	"strings"

	"github.com/asquebay/pautabot/internal/model"
	"github.com/shopspring/decimal"
)

// DefaultKeywords - маркеры рекламного бюджета в описаниях заказов
var DefaultKeywords = []string{"publicidad", "publicitari"}

// DefaultTolerance - допустимое расхождение суммы заказов и дельты
var DefaultTolerance = decimal.NewFromInt(1)

// DefaultMaxCandidates ограничивает перебор подмножеств (2^n)
const DefaultMaxCandidates = 16

// Matcher привязывает дельту поставщика к конкретным заказам
type Matcher struct {
	keywords      []string
	tolerance     decimal.Decimal
	maxCandidates int
}

// New создаёт Matcher; пустые параметры заменяются значениями по умолчанию
// нулевой допуск означает точное совпадение суммы, отрицательный - допуск по умолчанию
func New(keywords []string, tolerance decimal.Decimal, maxCandidates int) *Matcher {
	normalized := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			normalized = append(normalized, k)
		}
	}
	if len(normalized) == 0 {
		normalized = DefaultKeywords
	}
	if tolerance.IsNegative() {
		tolerance = DefaultTolerance
	}
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	return &Matcher{
		keywords:      normalized,
		tolerance:     tolerance,
		maxCandidates: maxCandidates,
	}
}

// Relevant - описание содержит хотя бы одно ключевое слово (без учёта регистра)
func (m *Matcher) Relevant(description string) bool {
	d := strings.ToLower(description)
	for _, k := range m.keywords {
		if strings.Contains(d, k) {
			return true
		}
	}
	return false
}

// Match возвращает заказы, о которых нужно сообщить для данной дельты
// пустой результат не ошибка: у поставщика просто нет подходящих заказов
func (m *Matcher) Match(delta model.DeltaRecord, orders []model.PurchaseOrder, seen model.SeenOrderSet) []model.PurchaseOrder {
	var candidates []model.PurchaseOrder
	for _, o := range orders {
		if o.VendorID != delta.VendorID {
			continue
		}
		if !m.Relevant(o.Description) {
			continue
		}
		if seen.Has(o.Key()) {
			continue
		}
		candidates = append(candidates, o)
	}

	return m.Attribute(delta.Delta(), candidates)
}

// Attribute выбирает минимальное подмножество кандидатов, сумма которого
// отличается от delta не больше чем на tolerance
// при равном размере выигрывает подмножество с более ранними датами
// если подходящего подмножества нет, возвращаются все кандидаты:
// лишнее уведомление лучше потерянного
func (m *Matcher) Attribute(delta decimal.Decimal, candidates []model.PurchaseOrder) []model.PurchaseOrder {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]model.PurchaseOrder, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].IssueDate.Equal(sorted[j].IssueDate) {
			return sorted[i].IssueDate.Before(sorted[j].IssueDate)
		}
		return sorted[i].OrderID < sorted[j].OrderID
	})

	if len(sorted) > m.maxCandidates {
		return sorted
	}

	n := len(sorted)
	for k := 1; k <= n; k++ {
		if subset := m.firstMatchOfSize(delta, sorted, k); subset != nil {
			return subset
		}
	}

	return sorted
}

// firstMatchOfSize перебирает сочетания из k элементов в лексикографическом
// порядке индексов, поэтому первое найденное и есть самое раннее по датам
func (m *Matcher) firstMatchOfSize(delta decimal.Decimal, sorted []model.PurchaseOrder, k int) []model.PurchaseOrder {
	n := len(sorted)
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}

	for {
		sum := decimal.Zero
		for _, i := range idx {
			sum = sum.Add(sorted[i].Amount)
		}
		if sum.Sub(delta).Abs().LessThanOrEqual(m.tolerance) {
			subset := make([]model.PurchaseOrder, k)
			for j, i := range idx {
				subset[j] = sorted[i]
			}
			return subset
		}

		// следующее сочетание
		i := k - 1
		for i >= 0 && idx[i] == n-k+i {
			i--
		}
		if i < 0 {
			return nil
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
