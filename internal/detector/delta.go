package detector

import (
	"sort"

	"github.com/asquebay/pautabot/internal/model"
	"github.com/shopspring/decimal"
)

// Detect сравнивает текущие суммы поставщиков с предыдущими
// и возвращает дельты только для тех, у кого сумма строго выросла
//
// поставщик, которого не было в previous, в результат не попадает:
// его сумма просто становится новой базой (иначе первый запуск
// сообщил бы обо всей истории расходов)
// поставщик, пропавший из current, игнорируется
// результат отсортирован по vendor_id
func Detect(current, previous map[string]decimal.Decimal) ([]model.DeltaRecord, error) {
	for id, amount := range current {
		if err := checkAmount(id, amount); err != nil {
			return nil, err
		}
	}
	for id, amount := range previous {
		if err := checkAmount(id, amount); err != nil {
			return nil, err
		}
	}

	var deltas []model.DeltaRecord
	for id, cur := range current {
		prev, ok := previous[id]
		if !ok {
			continue
		}
		if cur.GreaterThan(prev) {
			deltas = append(deltas, model.DeltaRecord{
				VendorID:       id,
				PreviousAmount: prev,
				CurrentAmount:  cur,
			})
		}
	}

	sort.Slice(deltas, func(i, j int) bool {
		return deltas[i].VendorID < deltas[j].VendorID
	})

	return deltas, nil
}

func checkAmount(vendorID string, amount decimal.Decimal) error {
	if vendorID == "" {
		return &model.DataError{Record: vendorID, Reason: "missing vendor_id"}
	}
	if amount.IsNegative() {
		return &model.DataError{Record: vendorID, Reason: "negative amount " + amount.String()}
	}
	return nil
}
