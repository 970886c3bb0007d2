package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// VendorTotal - накопленная сумма расходов по одному поставщику на момент запуска
type VendorTotal struct {
	VendorID         string          `json:"vendor_id" validate:"required"`
	VendorName       string          `json:"vendor_name"`
	CumulativeAmount decimal.Decimal `json:"cumulative_amount" validate:"gte=0"`
	AsOf             time.Time       `json:"as_of"`
}

// Validate проверяет корректность записи агрегированного фида
func (v *VendorTotal) Validate() error {
	return validate.Struct(v)
}

// Snapshot - последние известные суммы по поставщикам (vendor_id -> VendorTotal)
// заменяется целиком только после успешного запуска
type Snapshot map[string]VendorTotal

// Amounts возвращает суммы снапшота в виде vendor_id -> amount
func (s Snapshot) Amounts() map[string]decimal.Decimal {
	amounts := make(map[string]decimal.Decimal, len(s))
	for id, v := range s {
		amounts[id] = v.CumulativeAmount
	}
	return amounts
}

// Merge возвращает новый снапшот: текущие суммы перекрывают предыдущие,
// поставщики, отсутствующие в current, сохраняют старую базу
func (s Snapshot) Merge(current []VendorTotal) Snapshot {
	merged := make(Snapshot, len(s)+len(current))
	for id, v := range s {
		merged[id] = v
	}
	for _, v := range current {
		merged[v.VendorID] = v
	}
	return merged
}

// DeltaRecord - обнаруженное изменение суммы поставщика, не сохраняется
type DeltaRecord struct {
	VendorID       string
	PreviousAmount decimal.Decimal
	CurrentAmount  decimal.Decimal
}

// Delta = current - previous
func (d DeltaRecord) Delta() decimal.Decimal {
	return d.CurrentAmount.Sub(d.PreviousAmount)
}
