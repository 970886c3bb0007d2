package model

import (
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// PurchaseOrder - одна позиция фида заказов (orden de compra)
// после публикации не меняется; OrderID уникален только в пределах финансового года
type PurchaseOrder struct {
	OrderID     string          `json:"order_id" validate:"required"`
	VendorID    string          `json:"vendor_id" validate:"required"`
	VendorName  string          `json:"vendor_name"`
	Amount      decimal.Decimal `json:"amount" validate:"gte=0"`
	Description string          `json:"description"`
	IssueDate   time.Time       `json:"issue_date"`
	FiscalYear  int             `json:"fiscal_year" validate:"required,gt=0"`
	Department  string          `json:"department"`
	FileNumber  string          `json:"file_number"`
}

// Key - идентификатор заказа для дедупликации: "<fiscal_year>/<order_id>"
func (o PurchaseOrder) Key() string {
	return OrderKey(o.FiscalYear, o.OrderID)
}

// OrderKey строит ключ заказа из года и номера
func OrderKey(fiscalYear int, orderID string) string {
	return strconv.Itoa(fiscalYear) + "/" + orderID
}

// Validate проверяет корректность заказа на основе тегов validate
func (o *PurchaseOrder) Validate() error {
	return validate.Struct(o)
}

var validate = newValidator()

// newValidator учит валидатор сравнивать decimal.Decimal как число,
// иначе теги gte/gt к суммам не применимы
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}
