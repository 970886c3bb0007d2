package model

import (
	"errors"
	"fmt"
)

// ErrNotFound возвращается на путях чтения, когда записи нет
var ErrNotFound = errors.New("not found")

// FetchError - фид недоступен или вернул мусор; запуск прерывается целиком
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DataError - некорректная отдельная запись (отрицательная сумма, пустой vendor_id)
type DataError struct {
	Record string
	Reason string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("bad record %q: %s", e.Record, e.Reason)
}

// NotifyError - не удалось доставить уведомление об одном заказе после всех попыток
type NotifyError struct {
	OrderKey string
	Err      error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify order %s: %v", e.OrderKey, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}
