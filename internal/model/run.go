package model

// RunState - состояние автомата одного запуска
type RunState int

const (
	StateFetchingAggregates RunState = iota
	StateDetecting
	StateFetchingOrders
	StateMatching
	StateNotifying
	StateCommitting
	StateDone
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateFetchingAggregates:
		return "FETCHING_AGGREGATES"
	case StateDetecting:
		return "DETECTING"
	case StateFetchingOrders:
		return "FETCHING_ORDERS"
	case StateMatching:
		return "MATCHING"
	case StateNotifying:
		return "NOTIFYING"
	case StateCommitting:
		return "COMMITTING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal сообщает, что из состояния больше нет переходов
func (s RunState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// NotifyFailure - заказ, который не удалось отправить в этом запуске
type NotifyFailure struct {
	OrderKey string `json:"order_key"`
	OrderID  string `json:"order_id"`
	Error    string `json:"error"`
}

// RunResult - итог одного запуска
type RunResult struct {
	RunID          string          `json:"run_id"`
	State          RunState        `json:"-"`
	Failed         bool            `json:"failed"`
	Deltas         []DeltaRecord   `json:"-"`
	Notified       []string        `json:"notified"`
	Failures       []NotifyFailure `json:"failures,omitempty"`
	SkippedRecords int             `json:"skipped_records"`
}
