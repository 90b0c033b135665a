package models

// Fill — результат исполнения ордера на бирже.
type Fill struct {
	Price    float64
	Quantity float64
	OrderID  string
}
