package models

// CounterModel is a named, monotonically increasing counter. Incrementing
// it inside a transaction locks the row until commit.
type CounterModel struct {
	Name string `gorm:"type:varchar(60);primary_key"`
	Seq  int64  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CounterModel) TableName() string {
	return "ledger_counters"
}
