package domain

import "time"

// Booster is one entry of the promotional price list. The catalog is owned by
// an external admin surface; the engine only reads it. Code and Price are the
// load-bearing fields for billing math.
type Booster struct {
	Code        string  `gorm:"column:code;type:varchar(40);primaryKey" json:"code"`
	Name        string  `gorm:"column:name;not null" json:"name"`
	Price       float64 `gorm:"column:price;type:decimal(18,2);not null" json:"price"`
	Description string  `gorm:"column:description" json:"description"`

	CreatedAt time.Time `gorm:"column:createdAt" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updatedAt" json:"updatedAt"`
}

func (Booster) TableName() string {
	return "Boosters"
}
