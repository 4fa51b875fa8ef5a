package models

import (
	"time"
)

// SymbolConfig holds per-symbol trading parameters. MinIncrement is the
// minimum tradable quantity step used when rounding follower sizes down.
type SymbolConfig struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	Symbol       string    `gorm:"size:32;not null;uniqueIndex" json:"symbol"`
	MinIncrement float64   `gorm:"not null;default:0.01" json:"min_increment"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (SymbolConfig) TableName() string {
	return "symbol_config"
}
