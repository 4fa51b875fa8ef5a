package models

import (
	"time"
)

// AlgoStrategy is a named strategy. A strategy may run across multiple
// master traders; the linkage lives in strategy_master_trader so lookups
// work by either key.
type AlgoStrategy struct {
	ID                 uint      `gorm:"primarykey" json:"id"`
	Name               string    `gorm:"size:64;not null" json:"name"`
	CopyTradingEnabled bool      `gorm:"default:false" json:"copy_trading_enabled"`
	CreatedAt          time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt          time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (AlgoStrategy) TableName() string {
	return "algo_strategy"
}

// StrategyMasterTrader is the explicit many-to-many relation between
// strategies and master traders.
type StrategyMasterTrader struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	StrategyID     uint      `gorm:"not null;uniqueIndex:idx_strategy_master" json:"strategy_id"`
	MasterTraderID uint      `gorm:"not null;uniqueIndex:idx_strategy_master;index" json:"master_trader_id"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (StrategyMasterTrader) TableName() string {
	return "strategy_master_trader"
}
