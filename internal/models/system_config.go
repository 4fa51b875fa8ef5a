package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Well-known system param names
const (
	ParamMaxCommissionPct = "max_commission_percentage"
)

// SystemLog represents a record in system_logs. Permanently failed
// replication legs land here (level ERROR, module "replication") for
// operator attention.
type SystemLog struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	Level      string    `gorm:"column:level;size:10;not null" json:"level"` // DEBUG, INFO, WARN, ERROR, FATAL
	Message    string    `gorm:"column:message;type:text;not null" json:"message"`
	Module     string    `gorm:"column:module;size:100" json:"module"`
	ErrorStack string    `gorm:"column:error_stack;type:text" json:"error_stack"`
	Meta       JSONMap   `gorm:"column:meta;type:jsonb" json:"meta"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (SystemLog) TableName() string {
	return "system_logs"
}

// SystemParams holds process-wide mutable configuration. The global
// commission cap is the row named max_commission_percentage with a
// float "value" in ParamsConfig; it is read fresh at settlement time.
type SystemParams struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	Name         string    `gorm:"column:name;size:128;not null;uniqueIndex" json:"name"`
	IsActive     bool      `gorm:"column:is_active;default:true" json:"is_active"`
	ParamsConfig JSONMap   `gorm:"column:params_config;type:jsonb" json:"params_config"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (SystemParams) TableName() string {
	return "system_params"
}

// JSONMap handles jsonb columns.
type JSONMap map[string]interface{}

func (j JSONMap) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to assert jsonb value as []byte")
	}

	return json.Unmarshal(bytes, &j)
}
