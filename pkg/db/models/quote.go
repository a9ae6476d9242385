package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freightbid-backend/pkg/enums"
)

// Quote is one carrier's reply slot for a shipment and round.
type Quote struct {
	ID            int64               `gorm:"column:id;primaryKey;autoIncrement"`
	ShipmentID    int64               `gorm:"column:shipment_id;not null"`
	CarrierName   string              `gorm:"column:carrier_name;not null"`
	QuoteType     enums.QuoteType     `gorm:"column:quote_type;not null"`
	Price         decimal.NullDecimal `gorm:"column:price;type:numeric(12,2)"`
	ReceivedAt    *time.Time          `gorm:"column:received_at"`
	Status        enums.QuoteStatus   `gorm:"column:status;not null;default:'pending'"`
	DispatchError *string             `gorm:"column:dispatch_error"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Quote) TableName() string { return "quotes" }
