package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/freightbid-backend/pkg/enums"
)

// Shipment is the aggregate negotiated across carriers.
type Shipment struct {
	ID             int64                `gorm:"column:id;primaryKey;autoIncrement"`
	RequestedAt    time.Time            `gorm:"column:requested_at;not null"`
	Spots          int                  `gorm:"column:spots;not null"`
	Weight         decimal.Decimal      `gorm:"column:weight;type:numeric(12,2);not null"`
	DestinationZIP string               `gorm:"column:destination_zip;not null"`
	Status         enums.ShipmentStatus `gorm:"column:status;not null;default:'quoting'"`
	FinalWinner    *string              `gorm:"column:final_winner"`
	FinalPrice     decimal.NullDecimal  `gorm:"column:final_price;type:numeric(12,2)"`
	// LeaderCarrier and LeaderPrice snapshot the lowest initial bid when negotiation opens.
	LeaderCarrier       *string             `gorm:"column:leader_carrier"`
	LeaderPrice         decimal.NullDecimal `gorm:"column:leader_price;type:numeric(12,2)"`
	ExpectedFinalOffers *int                `gorm:"column:expected_final_offers"`
	CompletedAt         *time.Time          `gorm:"column:completed_at"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Shipment) TableName() string { return "shipments" }
