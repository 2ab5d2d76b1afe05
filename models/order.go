package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFulfilled OrderStatus = "fulfilled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) String() string {
	return string(s)
}

// Order is the locally persisted record of a provider order.
// ProviderOrderID is the reconciliation dedup key.
type Order struct {
	ID                uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	ProviderOrderID   string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"providerOrderId"`
	ProviderPaymentID *string     `gorm:"type:varchar(64)" json:"providerPaymentId,omitempty"`
	IdempotencyKey    *string     `gorm:"type:varchar(64);index" json:"-"`
	Status            OrderStatus `gorm:"type:varchar(20);not null" json:"status"`
	CustomerName      string      `gorm:"type:varchar(255)" json:"customerName"`
	CustomerEmail     string      `gorm:"type:varchar(255);index" json:"customerEmail"`
	CustomerPhone     string      `gorm:"type:varchar(32)" json:"customerPhone"`
	ShippingAddress   Address     `gorm:"embedded;embeddedPrefix:shipping_" json:"shippingAddress"`
	Items             []LineItem  `gorm:"serializer:json" json:"items"`
	Currency          string      `gorm:"type:varchar(10);not null" json:"currency"`
	SubtotalMinor     int64       `json:"subtotalMinor"`
	ShippingMinor     int64       `json:"shippingMinor"`
	TaxMinor          int64       `json:"taxMinor"`
	TotalMinor        int64       `gorm:"not null" json:"totalMinor"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}
