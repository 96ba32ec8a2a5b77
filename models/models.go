package models

import "time"

// Entities keep explicit ID/timestamp columns instead of gorm.Model so the
// analytics reads never have to account for soft-deleted rows.

type Product struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"not null;index" json:"name"`
	Description string    `json:"description"`
	Price       float64   `gorm:"not null" json:"price"`
	Category    string    `gorm:"not null;index" json:"category"`
	Stock       int       `gorm:"not null" json:"stock"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"not null;uniqueIndex" json:"email"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	City      string    `json:"city"`
	Country   string    `json:"country"`
	Orders    []Order   `json:"orders,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Order.TotalAmount is a cached sum written at creation time. Reports always
// recompute revenue from the line items.
type Order struct {
	ID              uint        `gorm:"primaryKey" json:"id"`
	CustomerID      uint        `gorm:"not null;index" json:"customer_id"`
	Customer        Customer    `json:"-"`
	Status          string      `gorm:"default:pending;index" json:"status"`
	ShippingAddress string      `gorm:"type:text" json:"shipping_address"`
	TotalAmount     float64     `gorm:"not null;default:0" json:"total_amount"`
	Items           []OrderItem `json:"items,omitempty"`
	CreatedAt       time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// OrderItem.UnitPrice is the product price at the time the order was placed.
type OrderItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	OrderID   uint      `gorm:"not null;index:idx_order_items_order_product" json:"order_id"`
	ProductID uint      `gorm:"not null;index:idx_order_items_order_product" json:"product_id"`
	Product   Product   `json:"-"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	UnitPrice float64   `gorm:"not null" json:"unit_price"`
	CreatedAt time.Time `json:"created_at"`
}

type Cart struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CustomerID *uint      `gorm:"index" json:"customer_id"`
	SessionID  string     `gorm:"index" json:"session_id"`
	Items      []CartItem `json:"items,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type CartItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CartID    uint      `gorm:"not null;index:idx_cart_items_cart_product" json:"cart_id"`
	ProductID uint      `gorm:"not null;index:idx_cart_items_cart_product" json:"product_id"`
	Quantity  int       `gorm:"not null;default:1" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AnalyticsEvent is a storefront visit. Only its count is used, as the
// denominator of the conversion rate.
type AnalyticsEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Path      string    `json:"path"`
	SessionID string    `gorm:"index" json:"session_id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// All lists every entity for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Product{}, &Customer{}, &Order{}, &OrderItem{},
		&Cart{}, &CartItem{}, &AnalyticsEvent{},
	}
}
