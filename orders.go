package main

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/judyrop/storefront-analytics/models"
)

var (
	errCustomerNotFound  = errors.New("customer not found")
	errInvalidOrder      = errors.New("invalid order")
	errInsufficientStock = errors.New("insufficient stock")
)

type orderLine struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type orderRequest struct {
	CustomerID      uint        `json:"customer_id"`
	ShippingAddress string      `json:"shipping_address"`
	Items           []orderLine `json:"items"`
}

// placeOrder snapshots each product's current price into its line item,
// reserves stock and stores the order with its cached total, all in one
// transaction.
func placeOrder(ctx context.Context, db *gorm.DB, req orderRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", errInvalidOrder)
	}

	var order models.Order
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer models.Customer
		if err := tx.First(&customer, req.CustomerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errCustomerNotFound
			}
			return err
		}

		order = models.Order{
			CustomerID:      customer.ID,
			ShippingAddress: req.ShippingAddress,
		}
		for _, line := range req.Items {
			if line.Quantity <= 0 {
				return fmt.Errorf("%w: quantity must be positive", errInvalidOrder)
			}
			var product models.Product
			if err := tx.First(&product, line.ProductID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("%w: product %d not found", errInvalidOrder, line.ProductID)
				}
				return err
			}

			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", product.ID, line.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", line.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w for %s", errInsufficientStock, product.Name)
			}

			order.TotalAmount += float64(line.Quantity) * product.Price
			order.Items = append(order.Items, models.OrderItem{
				ProductID: product.ID,
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
			})
		}

		return tx.Create(&order).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}
