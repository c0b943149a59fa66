package domain

import (
	"encoding/json"
	"time"
)

// Order is the canonical mirror of an upstream marketplace order.
// OrderID is the natural key, unique within a shop.
type Order struct {
	ID             string          `json:"id" bson:"_id,omitempty"`
	ShopID         string          `json:"shop_id" bson:"shop_id"`
	ExternalShopID string          `json:"external_shop_id" bson:"external_shop_id"`
	OrderID        string          `json:"order_id" bson:"order_id"`
	Status         string          `json:"status" bson:"status"`
	BuyerEmail     string          `json:"buyer_email" bson:"buyer_email"`
	Currency       string          `json:"currency" bson:"currency"`
	TotalAmount    float64         `json:"total_amount" bson:"total_amount"`
	ItemCount      int             `json:"item_count" bson:"item_count"`
	CreatedTime    time.Time       `json:"created_time" bson:"created_time"`
	Payload        json.RawMessage `json:"payload,omitempty" bson:"payload"`
}

// Product is the canonical mirror of an upstream product listing.
// ProductID is the natural key, unique within a shop.
type Product struct {
	ID             string          `json:"id" bson:"_id,omitempty"`
	ShopID         string          `json:"shop_id" bson:"shop_id"`
	ExternalShopID string          `json:"external_shop_id" bson:"external_shop_id"`
	ProductID      string          `json:"product_id" bson:"product_id"`
	Title          string          `json:"title" bson:"title"`
	Status         string          `json:"status" bson:"status"`
	Price          float64         `json:"price" bson:"price"`
	Stock          int             `json:"stock" bson:"stock"`
	Images         []string        `json:"images" bson:"images"`
	CreatedTime    time.Time       `json:"created_time" bson:"created_time"`
	Payload        json.RawMessage `json:"payload,omitempty" bson:"payload"`

	// Performance fields are merged from the trailing performance report
	// after the product rows themselves have been upserted.
	ClickThroughRate float64 `json:"click_through_rate" bson:"click_through_rate"`
	GMV              float64 `json:"gmv" bson:"gmv"`
	OrderCount       int     `json:"order_count" bson:"order_count"`
	UnitsSold        int     `json:"units_sold" bson:"units_sold"`
}

// Settlement is the canonical mirror of an upstream financial settlement.
// SettlementID is the natural key, unique within a shop.
type Settlement struct {
	ID               string          `json:"id" bson:"_id,omitempty"`
	ShopID           string          `json:"shop_id" bson:"shop_id"`
	ExternalShopID   string          `json:"external_shop_id" bson:"external_shop_id"`
	SettlementID     string          `json:"settlement_id" bson:"settlement_id"`
	OrderID          string          `json:"order_id" bson:"order_id"`
	Currency         string          `json:"currency" bson:"currency"`
	SettlementAmount float64         `json:"settlement_amount" bson:"settlement_amount"`
	FeeAmount        float64         `json:"fee_amount" bson:"fee_amount"`
	SettledTime      time.Time       `json:"settled_time" bson:"settled_time"`
	Payload          json.RawMessage `json:"payload,omitempty" bson:"payload"`
}

// ProductPerformance holds trailing-window analytics for one product,
// keyed by the product's natural key. Reported by the marketplace as a
// separate dataset and merged onto stored product rows.
type ProductPerformance struct {
	ProductID        string  `json:"product_id"`
	ClickThroughRate float64 `json:"click_through_rate"`
	GMV              float64 `json:"gmv"`
	OrderCount       int     `json:"order_count"`
	UnitsSold        int     `json:"units_sold"`
}
