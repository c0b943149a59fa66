package entity

import (
	"time"

	"shop-mirror-sync-layer/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoOrderDoc represents a mirrored order in MongoDB
type MongoOrderDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ShopID         string             `bson:"shop_id"`
	ExternalShopID string             `bson:"external_shop_id"`
	OrderID        string             `bson:"order_id"`
	Status         string             `bson:"status"`
	BuyerEmail     string             `bson:"buyer_email"`
	Currency       string             `bson:"currency"`
	TotalAmount    float64            `bson:"total_amount"`
	ItemCount      int                `bson:"item_count"`
	CreatedTime    time.Time          `bson:"created_time"`
	Payload        []byte             `bson:"payload"`
	UpdatedAt      time.Time          `bson:"updated_at"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoOrderDoc) ToDomain() *domain.Order {
	return &domain.Order{
		ID:             d.ID.Hex(),
		ShopID:         d.ShopID,
		ExternalShopID: d.ExternalShopID,
		OrderID:        d.OrderID,
		Status:         d.Status,
		BuyerEmail:     d.BuyerEmail,
		Currency:       d.Currency,
		TotalAmount:    d.TotalAmount,
		ItemCount:      d.ItemCount,
		CreatedTime:    d.CreatedTime,
		Payload:        d.Payload,
	}
}

// MongoOrderDocFromDomain converts a domain entity to a MongoDB document
func MongoOrderDocFromDomain(order *domain.Order) *MongoOrderDoc {
	return &MongoOrderDoc{
		ShopID:         order.ShopID,
		ExternalShopID: order.ExternalShopID,
		OrderID:        order.OrderID,
		Status:         order.Status,
		BuyerEmail:     order.BuyerEmail,
		Currency:       order.Currency,
		TotalAmount:    order.TotalAmount,
		ItemCount:      order.ItemCount,
		CreatedTime:    order.CreatedTime,
		Payload:        order.Payload,
	}
}

// MongoProductDoc represents a mirrored product in MongoDB
type MongoProductDoc struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	ShopID         string             `bson:"shop_id"`
	ExternalShopID string             `bson:"external_shop_id"`
	ProductID      string             `bson:"product_id"`
	Title          string             `bson:"title"`
	Status         string             `bson:"status"`
	Price          float64            `bson:"price"`
	Stock          int                `bson:"stock"`
	Images         []string           `bson:"images"`
	CreatedTime    time.Time          `bson:"created_time"`
	Payload        []byte             `bson:"payload"`

	ClickThroughRate float64 `bson:"click_through_rate"`
	GMV              float64 `bson:"gmv"`
	OrderCount       int     `bson:"order_count"`
	UnitsSold        int     `bson:"units_sold"`

	UpdatedAt time.Time `bson:"updated_at"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoProductDoc) ToDomain() *domain.Product {
	return &domain.Product{
		ID:               d.ID.Hex(),
		ShopID:           d.ShopID,
		ExternalShopID:   d.ExternalShopID,
		ProductID:        d.ProductID,
		Title:            d.Title,
		Status:           d.Status,
		Price:            d.Price,
		Stock:            d.Stock,
		Images:           d.Images,
		CreatedTime:      d.CreatedTime,
		Payload:          d.Payload,
		ClickThroughRate: d.ClickThroughRate,
		GMV:              d.GMV,
		OrderCount:       d.OrderCount,
		UnitsSold:        d.UnitsSold,
	}
}

// MongoProductDocFromDomain converts a domain entity to a MongoDB document
func MongoProductDocFromDomain(product *domain.Product) *MongoProductDoc {
	return &MongoProductDoc{
		ShopID:           product.ShopID,
		ExternalShopID:   product.ExternalShopID,
		ProductID:        product.ProductID,
		Title:            product.Title,
		Status:           product.Status,
		Price:            product.Price,
		Stock:            product.Stock,
		Images:           product.Images,
		CreatedTime:      product.CreatedTime,
		Payload:          product.Payload,
		ClickThroughRate: product.ClickThroughRate,
		GMV:              product.GMV,
		OrderCount:       product.OrderCount,
		UnitsSold:        product.UnitsSold,
	}
}

// MongoSettlementDoc represents a mirrored settlement in MongoDB
type MongoSettlementDoc struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	ShopID           string             `bson:"shop_id"`
	ExternalShopID   string             `bson:"external_shop_id"`
	SettlementID     string             `bson:"settlement_id"`
	OrderID          string             `bson:"order_id"`
	Currency         string             `bson:"currency"`
	SettlementAmount float64            `bson:"settlement_amount"`
	FeeAmount        float64            `bson:"fee_amount"`
	SettledTime      time.Time          `bson:"settled_time"`
	Payload          []byte             `bson:"payload"`
	UpdatedAt        time.Time          `bson:"updated_at"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoSettlementDoc) ToDomain() *domain.Settlement {
	return &domain.Settlement{
		ID:               d.ID.Hex(),
		ShopID:           d.ShopID,
		ExternalShopID:   d.ExternalShopID,
		SettlementID:     d.SettlementID,
		OrderID:          d.OrderID,
		Currency:         d.Currency,
		SettlementAmount: d.SettlementAmount,
		FeeAmount:        d.FeeAmount,
		SettledTime:      d.SettledTime,
		Payload:          d.Payload,
	}
}

// MongoSettlementDocFromDomain converts a domain entity to a MongoDB document
func MongoSettlementDocFromDomain(settlement *domain.Settlement) *MongoSettlementDoc {
	return &MongoSettlementDoc{
		ShopID:           settlement.ShopID,
		ExternalShopID:   settlement.ExternalShopID,
		SettlementID:     settlement.SettlementID,
		OrderID:          settlement.OrderID,
		Currency:         settlement.Currency,
		SettlementAmount: settlement.SettlementAmount,
		FeeAmount:        settlement.FeeAmount,
		SettledTime:      settlement.SettledTime,
		Payload:          settlement.Payload,
	}
}
