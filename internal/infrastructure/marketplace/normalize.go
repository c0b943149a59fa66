package marketplace

import (
	"encoding/json"
	"fmt"
	"time"

	"shop-mirror-sync-layer/internal/domain"
)

// The platform nests list results under different field names depending
// on the endpoint version that served the request. Each normalizer maps
// every shape it has been observed to return into the one canonical
// domain record, so no synchronizer logic ever sees upstream drift.

type rawOrder struct {
	OrderID     string  `json:"order_id"`
	ID          string  `json:"id"`
	Status      string  `json:"order_status"`
	BuyerEmail  string  `json:"buyer_email"`
	Currency    string  `json:"currency"`
	TotalAmount float64 `json:"total_amount"`
	ItemCount   int     `json:"item_count"`
	CreateTime  int64   `json:"create_time"`
}

type rawSettlement struct {
	SettlementID     string  `json:"settlement_id"`
	ID               string  `json:"id"`
	OrderID          string  `json:"order_id"`
	Currency         string  `json:"currency"`
	SettlementAmount float64 `json:"settlement_amount"`
	FeeAmount        float64 `json:"fee_amount"`
	SettledTime      int64   `json:"settled_time"`
}

type rawProduct struct {
	ProductID  string   `json:"product_id"`
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Status     string   `json:"status"`
	Price      float64  `json:"price"`
	Stock      int      `json:"stock"`
	Images     []string `json:"images"`
	CreateTime int64    `json:"create_time"`
}

// listEnvelope covers every field name the platform has used for list
// payloads and pagination cursors across endpoint versions.
type listEnvelope struct {
	Orders         json.RawMessage `json:"orders"`
	OrderList      json.RawMessage `json:"order_list"`
	Settlements    json.RawMessage `json:"settlements"`
	SettlementList json.RawMessage `json:"settlement_list"`
	Products       json.RawMessage `json:"products"`
	ProductList    json.RawMessage `json:"product_list"`

	NextPageToken string `json:"next_page_token"`
	PageToken     string `json:"page_token"`
}

func (e *listEnvelope) nextToken() string {
	if e.NextPageToken != "" {
		return e.NextPageToken
	}
	return e.PageToken
}

func firstPresent(candidates ...json.RawMessage) json.RawMessage {
	for _, c := range candidates {
		if len(c) > 0 && string(c) != "null" {
			return c
		}
	}
	return nil
}

func normalizeOrderPage(data json.RawMessage, externalShopID string) ([]domain.Order, string, error) {
	var env listEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("failed to decode order page: %w", err)
	}

	list := firstPresent(env.OrderList, env.Orders)
	if list == nil {
		return nil, env.nextToken(), nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(list, &raws); err != nil {
		return nil, "", fmt.Errorf("failed to decode order list: %w", err)
	}

	orders := make([]domain.Order, 0, len(raws))
	for _, r := range raws {
		var ro rawOrder
		if err := json.Unmarshal(r, &ro); err != nil {
			return nil, "", fmt.Errorf("failed to decode order: %w", err)
		}
		id := ro.OrderID
		if id == "" {
			id = ro.ID
		}
		orders = append(orders, domain.Order{
			ExternalShopID: externalShopID,
			OrderID:        id,
			Status:         ro.Status,
			BuyerEmail:     ro.BuyerEmail,
			Currency:       ro.Currency,
			TotalAmount:    ro.TotalAmount,
			ItemCount:      ro.ItemCount,
			CreatedTime:    time.Unix(ro.CreateTime, 0).UTC(),
			Payload:        r,
		})
	}
	return orders, env.nextToken(), nil
}

func normalizeSettlementPage(data json.RawMessage, externalShopID string) ([]domain.Settlement, string, error) {
	var env listEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("failed to decode settlement page: %w", err)
	}

	list := firstPresent(env.SettlementList, env.Settlements)
	if list == nil {
		return nil, env.nextToken(), nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(list, &raws); err != nil {
		return nil, "", fmt.Errorf("failed to decode settlement list: %w", err)
	}

	settlements := make([]domain.Settlement, 0, len(raws))
	for _, r := range raws {
		var rs rawSettlement
		if err := json.Unmarshal(r, &rs); err != nil {
			return nil, "", fmt.Errorf("failed to decode settlement: %w", err)
		}
		id := rs.SettlementID
		if id == "" {
			id = rs.ID
		}
		settlements = append(settlements, domain.Settlement{
			ExternalShopID:   externalShopID,
			SettlementID:     id,
			OrderID:          rs.OrderID,
			Currency:         rs.Currency,
			SettlementAmount: rs.SettlementAmount,
			FeeAmount:        rs.FeeAmount,
			SettledTime:      time.Unix(rs.SettledTime, 0).UTC(),
			Payload:          r,
		})
	}
	return settlements, env.nextToken(), nil
}

func normalizeProductPage(data json.RawMessage, externalShopID string) ([]domain.Product, string, error) {
	var env listEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", fmt.Errorf("failed to decode product page: %w", err)
	}

	list := firstPresent(env.ProductList, env.Products)
	if list == nil {
		return nil, env.nextToken(), nil
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(list, &raws); err != nil {
		return nil, "", fmt.Errorf("failed to decode product list: %w", err)
	}

	products := make([]domain.Product, 0, len(raws))
	for _, r := range raws {
		p, err := normalizeProduct(r, externalShopID)
		if err != nil {
			return nil, "", err
		}
		products = append(products, *p)
	}
	return products, env.nextToken(), nil
}

func normalizeProduct(data json.RawMessage, externalShopID string) (*domain.Product, error) {
	var rp rawProduct
	if err := json.Unmarshal(data, &rp); err != nil {
		return nil, fmt.Errorf("failed to decode product: %w", err)
	}
	id := rp.ProductID
	if id == "" {
		id = rp.ID
	}
	return &domain.Product{
		ExternalShopID: externalShopID,
		ProductID:      id,
		Title:          rp.Title,
		Status:         rp.Status,
		Price:          rp.Price,
		Stock:          rp.Stock,
		Images:         rp.Images,
		CreatedTime:    time.Unix(rp.CreateTime, 0).UTC(),
		Payload:        data,
	}, nil
}
