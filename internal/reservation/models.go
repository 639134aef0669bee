package reservation

import (
	"time"

	"github.com/shopspring/decimal"
)

type (
	UserID        string
	StoreID       string
	ItemID        string
	CartEntryID   string
	ReservationID string
)

type User struct {
	ID UserID
}

type Store struct {
	ID        StoreID `json:"id"`
	Name      string  `json:"store_name"`
	Address   string  `json:"address"`
	OpenState bool    `json:"open_state"`
	MainImage string  `json:"main_image"`
}

type Item struct {
	ID                ItemID
	StoreID           StoreID
	Name              string
	QuantityAvailable int
	SalePrice         decimal.Decimal
	OnSale            bool
}

type CartEntry struct {
	ID        CartEntryID
	UserID    UserID
	ItemID    ItemID
	StoreID   StoreID
	ItemCount int
	Active    bool
}

// Reservation is immutable once created. CartEntryIDs is a snapshot taken at
// creation; TotalPrice and TotalSalePrice are currently always equal.
type Reservation struct {
	ID             ReservationID
	UserID         UserID
	StoreID        StoreID
	CartEntryIDs   []CartEntryID
	TotalPrice     decimal.Decimal
	TotalSalePrice decimal.Decimal
	Note           string
	Status         Status
	CreatedAt      time.Time
}

type CreateReservationRequest struct {
	Note string `json:"note"`
}

type ItemPreview struct {
	Name     string `json:"item_name"`
	Quantity int    `json:"item_quantity"`
}

// emptyPreview stands in for a reservation whose first cart entry is gone.
var emptyPreview = ItemPreview{Name: " ", Quantity: 0}

type ReservationSummary struct {
	ID             ReservationID   `json:"reservation_id"`
	Store          Store           `json:"store"`
	FirstItem      ItemPreview     `json:"first_item"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	TotalSalePrice decimal.Decimal `json:"total_sale_price"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

type CartLine struct {
	CartEntryID CartEntryID     `json:"cart_id"`
	ItemID      ItemID          `json:"item_id"`
	ItemName    string          `json:"item_name"`
	ItemCount   int             `json:"item_count"`
	SalePrice   decimal.Decimal `json:"sale_price"`
}

type ReservationDetail struct {
	ID             ReservationID   `json:"reservation_id"`
	Store          Store           `json:"store"`
	Lines          []CartLine      `json:"carts"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	TotalSalePrice decimal.Decimal `json:"total_sale_price"`
	Note           string          `json:"note,omitempty"`
	Status         Status          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}
