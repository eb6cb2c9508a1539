package model

import "time"

// Listing is an offer to sell an item (or crate) at a price. Market and
// crate-shop listings share the shape but live in separate collections with
// independent dense id spaces.
type Listing struct {
	ID       int64     `bson:"_id" json:"id"`
	Seller   string    `bson:"seller" json:"seller"`
	Item     string    `bson:"item" json:"item"`
	Quantity int64     `bson:"quantity" json:"quantity"`
	Price    float64   `bson:"price" json:"price"`
	ListedAt time.Time `bson:"listed_at" json:"listed_at"`
}

// VendorSeller is the reserved seller id used by the restock tickers.
const VendorSeller = "@vendor"

// IsVendor reports whether the listing was injected by a restock ticker.
func (l Listing) IsVendor() bool {
	return l.Seller == VendorSeller
}

// Total is the full purchase cost of the listing.
func (l Listing) Total() float64 {
	return l.Price * float64(l.Quantity)
}
