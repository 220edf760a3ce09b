package domain

import "time"

type Status string

const (
	StatusLive          Status = "Live"
	StatusFinished      Status = "Finished"
	StatusReserveNotMet Status = "ReserveNotMet"
)

// Item is the searchable projection of an auction held by the replica.
// Status is informational only; time filters derive from AuctionEnd.
type Item struct {
	ID             string    `json:"id"`
	Make           string    `json:"make"`
	Model          string    `json:"model"`
	Color          string    `json:"color"`
	Year           int       `json:"year"`
	Mileage        int       `json:"mileage"`
	ImageURL       string    `json:"imageUrl"`
	ReservePrice   int       `json:"reservePrice"`
	CurrentHighBid int       `json:"currentHighBid"`
	SoldAmount     int       `json:"soldAmount"`
	Seller         string    `json:"seller"`
	Winner         string    `json:"winner"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	AuctionEnd     time.Time `json:"auctionEnd"`
}

// Page is the search response envelope.
type Page struct {
	Results    []Item `json:"results"`
	PageCount  int    `json:"pageCount"`
	TotalCount int    `json:"totalCount"`
}
