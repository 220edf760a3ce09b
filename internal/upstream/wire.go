package upstream

import (
	"fmt"
	"strings"
	"time"

	"auctionsearch/internal/domain"
)

type itemDTO struct {
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
	Status         string    `json:"status"`
	CreatedAt      timestamp `json:"createdAt"`
	UpdatedAt      timestamp `json:"updatedAt"`
	AuctionEnd     timestamp `json:"auctionEnd"`
}

func (w itemDTO) toDomain() domain.Item {
	return domain.Item{
		ID: w.ID, Make: w.Make, Model: w.Model, Color: w.Color,
		Year: w.Year, Mileage: w.Mileage, ImageURL: w.ImageURL,
		ReservePrice: w.ReservePrice, CurrentHighBid: w.CurrentHighBid, SoldAmount: w.SoldAmount,
		Seller: w.Seller, Winner: w.Winner, Status: domain.Status(w.Status),
		CreatedAt: time.Time(w.CreatedAt), UpdatedAt: time.Time(w.UpdatedAt), AuctionEnd: time.Time(w.AuctionEnd),
	}
}

// timestamp accepts RFC 3339 and zone-less ISO 8601 values; the latter are UTC.
type timestamp time.Time

var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*t = timestamp{}
		return nil
	}
	if v, err := time.Parse(time.RFC3339Nano, s); err == nil {
		*t = timestamp(v.UTC())
		return nil
	}
	for _, layout := range zonelessLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			*t = timestamp(v)
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
