package models

import "time"

// SyncCheckpoint marks the newest order already loaded for a
// restaurant. It is keyed by order ID and date rather than page index,
// so API pagination changes cannot skew resumption.
type SyncCheckpoint struct {
	RestaurantID   int64
	RestaurantName string
	LastOrderID    int64
	LastOrderDate  time.Time
	LastSyncAt     time.Time
	TotalSynced    int64
}

// ShouldProcess reports whether an order is newer than the checkpoint.
// Orders on the same date are compared by ID, assuming IDs increment.
func (c *SyncCheckpoint) ShouldProcess(orderID int64, orderDate time.Time) bool {
	if c == nil {
		return true
	}
	if orderDate.After(c.LastOrderDate) {
		return true
	}
	return orderDate.Equal(c.LastOrderDate) && orderID > c.LastOrderID
}
