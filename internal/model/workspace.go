package model

import "time"

// Workspace is the household boundary owning one list and one purchase history.
type Workspace struct {
	ID             int64     `json:"id"`
	Name           string    `json:"name"`
	Currency       string    `json:"currency"`
	ListVersion    int64     `json:"list_version"`
	HistoryVersion int64     `json:"history_version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
