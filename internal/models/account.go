package models

import "time"

// Account is a registered user. PasswordHash never leaves the server.
type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Language     string
	Location     string
}

// PublicAccount is the JSON view of an Account returned by register/login.
type PublicAccount struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Language string `json:"language"`
	Location string `json:"location,omitempty"`
}

// Public strips credentials from the account.
func (a Account) Public() PublicAccount {
	return PublicAccount{
		ID:       a.ID,
		Username: a.Username,
		Language: a.Language,
		Location: a.Location,
	}
}

// HistoryRecord is one persisted advisory result. Records are never updated in place.
type HistoryRecord struct {
	ID          string    `json:"_id"`
	UserID      string    `json:"userId"`
	City        string    `json:"city"`
	Temperature float64   `json:"temperature"`
	Condition   string    `json:"condition"`
	Advice      string    `json:"advice"`
	Irrigate    bool      `json:"irrigate"`
	CreatedAt   time.Time `json:"date"`
}
