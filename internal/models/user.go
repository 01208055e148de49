package models

import (
	"time"
)

type User struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserLayer binds a user to one layer through a wallet address.
type UserLayer struct {
	ID        string    `json:"id"`
	Address   string    `json:"address"`
	LayerID   string    `json:"layerId"`
	UserID    string    `json:"userId"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
