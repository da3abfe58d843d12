package model

import "time"

// User represents a user document in MongoDB. The messaging backend only
// reads users; account management lives in the main product API.
type User struct {
	ID          string     `json:"id" bson:"_id,omitempty"`
	UserID      string     `json:"userId" bson:"user_id"`
	DisplayName string     `json:"displayName" bson:"display_name"`
	Email       string     `json:"email" bson:"email"`
	Avatar      string     `json:"avatar" bson:"avatar"`
	IsActive    bool       `json:"isActive" bson:"is_active"`
	CreatedAt   time.Time  `json:"createdAt" bson:"created_at"`
	UpdatedAt   *time.Time `json:"updatedAt" bson:"updated_at"`
}
