package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification is an in-app toast. Role broadcasts are fanned out into one
// document per recipient, Role recording the audience.
type Notification struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID  `bson:"userId" json:"userId"`
	Role      string              `bson:"role,omitempty" json:"role,omitempty"`
	Title     string              `bson:"title" json:"title"`
	Message   string              `bson:"message" json:"message"`
	Type      string              `bson:"type" json:"type"` // info, success, warning, error
	Link      string              `bson:"link,omitempty" json:"link,omitempty"`
	Read      bool                `bson:"read" json:"read"`
	CreatedAt time.Time           `bson:"createdAt" json:"createdAt"`
}
