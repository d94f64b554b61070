package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	VendorActive      = "active"
	VendorInactive    = "inactive"
	VendorBlacklisted = "blacklisted"
)

var VendorStatuses = []string{VendorActive, VendorInactive, VendorBlacklisted}

type Vendor struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	ContactPerson string             `bson:"contactPerson,omitempty" json:"contactPerson,omitempty"`
	Email         string             `bson:"email,omitempty" json:"email,omitempty"`
	Phone         string             `bson:"phone,omitempty" json:"phone,omitempty"`
	Address       string             `bson:"address,omitempty" json:"address,omitempty"`
	Website       string             `bson:"website,omitempty" json:"website,omitempty"`
	Category      string             `bson:"category,omitempty" json:"category,omitempty"`
	Rating        float64            `bson:"rating" json:"rating"`
	Status        string             `bson:"status" json:"status"`
	Notes         string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}
