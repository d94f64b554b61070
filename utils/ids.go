package utils

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func shortID(n int) string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:n])
}

// NewAssetTag returns a tag like AST-3F9A1C2B.
func NewAssetTag() string {
	return "AST-" + shortID(8)
}

// NewPONumber returns a number like PO-20240131-7F3A.
func NewPONumber(now time.Time) string {
	return fmt.Sprintf("PO-%s-%s", now.Format("20060102"), shortID(4))
}

// NewInvoiceNumber returns a number like INV-202401-9C2D1E.
func NewInvoiceNumber(now time.Time) string {
	return fmt.Sprintf("INV-%s-%s", now.Format("200601"), shortID(6))
}

// PathObjectID parses the named mux variable, writing a 400 on failure.
func PathObjectID(w http.ResponseWriter, r *http.Request, name string) (primitive.ObjectID, bool) {
	raw := mux.Vars(r)[name]
	if raw == "" {
		RespondWithError(w, http.StatusBadRequest, name+" required")
		return primitive.NilObjectID, false
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid "+name+" format")
		return primitive.NilObjectID, false
	}
	return id, true
}

// ParseOptionalObjectID returns nil for an empty string.
func ParseOptionalObjectID(s string) (*primitive.ObjectID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
