package handlers

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deadstock/models"
)

const requestTimeout = 10 * time.Second

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD or RFC 3339", s)
	}
	return t, nil
}

// dateRange builds a $gte/$lt clause from the from/to query params. "to" is
// inclusive of the whole day when given as a plain date.
func dateRange(q url.Values) (bson.M, error) {
	rng := bson.M{}
	if from := q.Get("from"); from != "" {
		t, err := parseDate(from)
		if err != nil {
			return nil, err
		}
		rng["$gte"] = t
	}
	if to := q.Get("to"); to != "" {
		t, err := parseDate(to)
		if err != nil {
			return nil, err
		}
		if len(to) == len("2006-01-02") {
			t = t.AddDate(0, 0, 1)
		}
		rng["$lt"] = t
	}
	if len(rng) == 0 {
		return nil, nil
	}
	return rng, nil
}

// containsRegex is a case-insensitive substring match on user input.
func containsRegex(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(strings.TrimSpace(s)), Options: "i"}
}

// assetFilter translates list query params into a Mongo filter. Unknown or
// empty values are ignored; "all" means no filter.
func assetFilter(q url.Values) (bson.M, error) {
	filter := bson.M{}
	set := func(key, field string) {
		if v := q.Get(key); v != "" && v != "all" {
			filter[field] = v
		}
	}
	set("status", "status")
	set("category", "category")
	set("location", "location")
	set("department", "department")
	set("condition", "condition")

	if v := q.Get("assignedTo"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			return nil, fmt.Errorf("invalid assignedTo")
		}
		filter["assignedTo"] = id
	}
	if v := q.Get("deadStock"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("deadStock must be true or false")
		}
		filter["isDeadStock"] = b
	}
	if s := q.Get("search"); strings.TrimSpace(s) != "" {
		re := containsRegex(s)
		filter["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"assetTag": re},
			bson.M{"serialNumber": re},
		}
	}
	return filter, nil
}

var assetSortFields = map[string]string{
	"name":         "name",
	"assetTag":     "assetTag",
	"category":     "category",
	"status":       "status",
	"purchaseDate": "purchaseDate",
	"purchaseCost": "purchaseCost",
	"createdAt":    "createdAt",
	"updatedAt":    "updatedAt",
}

// sortSpec reads ?sort=field or ?sort=-field, falling back to newest first.
func sortSpec(raw string, allowed map[string]string) bson.D {
	dir := 1
	if strings.HasPrefix(raw, "-") {
		dir = -1
		raw = raw[1:]
	}
	if field, ok := allowed[raw]; ok {
		return bson.D{{Key: field, Value: dir}, {Key: "_id", Value: 1}}
	}
	return bson.D{{Key: "createdAt", Value: -1}}
}

// pagedFind returns find options for a page sorted by sort.
func pagedFind(skip int64, limit int, sort bson.D) *options.FindOptions {
	return options.Find().SetSort(sort).SetSkip(skip).SetLimit(int64(limit))
}

// scopeFilter selects the assets a scheduled audit covers. Disposed assets are
// never audited.
func scopeFilter(scope models.AuditScope) bson.M {
	filter := bson.M{"status": bson.M{"$ne": models.AssetDisposed}}
	if len(scope.Categories) > 0 {
		filter["category"] = bson.M{"$in": scope.Categories}
	}
	if len(scope.Locations) > 0 {
		filter["location"] = bson.M{"$in": scope.Locations}
	}
	if len(scope.Departments) > 0 {
		filter["department"] = bson.M{"$in": scope.Departments}
	}
	if len(scope.Statuses) > 0 {
		statuses := make([]string, 0, len(scope.Statuses))
		for _, s := range scope.Statuses {
			if s != models.AssetDisposed {
				statuses = append(statuses, s)
			}
		}
		filter["status"] = bson.M{"$in": statuses}
	}
	return filter
}
