// Package store provides MongoDB-backed survey record persistence.
package store

import (
	"context"
	"errors"
	"survey-export/internal/models"
)

var (
	// ErrRecordNotFound is returned when a survey record id is unknown
	ErrRecordNotFound = errors.New("survey record not found")
	// ErrMalformedFilter is returned when a filter payload references
	// fields the record schema does not have
	ErrMalformedFilter = errors.New("malformed filter")
)

// Cursor is a forward-only iterator over query results. It avoids
// materializing the full result set in memory.
type Cursor interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// SurveyStore defines the interface for survey record operations. The
// export pipeline only uses Count and Stream; the rest backs the
// submission routes.
type SurveyStore interface {
	Insert(ctx context.Context, record *models.SurveyRecord) (*models.SurveyRecord, error)
	List(ctx context.Context) ([]*models.SurveyRecord, error)
	FindByID(ctx context.Context, id string) (*models.SurveyRecord, error)
	Delete(ctx context.Context, id string) error
	// Count returns the number of records matching filters; the empty
	// filter matches everything.
	Count(ctx context.Context, filters map[string]interface{}) (int64, error)
	// Stream returns a cursor over matching records sorted by creation
	// time descending.
	Stream(ctx context.Context, filters map[string]interface{}) (Cursor, error)
}

// filterableFields is the set of record fields a filter may constrain.
var filterableFields = map[string]bool{
	"surveyorName":     true,
	"phone":            true,
	"date":             true,
	"wardNo":           true,
	"propertyAddress":  true,
	"zipCode":          true,
	"latitude":         true,
	"longitude":        true,
	"occupiersName":    true,
	"gender":           true,
	"fatherName":       true,
	"motherName":       true,
	"contactNumber":    true,
	"ownerOrTenant":    true,
	"areaOfPlot":       true,
	"natureOfBuilding": true,
	"numberOfFloors":   true,
	"floor":            true,
	"floorArea":        true,
	"usageType":        true,
	"createdAt":        true,
}

// ValidateFilters rejects filter payloads that constrain unknown fields.
// Values are passed through verbatim, so operator maps (range queries
// and the like) are allowed as long as the field itself is known.
func ValidateFilters(filters map[string]interface{}) error {
	for field := range filters {
		if !filterableFields[field] {
			return ErrMalformedFilter
		}
	}
	return nil
}
