package syncengine

import (
	"context"
	"errors"
	"net"

	"github.com/surrealdb/surrealsync/pkg/models"
)

var (
	// ErrMappingNotFound is returned when a relational group key has no document id.
	ErrMappingNotFound = errors.New("identifier mapping not found")

	// ErrInvalidDocument is returned when a document lacks fields required to apply it.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrUnknownEntity is returned for entity types without a handler.
	ErrUnknownEntity = errors.New("unknown entity type")

	// ErrInFlight is returned when a document is currently being synced.
	ErrInFlight = errors.New("sync already in progress")
)

// classify maps an error to the error_type recorded on a sync error.
func classify(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, ErrMappingNotFound):
		return models.ErrorTypeMappingInconsistency
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, ErrInFlight),
		errors.As(err, &netErr):
		return models.ErrorTypeTransient
	default:
		return models.ErrorTypeSyncFailed
	}
}
