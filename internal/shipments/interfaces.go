package shipments

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
	"github.com/angelmondragon/freightbid-backend/pkg/pagination"
)

// Repository defines persistence operations for the shipments and quotes tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Create(ctx context.Context, shipment *models.Shipment) error
	FindByID(ctx context.Context, id int64) (*models.Shipment, error)
	List(ctx context.Context, params pagination.Params) (*ShipmentList, error)
	FindByStatus(ctx context.Context, status enums.ShipmentStatus, afterID int64, limit int) ([]models.Shipment, error)
	FindStale(ctx context.Context, cutoff time.Time, statuses []enums.ShipmentStatus, afterID int64, limit int) ([]models.Shipment, error)
	FindMissingInitialQuotes(ctx context.Context, carriers []string, afterID int64, limit int) ([]models.Shipment, error)
	Transition(ctx context.Context, id int64, from, to enums.ShipmentStatus, updates map[string]any) (bool, error)

	ListQuotes(ctx context.Context, shipmentID int64) ([]models.Quote, error)
	CreatePendingQuote(ctx context.Context, shipmentID int64, carrier string, quoteType enums.QuoteType) (bool, error)
	RecordInitialReply(ctx context.Context, shipmentID int64, carrier string, outcome ReplyOutcome) (bool, error)
	RecordFinalReply(ctx context.Context, shipmentID int64, carrier string, outcome ReplyOutcome) (bool, error)
	MarkDispatchFailed(ctx context.Context, shipmentID int64, carrier string, quoteType enums.QuoteType, cause error) error

	Stats(ctx context.Context) (*Stats, error)
}
