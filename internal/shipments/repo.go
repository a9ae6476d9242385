package shipments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
	"github.com/angelmondragon/freightbid-backend/pkg/pagination"
)

const maxDispatchErrorLen = 512

// ErrQuoteNotFound reports a write aimed at a quote row that does not exist.
var ErrQuoteNotFound = errors.New("quote not found")

type repository struct {
	db *gorm.DB
}

// NewRepository builds a shipments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, shipment *models.Shipment) error {
	if shipment == nil {
		return errors.New("shipment required")
	}
	return r.db.WithContext(ctx).Create(shipment).Error
}

func (r *repository) FindByID(ctx context.Context, id int64) (*models.Shipment, error) {
	var shipment models.Shipment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&shipment).Error; err != nil {
		return nil, err
	}
	return &shipment, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params) (*ShipmentList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Shipment{})
	if cursor != nil {
		query = query.Where("id < ?", cursor.ID)
	}

	var rows []models.Shipment
	if err := query.Order("id DESC").Limit(pagination.LimitWithBuffer(limit)).Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &ShipmentList{Items: rows}
	if len(rows) > limit {
		list.Items = rows[:limit]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{ID: rows[limit-1].ID})
	}
	return list, nil
}

// FindByStatus pages through shipments in status by ascending id, starting
// after afterID.
func (r *repository) FindByStatus(ctx context.Context, status enums.ShipmentStatus, afterID int64, limit int) ([]models.Shipment, error) {
	var rows []models.Shipment
	err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindStale(ctx context.Context, cutoff time.Time, statuses []enums.ShipmentStatus, afterID int64, limit int) ([]models.Shipment, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	var rows []models.Shipment
	err := r.db.WithContext(ctx).
		Where("status IN ?", statusStrings(statuses)).
		Where("requested_at < ?", cutoff.UTC()).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// FindMissingInitialQuotes returns shipments claimed by Phase A that still lack an
// initial quote row for at least one of the given carriers.
func (r *repository) FindMissingInitialQuotes(ctx context.Context, carriers []string, afterID int64, limit int) ([]models.Shipment, error) {
	if len(carriers) == 0 {
		return nil, nil
	}
	present := r.db.Model(&models.Quote{}).
		Select("COUNT(*)").
		Where("quotes.shipment_id = shipments.id").
		Where("quotes.quote_type = ?", string(enums.QuoteTypeInitial)).
		Where("quotes.carrier_name IN ?", carriers)

	var rows []models.Shipment
	err := r.db.WithContext(ctx).
		Where("status = ?", string(enums.ShipmentStatusAwaitingInitialQuotes)).
		Where("(?) < ?", present, len(carriers)).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// Transition moves a shipment from -> to only if its status still equals from.
// The boolean reports whether this caller won the compare-and-swap.
func (r *repository) Transition(ctx context.Context, id int64, from, to enums.ShipmentStatus, updates map[string]any) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal shipment transition %s -> %s", from, to)
	}
	values := map[string]any{}
	for k, v := range updates {
		values[k] = v
	}
	values["status"] = string(to)
	values["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("id = ? AND status = ?", id, string(from)).
		Updates(values)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListQuotes(ctx context.Context, shipmentID int64) ([]models.Quote, error) {
	var rows []models.Quote
	err := r.db.WithContext(ctx).
		Where("shipment_id = ?", shipmentID).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// CreatePendingQuote inserts a placeholder row unless one already exists for the
// (shipment, carrier, type) key. The boolean reports whether a row was inserted.
func (r *repository) CreatePendingQuote(ctx context.Context, shipmentID int64, carrier string, quoteType enums.QuoteType) (bool, error) {
	quote := models.Quote{
		ShipmentID:  shipmentID,
		CarrierName: carrier,
		QuoteType:   quoteType,
		Status:      enums.QuoteStatusPending,
	}
	return r.insertIfAbsent(ctx, &quote)
}

// RecordInitialReply resolves a pending initial placeholder. Terminal rows are
// never touched, so replays report false.
func (r *repository) RecordInitialReply(ctx context.Context, shipmentID int64, carrier string, outcome ReplyOutcome) (bool, error) {
	return r.resolvePending(ctx, shipmentID, carrier, enums.QuoteTypeInitial, outcome)
}

// RecordFinalReply resolves the pending final placeholder written when the
// request went out, or inserts the final row when there is none. A second
// reply for the same carrier is a no-op and reports false.
func (r *repository) RecordFinalReply(ctx context.Context, shipmentID int64, carrier string, outcome ReplyOutcome) (bool, error) {
	resolved, err := r.resolvePending(ctx, shipmentID, carrier, enums.QuoteTypeFinal, outcome)
	if err != nil || resolved {
		return resolved, err
	}
	receivedAt := outcome.ReceivedAt.UTC()
	quote := models.Quote{
		ShipmentID:  shipmentID,
		CarrierName: carrier,
		QuoteType:   enums.QuoteTypeFinal,
		Price:       outcome.Price,
		ReceivedAt:  &receivedAt,
		Status:      outcome.Status(),
	}
	return r.insertIfAbsent(ctx, &quote)
}

func (r *repository) resolvePending(ctx context.Context, shipmentID int64, carrier string, quoteType enums.QuoteType, outcome ReplyOutcome) (bool, error) {
	receivedAt := outcome.ReceivedAt.UTC()
	result := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("shipment_id = ? AND carrier_name = ? AND quote_type = ? AND status = ?",
			shipmentID, carrier, string(quoteType), string(enums.QuoteStatusPending)).
		Updates(map[string]any{
			"status":      string(outcome.Status()),
			"price":       outcome.Price,
			"received_at": receivedAt,
			"updated_at":  time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) insertIfAbsent(ctx context.Context, quote *models.Quote) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(quote)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkDispatchFailed stores the send error on the quote placeholder. It fails
// with ErrQuoteNotFound when no placeholder exists, so the error is never
// dropped silently.
func (r *repository) MarkDispatchFailed(ctx context.Context, shipmentID int64, carrier string, quoteType enums.QuoteType, cause error) error {
	msg := "dispatch failed"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxDispatchErrorLen {
		msg = msg[:maxDispatchErrorLen]
	}
	result := r.db.WithContext(ctx).
		Model(&models.Quote{}).
		Where("shipment_id = ? AND carrier_name = ? AND quote_type = ?", shipmentID, carrier, string(quoteType)).
		Updates(map[string]any{
			"dispatch_error": msg,
			"updated_at":     time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: shipment %d carrier %s %s", ErrQuoteNotFound, shipmentID, carrier, quoteType)
	}
	return nil
}

// Stats computes the dashboard summary. Savings compare the final price with the
// leader snapshot, falling back to the lowest received initial bid.
func (r *repository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.Shipment{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Shipment{}).
		Where("status <> ?", string(enums.ShipmentStatusComplete)).
		Count(&stats.InProgress).Error; err != nil {
		return nil, err
	}

	var row struct {
		Savings decimal.NullDecimal `gorm:"column:savings"`
	}
	err := db.Raw(`
SELECT COALESCE(SUM(CASE WHEN t.baseline > t.final_price THEN t.baseline - t.final_price ELSE 0 END), 0) AS savings
FROM (
    SELECT s.final_price,
           COALESCE(s.leader_price, (
               SELECT MIN(q.price) FROM quotes q
               WHERE q.shipment_id = s.id AND q.quote_type = ? AND q.status = ?
           )) AS baseline
    FROM shipments s
    WHERE s.status = ? AND s.final_price IS NOT NULL
) t
WHERE t.baseline IS NOT NULL`,
		string(enums.QuoteTypeInitial), string(enums.QuoteStatusReceived), string(enums.ShipmentStatusComplete),
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.Savings.Valid {
		stats.Savings = row.Savings.Decimal.Round(2)
	}
	return stats, nil
}

func statusStrings(statuses []enums.ShipmentStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
