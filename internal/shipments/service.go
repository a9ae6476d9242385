package shipments

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightbid-backend/pkg/db/models"
	"github.com/angelmondragon/freightbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightbid-backend/pkg/errors"
	"github.com/angelmondragon/freightbid-backend/pkg/pagination"
)

// Service exposes the read/create surface used by the HTTP API.
type Service interface {
	CreateShipment(ctx context.Context, input CreateShipmentInput) (*ShipmentDTO, error)
	GetShipment(ctx context.Context, id int64) (*ShipmentDTO, error)
	ListShipments(ctx context.Context, params pagination.Params) (*ShipmentPage, error)
	ListQuotes(ctx context.Context, shipmentID int64) ([]QuoteDTO, error)
	Stats(ctx context.Context) (*StatsDTO, error)
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService builds the shipment service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("shipments repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) CreateShipment(ctx context.Context, input CreateShipmentInput) (*ShipmentDTO, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}
	shipment := &models.Shipment{
		RequestedAt:    s.now().UTC(),
		Spots:          input.Spots,
		Weight:         input.Weight,
		DestinationZIP: input.DestinationZIP,
		Status:         enums.ShipmentStatusQuoting,
	}
	if err := s.repo.Create(ctx, shipment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create shipment")
	}
	dto := ToShipmentDTO(*shipment)
	return &dto, nil
}

func (s *service) GetShipment(ctx context.Context, id int64) (*ShipmentDTO, error) {
	shipment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := ToShipmentDTO(*shipment)
	return &dto, nil
}

func (s *service) ListShipments(ctx context.Context, params pagination.Params) (*ShipmentPage, error) {
	list, err := s.repo.List(ctx, params)
	if err != nil {
		if _, cursorErr := pagination.ParseCursor(params.Cursor); cursorErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, cursorErr, "invalid cursor")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipments")
	}
	page := &ShipmentPage{
		Items:      make([]ShipmentDTO, 0, len(list.Items)),
		NextCursor: list.NextCursor,
	}
	for _, item := range list.Items {
		page.Items = append(page.Items, ToShipmentDTO(item))
	}
	return page, nil
}

func (s *service) ListQuotes(ctx context.Context, shipmentID int64) ([]QuoteDTO, error) {
	if _, err := s.load(ctx, shipmentID); err != nil {
		return nil, err
	}
	quotes, err := s.repo.ListQuotes(ctx, shipmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list quotes")
	}
	out := make([]QuoteDTO, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, ToQuoteDTO(q))
	}
	return out, nil
}

func (s *service) Stats(ctx context.Context) (*StatsDTO, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stats")
	}
	return &StatsDTO{
		TotalShipments:      stats.Total,
		InProgressShipments: stats.InProgress,
		TotalSavings:        stats.Savings,
	}, nil
}

func (s *service) load(ctx context.Context, id int64) (*models.Shipment, error) {
	if id <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid shipment id")
	}
	shipment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
	}
	return shipment, nil
}

// maxWeight is the largest weight the shipments table stores.
var maxWeight = decimal.RequireFromString("9999999999.99")

func validateCreate(input CreateShipmentInput) error {
	details := map[string]string{}
	switch {
	case input.Spots <= 0:
		details["spots"] = "must be a positive integer"
	case input.Spots > math.MaxInt32:
		details["spots"] = "is too large"
	}
	switch {
	case !input.Weight.IsPositive():
		details["weight"] = "must be a positive number"
	case !input.Weight.Equal(input.Weight.Round(2)):
		details["weight"] = "must have at most 2 decimal places"
	case input.Weight.GreaterThan(maxWeight):
		details["weight"] = "must not exceed " + maxWeight.StringFixed(2)
	}
	if !isZIP(input.DestinationZIP) {
		details["destination_zip"] = "must be exactly 5 digits"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid shipment").WithDetails(details)
	}
	return nil
}

func isZIP(value string) bool {
	if len(value) != 5 {
		return false
	}
	for i := 0; i < len(value); i++ {
		if value[i] < '0' || value[i] > '9' {
			return false
		}
	}
	return true
}
