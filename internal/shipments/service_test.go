package shipments

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/freightbid-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/freightbid-backend/pkg/errors"
	"github.com/angelmondragon/freightbid-backend/pkg/pagination"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(newTestRepo(t))
	require.NoError(t, err)
	return svc
}

func TestCreateShipmentStartsQuoting(t *testing.T) {
	svc := newTestService(t)

	dto, err := svc.CreateShipment(context.Background(), CreateShipmentInput{
		Spots:          6,
		Weight:         decimal.RequireFromString("2400"),
		DestinationZIP: "60601",
	})
	require.NoError(t, err)
	assert.NotZero(t, dto.ID)
	assert.Equal(t, enums.ShipmentStatusQuoting, dto.Status)
	assert.Nil(t, dto.FinalWinner)
	assert.Nil(t, dto.FinalPrice)
}

func TestCreateShipmentValidation(t *testing.T) {
	svc := newTestService(t)
	cases := map[string]CreateShipmentInput{
		"zero spots":      {Spots: 0, Weight: decimal.NewFromInt(10), DestinationZIP: "60601"},
		"zero weight":     {Spots: 1, Weight: decimal.Zero, DestinationZIP: "60601"},
		"short zip":       {Spots: 1, Weight: decimal.NewFromInt(10), DestinationZIP: "6060"},
		"signed zip":      {Spots: 1, Weight: decimal.NewFromInt(10), DestinationZIP: "-6060"},
		"non-digit zip":   {Spots: 1, Weight: decimal.NewFromInt(10), DestinationZIP: "6060a"},
		"sub-cent weight": {Spots: 1, Weight: decimal.RequireFromString("0.001"), DestinationZIP: "60601"},
		"huge weight":     {Spots: 1, Weight: decimal.RequireFromString("10000000000"), DestinationZIP: "60601"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.CreateShipment(context.Background(), input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestCreateShipmentWeightDetails(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateShipment(context.Background(), CreateShipmentInput{
		Spots:          2,
		Weight:         decimal.RequireFromString("12.345"),
		DestinationZIP: "60601",
	})
	require.Error(t, err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	details, ok := appErr.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must have at most 2 decimal places", details["weight"])

	dto, err := svc.CreateShipment(context.Background(), CreateShipmentInput{
		Spots:          2,
		Weight:         decimal.RequireFromString("9999999999.99"),
		DestinationZIP: "60601",
	})
	require.NoError(t, err)
	assert.NotZero(t, dto.ID)
}

func TestGetShipmentNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetShipment(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListQuotesUnknownShipment(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ListQuotes(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestListShipmentsRejectsBadCursor(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ListShipments(context.Background(), pagination.Params{Cursor: "!!!"})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStatsOnEmptyLedger(t *testing.T) {
	svc := newTestService(t)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalShipments)
	assert.Zero(t, stats.InProgressShipments)
	assert.True(t, stats.TotalSavings.IsZero())
}
