package collab

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sparekart/backend/internal/models"
)

// FlatRateShipping charges a flat fee regardless of destination and quotes
// a fixed transit time.
type FlatRateShipping struct {
	Fee         decimal.Decimal
	TransitDays int
}

func (s *FlatRateShipping) EstimateCharge(_ context.Context, _ models.AddressSnapshot, _ decimal.Decimal) (decimal.Decimal, error) {
	return s.Fee, nil
}

func (s *FlatRateShipping) EstimatedDeliveryDate(_ models.AddressSnapshot) time.Time {
	days := s.TransitDays
	if days == 0 {
		days = 5
	}
	return time.Now().UTC().AddDate(0, 0, days)
}

func (s *FlatRateShipping) GenerateTrackingNumber() string {
	return "TRK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}
