package predictor

import (
	"context"
	"errors"

	"TradePilot/internal/domain/models"
	domsvc "TradePilot/internal/domain/service"
)

// Noop is the predictor used when no model service is configured. It
// never reports ready, so arbitration stays out of the signal path.
type Noop struct{}

var _ domsvc.Predictor = Noop{}

func (Noop) IsReady() bool { return false }

func (Noop) Predict(context.Context, models.FeatureSet) (models.Prediction, error) {
	return models.Prediction{}, errors.New("no predictor configured")
}
