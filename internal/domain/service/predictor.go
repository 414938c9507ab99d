package service

import (
	"context"

	"TradePilot/internal/domain/models"
)

// Predictor is the optional ML arbitration capability. The synthesizer
// depends only on this interface, never on a concrete model client.
//
// When arbitration is enabled but IsReady reports false, the decision
// cycle fails closed: no proposal is emitted regardless of technical
// strength.
type Predictor interface {
	IsReady() bool
	Predict(ctx context.Context, features models.FeatureSet) (models.Prediction, error)
}
