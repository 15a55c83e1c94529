package domain

// Feature vector layout for the probability estimator. A trained model's
// input schema must follow the same order.
const (
	FeatureHour = iota
	FeatureVolatility
	FeatureRSI
	FeatureTrendPercent
	FeatureATRRatio
	FeatureBBWidthRatio
	FeatureCount
)
