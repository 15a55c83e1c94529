package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/vforex/quantpilot/internal/domain"
)

// Validation stage names, in the order they run.
const (
	StageConfidence  = "CONFIDENCE_CHECK"
	StageRiskReward  = "RISK_REWARD_CHECK"
	StageAdvisor     = "ADVISOR_CHECK"
	StageProbability = "PROBABILITY_CHECK"
	StageNews        = "NEWS_CHECK"
	StageLiquidity   = "LIQUIDITY_CHECK"
)

// liquidityLookback is how many recent bars define the "normal" range a
// spread is compared against.
const liquidityLookback = 14

// ValidationPipeline runs a signal through every gate between generation
// and execution. The first failing gate stops the run, so an expensive
// external call never happens for a signal a cheap check already killed.
type ValidationPipeline struct {
	advisor   domain.AdvisoryService
	estimator domain.ProbabilityEstimator
	news      domain.NewsCalendar
	logger    *zap.Logger
	timeNow   func() time.Time
}

func NewValidationPipeline(
	advisor domain.AdvisoryService,
	estimator domain.ProbabilityEstimator,
	news domain.NewsCalendar,
	logger *zap.Logger,
) *ValidationPipeline {
	return &ValidationPipeline{
		advisor:   advisor,
		estimator: estimator,
		news:      news,
		logger:    logger,
		timeNow:   time.Now,
	}
}

// Validate gates a generated signal. It returns the per-stage trail and,
// when a gate fails, a *domain.ValidationRejectedError naming that stage.
// tick may be nil when no live quote is available; the liquidity gate then
// passes rather than guessing a spread.
func (p *ValidationPipeline) Validate(
	ctx context.Context,
	bundle *SignalBundle,
	candles []domain.Candle,
	tick *domain.Tick,
	cfg domain.Settings,
) ([]domain.ValidationResult, error) {
	sig := bundle.Signal
	var trail []domain.ValidationResult

	pass := func(stage, reason string) {
		trail = append(trail, domain.ValidationResult{Stage: stage, Passed: true, Reason: reason})
		p.logger.Debug("validation stage passed",
			zap.String("symbol", sig.Symbol), zap.String("stage", stage), zap.String("reason", reason))
	}
	reject := func(stage, reason string) ([]domain.ValidationResult, error) {
		trail = append(trail, domain.ValidationResult{Stage: stage, Passed: false, Reason: reason})
		p.logger.Debug("validation stage rejected",
			zap.String("symbol", sig.Symbol), zap.String("stage", stage), zap.String("reason", reason))
		return trail, &domain.ValidationRejectedError{Stage: stage, Reason: reason}
	}

	if sig.Confidence < cfg.ConfidenceMin {
		return reject(StageConfidence,
			fmt.Sprintf("confidence %.2f below minimum %.2f", sig.Confidence, cfg.ConfidenceMin))
	}
	pass(StageConfidence, fmt.Sprintf("confidence %.2f", sig.Confidence))

	// Small tolerance so target entropy cannot push a configured ratio
	// just under its own minimum.
	if sig.RiskReward < cfg.RiskRewardMin-0.01 {
		return reject(StageRiskReward,
			fmt.Sprintf("risk reward %.2f below minimum %.2f", sig.RiskReward, cfg.RiskRewardMin))
	}
	pass(StageRiskReward, fmt.Sprintf("risk reward %.2f", sig.RiskReward))

	// Never trade without advisory confirmation. An unreachable or
	// modelless advisor rejects the signal instead of being skipped.
	if !p.advisor.IsReady(ctx) {
		return reject(StageAdvisor, "advisory service not ready")
	}
	verdict, err := p.advisor.Validate(ctx, sig)
	if err != nil {
		return reject(StageAdvisor, fmt.Sprintf("advisory unavailable: %v", err))
	}
	if verdict.Confidence < 0.5 || verdict.Decision == domain.DirectionNeutral {
		return reject(StageAdvisor,
			fmt.Sprintf("advisor rejected (%.0f%%, %s): %s", verdict.Confidence*100, verdict.Decision, verdict.Reason))
	}
	if verdict.Decision != sig.Direction {
		return reject(StageAdvisor,
			fmt.Sprintf("advisor disagreed: signal %s, advisor %s: %s", sig.Direction, verdict.Decision, verdict.Reason))
	}
	pass(StageAdvisor, verdict.Reason)

	features := BuildFeatures(candles, bundle.Reading, p.timeNow())
	prob, err := p.estimator.Predict(ctx, sig.Symbol, features)
	if err != nil {
		return reject(StageProbability, fmt.Sprintf("probability estimate failed: %v", err))
	}
	if verdict.Confidence > 0.8 {
		prob = math.Min(0.95, prob+0.05)
	}
	if prob < cfg.MLThreshold {
		return reject(StageProbability,
			fmt.Sprintf("win probability %.1f%% below threshold %.0f%%", prob*100, cfg.MLThreshold*100))
	}
	pass(StageProbability, fmt.Sprintf("win probability %.1f%%", prob*100))

	newsVerdict, err := p.news.CheckStop(ctx, sig.Symbol, cfg.NewsBufferMin)
	if err != nil {
		// A dead calendar feed must not halt trading on its own.
		p.logger.Warn("news check failed, continuing",
			zap.String("symbol", sig.Symbol), zap.Error(err))
		pass(StageNews, "calendar unavailable")
	} else if newsVerdict.Stop {
		return reject(StageNews, newsVerdict.Reason)
	} else {
		pass(StageNews, "no blocking events")
	}

	if tick == nil {
		pass(StageLiquidity, "no tick data")
		return trail, nil
	}
	spread := tick.Spread()
	recentRange := recentHighLowRange(candles, liquidityLookback)
	if spread > recentRange*0.3 {
		return reject(StageLiquidity,
			fmt.Sprintf("spread %.5f above 30%% of recent range %.5f", spread, recentRange))
	}
	pass(StageLiquidity, "spread acceptable")

	return trail, nil
}

func recentHighLowRange(candles []domain.Candle, lookback int) float64 {
	n := len(candles)
	if n == 0 {
		return 0
	}
	start := n - lookback
	if start < 0 {
		start = 0
	}
	high := candles[start].High
	low := candles[start].Low
	for _, c := range candles[start+1 : n] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	return high - low
}
