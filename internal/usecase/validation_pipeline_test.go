package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vforex/quantpilot/internal/domain"
	"github.com/vforex/quantpilot/internal/usecase"
)

// MockAdvisor
type MockAdvisor struct {
	Verdict *domain.AdvisorVerdict
	Err     error
	Ready   bool
	Calls   int
}

func (m *MockAdvisor) IsReady(ctx context.Context) bool { return m.Ready }
func (m *MockAdvisor) Validate(ctx context.Context, signal *domain.Signal) (*domain.AdvisorVerdict, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Verdict, nil
}

// MockEstimator
type MockEstimator struct {
	Prob  float64
	Err   error
	Calls int
}

func (m *MockEstimator) Predict(ctx context.Context, symbol string, features []float64) (float64, error) {
	m.Calls++
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Prob, nil
}

// MockNews
type MockNews struct {
	Verdict *domain.NewsVerdict
	Err     error
	Calls   int
}

func (m *MockNews) CheckStop(ctx context.Context, symbol string, bufferMinutes int) (*domain.NewsVerdict, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Verdict, nil
}

func approvingAdvisor(direction domain.Direction, confidence float64) *MockAdvisor {
	return &MockAdvisor{
		Ready:   true,
		Verdict: &domain.AdvisorVerdict{Decision: direction, Confidence: confidence, Reason: "setup confirmed"},
	}
}

func quietNews() *MockNews {
	return &MockNews{Verdict: &domain.NewsVerdict{Stop: false}}
}

func rangeCandles(n int) []domain.Candle {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	candles := make([]domain.Candle, n)
	for i := range candles {
		candles[i] = domain.Candle{
			Time:   base.Add(time.Duration(i) * time.Minute).Unix(),
			Open:   1.1000,
			High:   1.1010,
			Low:    1.0990,
			Close:  1.1005,
			Volume: 100,
		}
	}
	return candles
}

func testBundle(direction domain.Direction, confidence, riskReward float64) *usecase.SignalBundle {
	return &usecase.SignalBundle{
		Signal: &domain.Signal{
			Symbol:     "EURUSD",
			Direction:  direction,
			Confidence: confidence,
			EntryPrice: 1.1005,
			StopLoss:   1.0985,
			RiskReward: riskReward,
		},
		Reading: usecase.RegimeReading{Regime: domain.RegimeRanging},
	}
}

func newPipeline(advisor *MockAdvisor, estimator *MockEstimator, news *MockNews) *usecase.ValidationPipeline {
	return usecase.NewValidationPipeline(advisor, estimator, news, zap.NewNop())
}

func assertRejectedAt(t *testing.T, err error, stage string) {
	t.Helper()
	var rejected *domain.ValidationRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("error = %v, want ValidationRejectedError", err)
	}
	if rejected.Stage != stage {
		t.Fatalf("rejected at %s, want %s (reason: %s)", rejected.Stage, stage, rejected.Reason)
	}
}

func TestValidateAllStagesPass(t *testing.T) {
	advisor := approvingAdvisor(domain.DirectionBuy, 0.9)
	estimator := &MockEstimator{Prob: 0.58}
	news := quietNews()
	pipeline := newPipeline(advisor, estimator, news)
	tick := &domain.Tick{Symbol: "EURUSD", Bid: 1.10050, Ask: 1.10060}

	trail, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.5), rangeCandles(20), tick, domain.DefaultSettings())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if len(trail) != 6 {
		t.Fatalf("trail has %d stages, want 6", len(trail))
	}
	for _, result := range trail {
		if !result.Passed {
			t.Errorf("stage %s failed: %s", result.Stage, result.Reason)
		}
	}
	if advisor.Calls != 1 || estimator.Calls != 1 || news.Calls != 1 {
		t.Errorf("collaborator calls = %d/%d/%d, want 1/1/1", advisor.Calls, estimator.Calls, news.Calls)
	}
}

func TestValidateRejectsLowConfidence(t *testing.T) {
	advisor := approvingAdvisor(domain.DirectionBuy, 0.9)
	estimator := &MockEstimator{Prob: 0.9}
	pipeline := newPipeline(advisor, estimator, quietNews())

	trail, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.2, 1.5), rangeCandles(20), nil, domain.DefaultSettings())

	assertRejectedAt(t, err, usecase.StageConfidence)
	if len(trail) != 1 {
		t.Errorf("trail has %d stages, want 1", len(trail))
	}
	if advisor.Calls != 0 || estimator.Calls != 0 {
		t.Errorf("later stages ran after rejection: advisor=%d estimator=%d", advisor.Calls, estimator.Calls)
	}
}

func TestValidateRejectsThinRiskReward(t *testing.T) {
	pipeline := newPipeline(approvingAdvisor(domain.DirectionBuy, 0.9), &MockEstimator{Prob: 0.9}, quietNews())

	_, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.2), rangeCandles(20), nil, domain.DefaultSettings())

	assertRejectedAt(t, err, usecase.StageRiskReward)
}

func TestValidateRiskRewardTolerance(t *testing.T) {
	advisor := approvingAdvisor(domain.DirectionBuy, 0.9)
	pipeline := newPipeline(advisor, &MockEstimator{Prob: 0.9}, quietNews())

	// 1.49 sits within the 0.01 tolerance under the 1.5 minimum.
	_, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.49), rangeCandles(20), nil, domain.DefaultSettings())
	if err != nil {
		t.Fatalf("Validate() error = %v, want pass inside tolerance", err)
	}
	if advisor.Calls != 1 {
		t.Errorf("advisor calls = %d, want 1", advisor.Calls)
	}
}

func TestValidateRejectsAdvisorHold(t *testing.T) {
	advisor := approvingAdvisor(domain.DirectionNeutral, 0.9)
	estimator := &MockEstimator{Prob: 0.9}
	pipeline := newPipeline(advisor, estimator, quietNews())

	_, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.5), rangeCandles(20), nil, domain.DefaultSettings())

	assertRejectedAt(t, err, usecase.StageAdvisor)
	if estimator.Calls != 0 {
		t.Errorf("estimator ran after advisor rejection")
	}
}

func TestValidateRejectsAdvisorDisagreement(t *testing.T) {
	pipeline := newPipeline(approvingAdvisor(domain.DirectionSell, 0.9), &MockEstimator{Prob: 0.9}, quietNews())

	_, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.5), rangeCandles(20), nil, domain.DefaultSettings())

	assertRejectedAt(t, err, usecase.StageAdvisor)
}

func TestValidateRejectsWhenAdvisorUnavailable(t *testing.T) {
	advisor := &MockAdvisor{Ready: true, Err: domain.ErrAdvisoryUnavailable}
	pipeline := newPipeline(advisor, &MockEstimator{Prob: 0.9}, quietNews())

	_, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.5), rangeCandles(20), nil, domain.DefaultSettings())

	assertRejectedAt(t, err, usecase.StageAdvisor)
}

func TestValidateRejectsWhenAdvisorNotReady(t *testing.T) {
	advisor := &MockAdvisor{Ready: false}
	pipeline := newPipeline(advisor, &MockEstimator{Prob: 0.9}, quietNews())

	_, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.5), rangeCandles(20), nil, domain.DefaultSettings())

	assertRejectedAt(t, err, usecase.StageAdvisor)
	if advisor.Calls != 0 {
		t.Errorf("advisor.Validate called %d times on unready service, want 0", advisor.Calls)
	}
}

func TestValidateRejectsLowProbability(t *testing.T) {
	news := quietNews()
	pipeline := newPipeline(approvingAdvisor(domain.DirectionBuy, 0.7), &MockEstimator{Prob: 0.55}, news)

	_, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.5), rangeCandles(20), nil, domain.DefaultSettings())

	assertRejectedAt(t, err, usecase.StageProbability)
	if news.Calls != 0 {
		t.Errorf("news ran after probability rejection")
	}
}

func TestValidateAdvisorConsensusLiftsProbability(t *testing.T) {
	// 0.57 alone fails the 0.60 threshold; a strong advisor adds 0.05.
	pipeline := newPipeline(approvingAdvisor(domain.DirectionBuy, 0.9), &MockEstimator{Prob: 0.57}, quietNews())

	_, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.5), rangeCandles(20), nil, domain.DefaultSettings())
	if err != nil {
		t.Fatalf("Validate() error = %v, want pass with consensus bonus", err)
	}
}

func TestValidateRejectsOnNewsWindow(t *testing.T) {
	news := &MockNews{Verdict: &domain.NewsVerdict{Stop: true, Reason: "High Impact: Non-Farm Payrolls"}}
	pipeline := newPipeline(approvingAdvisor(domain.DirectionBuy, 0.9), &MockEstimator{Prob: 0.9}, news)

	_, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.5), rangeCandles(20), nil, domain.DefaultSettings())

	assertRejectedAt(t, err, usecase.StageNews)
}

func TestValidateNewsFailurePasses(t *testing.T) {
	news := &MockNews{Err: errors.New("feed timeout")}
	pipeline := newPipeline(approvingAdvisor(domain.DirectionBuy, 0.9), &MockEstimator{Prob: 0.9}, news)

	trail, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.5), rangeCandles(20), nil, domain.DefaultSettings())
	if err != nil {
		t.Fatalf("Validate() error = %v, want pass when calendar is down", err)
	}
	if len(trail) != 6 {
		t.Errorf("trail has %d stages, want 6", len(trail))
	}
}

func TestValidateRejectsWideSpread(t *testing.T) {
	pipeline := newPipeline(approvingAdvisor(domain.DirectionBuy, 0.9), &MockEstimator{Prob: 0.9}, quietNews())
	// Recent range is 0.0020, so anything past 0.0006 is too wide.
	tick := &domain.Tick{Symbol: "EURUSD", Bid: 1.1000, Ask: 1.1010}

	_, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.5), rangeCandles(20), tick, domain.DefaultSettings())

	assertRejectedAt(t, err, usecase.StageLiquidity)
}

func TestValidateNilTickSkipsSpreadCheck(t *testing.T) {
	pipeline := newPipeline(approvingAdvisor(domain.DirectionBuy, 0.9), &MockEstimator{Prob: 0.9}, quietNews())

	trail, err := pipeline.Validate(context.Background(), testBundle(domain.DirectionBuy, 0.8, 1.5), rangeCandles(20), nil, domain.DefaultSettings())
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	last := trail[len(trail)-1]
	if last.Stage != usecase.StageLiquidity || !last.Passed {
		t.Errorf("final stage = %+v, want passed liquidity", last)
	}
}
