package inference

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"propcast/apperr"
	"propcast/db"
	"propcast/logger"
	"propcast/ml"
)

// Request is one prediction input.
type Request struct {
	Diameter     float64 `json:"diameter"`
	Pitch        float64 `json:"pitch"`
	Blades       int     `json:"blades"`
	AdvanceRatio float64 `json:"advance_ratio"`
}

// Result is the prediction returned to callers.
type Result struct {
	MatchedBrand      string    `json:"matched_brand"`
	MatchedDiameter   float64   `json:"matched_diameter"`
	MatchedPitch      float64   `json:"matched_pitch"`
	ThrustCoefficient float64   `json:"thrust_coefficient"`
	PowerCoefficient  float64   `json:"power_coefficient"`
	Efficiency        float64   `json:"efficiency"`
	DroneType         DroneType `json:"drone_type"`
}

// Prediction pairs a request with its computed result.
type Prediction struct {
	ID      string
	Family  ml.Family
	Request Request
	Result  Result
}

// Log converts p to the persisted row.
func (p Prediction) Log(at time.Time) db.PredictionLog {
	return db.PredictionLog{
		ID:                p.ID,
		Blades:            p.Request.Blades,
		Diameter:          p.Request.Diameter,
		Pitch:             p.Request.Pitch,
		AdvanceRatio:      p.Request.AdvanceRatio,
		ThrustCoefficient: p.Result.ThrustCoefficient,
		PowerCoefficient:  p.Result.PowerCoefficient,
		Efficiency:        p.Result.Efficiency,
		DroneType:         string(p.Result.DroneType),
		CreatedAt:         at.UTC(),
	}
}

// LogSink persists predictions. db.Sink satisfies it.
type LogSink interface {
	SavePrediction(ctx context.Context, entry db.PredictionLog) error
}

// Outcome is reported to observers after every Infer call.
type Outcome struct {
	Prediction Prediction
	Latency    time.Duration
	Err        error
}

type Observer interface {
	Observe(Outcome)
}

// Engine runs match, predict, classify and persist for one request.
// It holds only read-only state and is safe for concurrent use.
type Engine struct {
	assets      *Assets
	rules       *RuleSet
	sink        LogSink
	matcher     Matcher
	observers   []Observer
	sinkTimeout time.Duration
	log         *zap.Logger
}

type Option func(*Engine)

func WithMatcher(m Matcher) Option {
	return func(e *Engine) { e.matcher = m }
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = logger.OrNop(l) }
}

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithSinkTimeout bounds each log write. Zero means no bound beyond the caller's context.
func WithSinkTimeout(d time.Duration) Option {
	return func(e *Engine) { e.sinkTimeout = d }
}

func NewEngine(assets *Assets, rules *RuleSet, sink LogSink, opts ...Option) *Engine {
	e := &Engine{
		assets:  assets,
		rules:   rules,
		sink:    sink,
		matcher: MatcherFunc(Match),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute produces a prediction without persisting it.
func (e *Engine) Compute(ctx context.Context, req Request) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, apperr.E(apperr.Internal, "compute", err)
	}

	family := ml.FamilyFor(req.Blades)
	fa := e.assets.Family(family)

	idx, err := e.matcher.Match(fa.Reference, req.Diameter, req.Pitch, req.Blades)
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			err = apperr.E(apperr.Internal, "match", err)
		}
		return Prediction{}, err
	}
	row := fa.Reference.Row(idx)

	features := ml.FeatureVector(ml.Features{
		Diameter:       req.Diameter,
		Pitch:          req.Pitch,
		AdvanceRatio:   req.AdvanceRatio,
		BladeArea:      row.BladeArea,
		DiscArea:       row.DiscArea,
		TotalBladeArea: row.TotalBladeArea,
		Solidity:       row.Solidity,
	})

	ct, err := predict("thrust", fa.Models.Thrust, features)
	if err != nil {
		return Prediction{}, err
	}
	cp, err := predict("power", fa.Models.Power, features)
	if err != nil {
		return Prediction{}, err
	}
	eff, err := predict("efficiency", fa.Models.Efficiency, features)
	if err != nil {
		return Prediction{}, err
	}

	droneType, err := e.rules.Classifier().Classify(Inputs{
		Diameter:          req.Diameter,
		Pitch:             req.Pitch,
		Blades:            req.Blades,
		AdvanceRatio:      req.AdvanceRatio,
		ThrustCoefficient: ct,
		PowerCoefficient:  cp,
		Efficiency:        eff,
	})
	if err != nil {
		return Prediction{}, apperr.E(apperr.Internal, "classify", err)
	}

	return Prediction{
		ID:      uuid.NewString(),
		Family:  family,
		Request: req,
		Result: Result{
			MatchedBrand:      row.Brand,
			MatchedDiameter:   row.Diameter,
			MatchedPitch:      row.Pitch,
			ThrustCoefficient: ct,
			PowerCoefficient:  cp,
			Efficiency:        eff,
			DroneType:         droneType,
		},
	}, nil
}

func predict(name string, p ml.Predictor, features []float64) (float64, error) {
	v, err := p.Predict(features)
	if err != nil {
		return 0, apperr.E(apperr.Internal, "predict "+name, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, apperr.E(apperr.Internal, "predict "+name, fmt.Errorf("non-finite output %v", v))
	}
	return v, nil
}

// Infer computes and persists a prediction. A failed write fails the whole
// request with a Persistence error; no partial result is returned.
func (e *Engine) Infer(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	p, err := e.Compute(ctx, req)
	if err == nil {
		err = e.persist(ctx, p)
	}
	e.notify(Outcome{Prediction: p, Latency: time.Since(start), Err: err})

	if err != nil {
		e.log.Warn("prediction failed",
			zap.Int("blades", req.Blades),
			zap.Float64("diameter", req.Diameter),
			zap.Float64("pitch", req.Pitch),
			zap.Stringer("kind", apperr.KindOf(err)),
			zap.Error(err))
		return Result{}, err
	}
	e.log.Debug("prediction",
		zap.String("id", p.ID),
		zap.String("family", string(p.Family)),
		zap.String("matched_brand", p.Result.MatchedBrand),
		zap.String("drone_type", string(p.Result.DroneType)))
	return p.Result, nil
}

func (e *Engine) persist(ctx context.Context, p Prediction) error {
	if e.sink == nil {
		return nil
	}
	if e.sinkTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.sinkTimeout)
		defer cancel()
	}
	if err := e.sink.SavePrediction(ctx, p.Log(time.Now())); err != nil {
		return apperr.E(apperr.Persistence, "save prediction", err)
	}
	return nil
}

func (e *Engine) notify(o Outcome) {
	for _, obs := range e.observers {
		obs.Observe(o)
	}
}
