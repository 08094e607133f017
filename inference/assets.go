package inference

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"propcast/apperr"
	"propcast/config"
	"propcast/dataset"
	"propcast/ml"
)

// FamilyAssets is the model set and reference dataset of one blade family.
type FamilyAssets struct {
	Models    ml.ModelSet
	Reference *dataset.Dataset
}

// Assets is the load-once, read-many inference context.
type Assets struct {
	families map[ml.Family]FamilyAssets
}

func NewAssets(a, b FamilyAssets) (*Assets, error) {
	families := map[ml.Family]FamilyAssets{ml.FamilyA: a, ml.FamilyB: b}
	for family, fa := range families {
		if err := fa.Models.Validate(); err != nil {
			return nil, apperr.E(apperr.ModelUnavailable, "family "+string(family), err)
		}
		if fa.Reference == nil {
			return nil, apperr.E(apperr.ModelUnavailable, "family "+string(family), errors.New("reference dataset missing"))
		}
	}
	return &Assets{families: families}, nil
}

func (a *Assets) Family(f ml.Family) FamilyAssets { return a.families[f] }

// LoadAssets loads both families' predictors and datasets concurrently.
// Any failure is a ModelUnavailable error.
func LoadAssets(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Assets, error) {
	var a, b FamilyAssets
	g, ctx := errgroup.WithContext(ctx)
	loadFamily(ctx, g, cfg, cfg.Models.FamilyA, ml.FamilyA, &a)
	loadFamily(ctx, g, cfg, cfg.Models.FamilyB, ml.FamilyB, &b)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for family, fa := range map[ml.Family]FamilyAssets{ml.FamilyA: a, ml.FamilyB: b} {
		if log != nil {
			log.Info("family loaded",
				zap.String("family", string(family)),
				zap.String("dataset", fa.Reference.Name()),
				zap.Int("rows", fa.Reference.Len()),
				zap.Any("blade_counts", fa.Reference.BladeCounts()))
		}
	}
	return NewAssets(a, b)
}

func loadFamily(ctx context.Context, g *errgroup.Group, cfg *config.Config, fc config.FamilyConfig, family ml.Family, out *FamilyAssets) {
	model := func(kind, path string, dst *ml.Predictor) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			p, err := ml.LoadModel(fc.ModelType, cfg.Resolve(path))
			if err != nil {
				return apperr.E(apperr.ModelUnavailable, fmt.Sprintf("load family %s %s model", family, kind), err)
			}
			*dst = p
			return nil
		})
	}
	model("thrust", fc.Thrust, &out.Models.Thrust)
	model("power", fc.Power, &out.Models.Power)
	model("efficiency", fc.Efficiency, &out.Models.Efficiency)

	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		ds, err := dataset.LoadCSV(string(family), cfg.Resolve(fc.Dataset))
		if err != nil {
			return apperr.E(apperr.ModelUnavailable, fmt.Sprintf("load family %s dataset", family), err)
		}
		out.Reference = ds
		return nil
	})
}
