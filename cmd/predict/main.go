package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"propcast/config"
	"propcast/db"
	"propcast/inference"
	"propcast/logger"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	diameter := flag.Float64("diameter", 0, "propeller diameter")
	pitch := flag.Float64("pitch", 0, "propeller pitch")
	blades := flag.Int("blades", 2, "number of blades")
	advanceRatio := flag.Float64("advance_ratio", 0, "advance ratio")
	persist := flag.Bool("log", false, "write the prediction to the configured sink")
	flag.Parse()

	if missing := missingFlags("diameter", "pitch", "advance_ratio"); len(missing) > 0 {
		log.Fatalf("missing required flags: %s", strings.Join(missing, ", "))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl, err := logger.New(logger.Options{Level: cfg.Log.Level})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	assets, err := inference.LoadAssets(ctx, cfg, zl)
	if err != nil {
		log.Fatalf("failed to load models: %v", err)
	}
	rules, err := inference.LoadRuleSet(cfg.Rules.Path, zl)
	if err != nil {
		log.Fatalf("failed to load rules: %v", err)
	}

	var sink inference.LogSink
	if *persist {
		s, err := db.Open(ctx, cfg.Sink)
		if err != nil {
			log.Fatalf("failed to open sink: %v", err)
		}
		defer s.Close()
		sink = s
	}

	engine := inference.NewEngine(assets, rules, sink,
		inference.WithLogger(zl),
		inference.WithSinkTimeout(cfg.Sink.Timeout))

	result, err := engine.Infer(ctx, inference.Request{
		Diameter:     *diameter,
		Pitch:        *pitch,
		Blades:       *blades,
		AdvanceRatio: *advanceRatio,
	})
	if err != nil {
		log.Fatalf("prediction failed: %v", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		log.Fatalf("failed to encode result: %v", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
}

// missingFlags reports which of names were not set on the command line.
// Zero is a valid value, so presence is checked rather than the value.
func missingFlags(names ...string) []string {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	var missing []string
	for _, name := range names {
		if !set[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
