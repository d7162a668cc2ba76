package main

import (
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/karenlarocque/feature-forgetting/internal/config"
	"github.com/karenlarocque/feature-forgetting/internal/simulate"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to the config file")
		variant    = flag.String("variant", "parity", "variant to run")
		pid        = flag.String("participant", "sim", "participant id; drives the condition assignment")
		rt         = flag.Duration("rt", 600*time.Millisecond, "reaction time")
		accuracy   = flag.Float64("accuracy", 0.9, "probability of a correct response on scored trials")
		miss       = flag.Float64("miss", 0, "probability of not responding")
		rest       = flag.Duration("rest", 10*time.Second, "time spent on rest and questionnaire slides")
		seed       = flag.Uint64("seed", 1, "seed for the participant's choices")
		verbose    = flag.Bool("v", false, "log sequencer events to stderr")
	)
	flag.Parse()

	_ = godotenv.Load()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	result, err := simulate.Run(simulate.Options{
		Variant:     *variant,
		Experiments: cfg.Experiments,
		Logger:      logger,
		Participant: simulate.Participant{
			ID:           *pid,
			ReactionTime: *rt,
			Accuracy:     *accuracy,
			MissRate:     *miss,
			RestPause:    *rest,
			Seed:         *seed,
		},
	})
	if err != nil {
		log.Fatalf("Simulation failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		log.Fatalf("Failed to encode log: %v", err)
	}
}
