package main

import (
	"errors"
	"flag"
	"fmt"

	"tabml/internal/cfg"
	"tabml/internal/classifier"
	"tabml/internal/dataset"
	"tabml/internal/logging"
	"tabml/internal/training"
)

func runTrain(c cfg.Settings, args []string) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	var (
		dataFile = fs.String("data", "", "CSV file with a header row (required)")
		target   = fs.String("target", c.TargetColumn, "Target column to predict")
		prefix   = fs.String("prefix", c.IDPrefix, "Model id prefix")
		seed     = fs.Int64("seed", c.Seed, "Random seed for the split and the models")
		testSize = fs.Float64("test-size", c.TestSize, "Fraction of rows held out for validation")
		noSave   = fs.Bool("dry-run", false, "Train and report without registering the model")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataFile == "" {
		return errors.New("train: -data is required")
	}
	if *target == "" {
		return errors.New("train: -target is required (or set TARGET_COLUMN)")
	}

	ds, err := dataset.LoadCSV(*dataFile)
	if err != nil {
		return err
	}

	trainer := training.New(logging.Component("trainer"), newObserver())
	trainer.DropColumns = c.DropColumns
	trainer.TestSize = *testSize

	m, meta, err := trainer.TrainBest(ds, *target, *prefix, *seed)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	fmt.Printf("\n%s %d rows, target %s\n\n", bold("Trained on"), ds.Len(), cyan(meta.TargetColumn))
	fmt.Printf("  %-22s %s\n", "ALGORITHM", "MACRO F1")
	for _, s := range training.Leaderboard(meta, classifier.Names) {
		line := fmt.Sprintf("  %-22s %.4f", s.Algorithm, s.F1)
		if s.Algorithm == meta.Algorithm {
			line = green(line + "  ← best")
		}
		fmt.Println(line)
	}
	fmt.Printf("\n  accuracy %.4f\n", meta.PerformanceMetrics["accuracy"])

	if *noSave {
		fmt.Printf("\n%s model %s not registered (dry run)\n", yellow("!"), meta.ID)
		return nil
	}

	store, err := openRegistry(c)
	if err != nil {
		return err
	}
	defer store.Close()

	version, err := store.Save(m, meta)
	if err != nil {
		return err
	}
	fmt.Printf("\n%s registered %s version %s\n", green("✓"), bold(meta.ID), version)
	return nil
}
