package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/OldStager01/droplet-predictor/internal/artifact"
	"github.com/OldStager01/droplet-predictor/internal/logger"
	"github.com/OldStager01/droplet-predictor/internal/manager"
	"github.com/OldStager01/droplet-predictor/internal/model"
	"github.com/OldStager01/droplet-predictor/internal/predictor"
	"github.com/OldStager01/droplet-predictor/internal/registry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dataType := flag.String("type", "", "configuration id (type1, type2, type3)")
	features := flag.String("features", "", "comma separated raw feature values")
	artifactDir := flag.String("artifacts", "module", "directory holding model weights")
	trainingDir := flag.String("training", "train_file", "directory holding training workbooks")
	timeout := flag.Duration("timeout", 30*time.Second, "model load timeout")
	initWeights := flag.String("init-weights", "", "write freshly initialised weights to this file and exit")
	dim := flag.Int("dim", 0, "input dimension for -init-weights")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logger.Setup(*logLevel, "development")

	if *initWeights != "" {
		return writeWeights(*initWeights, *dim)
	}

	reg := registry.Default(*artifactDir, *trainingDir)
	if *dataType == "" {
		for _, spec := range reg.List() {
			fmt.Printf("%s\t%s\t%s\n", spec.ID, spec.DisplayName, strings.Join(spec.FeatureOrder, ","))
		}
		return nil
	}

	values, err := parseFeatures(*features)
	if err != nil {
		return err
	}

	models := manager.New(manager.Config{
		Registry:    reg,
		Store:       artifact.NewFileStore(),
		LoadTimeout: *timeout,
	})
	pred := predictor.New(predictor.Config{Registry: reg, Source: models})

	prediction, err := pred.Predict(context.Background(), *dataType, values)
	if err != nil {
		return fmt.Errorf("%s: %w", predictor.Kind(err), err)
	}

	fmt.Println(strconv.FormatFloat(prediction, 'g', -1, 64))
	return nil
}

func parseFeatures(raw string) ([]float64, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("-features is required")
	}
	parts := strings.Split(raw, ",")
	values := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

func writeWeights(path string, dim int) error {
	m, err := model.New(dim)
	if err != nil {
		return err
	}
	blob, err := m.StateDict().Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	logger.Infof("Wrote %d-input weights to %s", dim, path)
	return nil
}
