package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"tabml/internal/cfg"
	"tabml/internal/client"
	"tabml/internal/dataset"
	"tabml/internal/logging"
	"tabml/internal/prediction"
)

func runPredict(c cfg.Settings, args []string) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	var (
		id     = fs.String("model", "", "Registered model id (required)")
		input  = fs.String("input", "", "CSV file to predict")
		record = fs.String("record", "", "Single record as a JSON object")
		target = fs.String("target", "", "Target column name (defaults to the trained target)")
		output = fs.String("output", "", "CSV file to write; stdout when empty")
		remote = fs.Bool("remote", false, "Predict through the model server at SERVER_URL")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("predict: -model is required")
	}
	if (*input == "") == (*record == "") {
		return errors.New("predict: exactly one of -input or -record is required")
	}

	if *record != "" {
		rec, err := parseRecord(*record)
		if err != nil {
			return err
		}
		if *remote {
			return predictRecordRemote(c, *id, rec, *target)
		}
		return predictRecordLocal(c, *id, rec, *target)
	}

	ds, err := dataset.LoadCSV(*input)
	if err != nil {
		return err
	}
	if *remote {
		ds, err = predictBatchRemote(c, *id, ds, *target)
	} else {
		ds, err = predictBatchLocal(c, *id, ds, *target)
	}
	if err != nil {
		return err
	}

	if *output == "" {
		return dataset.WriteCSV(os.Stdout, ds)
	}
	if err := dataset.SaveCSV(*output, ds); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s wrote %d predictions to %s\n", green("✓"), ds.Len(), *output)
	return nil
}

func parseRecord(s string) (dataset.Record, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var rec dataset.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("invalid -record: %w", err)
	}
	return rec, nil
}

func predictRecordLocal(c cfg.Settings, id string, rec dataset.Record, target string) error {
	store, err := openRegistry(c)
	if err != nil {
		return err
	}
	defer store.Close()

	m, meta, err := store.Load(id)
	if err != nil {
		return err
	}
	if target == "" {
		target = meta.TargetColumn
	}

	p := prediction.NewWithDropColumns(logging.Component("predictor"), newObserver(), c.DropColumns)
	pred, err := p.PredictRecord(m, rec, target)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %v\n", cyan(target), dataset.FormatValue(pred))
	return nil
}

func predictRecordRemote(c cfg.Settings, id string, rec dataset.Record, target string) error {
	resp, err := client.New(c.ServerURL, c.RequestTimeout).Predict(id, rec, target)
	if err != nil {
		return err
	}
	fmt.Printf("%s = %v\n", cyan(resp.Target), dataset.FormatValue(resp.Prediction))
	return nil
}

func predictBatchLocal(c cfg.Settings, id string, ds *dataset.Dataset, target string) (*dataset.Dataset, error) {
	store, err := openRegistry(c)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	m, meta, err := store.Load(id)
	if err != nil {
		return nil, err
	}
	if target == "" {
		target = meta.TargetColumn
	}

	p := prediction.NewWithDropColumns(logging.Component("predictor"), newObserver(), c.DropColumns)
	return p.PredictBatch(m, ds, target)
}

// predictBatchRemote sends ds in chunks of at most MaxBatchRows records and
// appends the returned column to ds.
func predictBatchRemote(c cfg.Settings, id string, ds *dataset.Dataset, target string) (*dataset.Dataset, error) {
	cl := client.New(c.ServerURL, c.RequestTimeout)

	var (
		column string
		preds  []any
	)
	for start := 0; start < ds.Len(); start += c.MaxBatchRows {
		end := min(start+c.MaxBatchRows, ds.Len())
		records := make([]dataset.Record, 0, end-start)
		for i := start; i < end; i++ {
			records = append(records, ds.Row(i))
		}

		resp, err := cl.PredictBatch(id, records, target)
		if err != nil {
			return nil, err
		}
		column = resp.Column
		preds = append(preds, resp.Predictions...)
	}

	if column == "" {
		column = prediction.PredictionColumn
	}
	if err := ds.AddColumn(column, preds); err != nil {
		return nil, err
	}
	return ds, nil
}
