package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"

	"tabml/internal/cfg"
	"tabml/internal/logging"
	"tabml/internal/metrics"
	"tabml/internal/registry"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

type command struct {
	name    string
	summary string
	run     func(c cfg.Settings, args []string) error
}

var commands = []command{
	{"train", "train every candidate on a CSV file and register the best model", runTrain},
	{"predict", "predict a CSV file or a single JSON record", runPredict},
	{"serve", "serve registered models over HTTP", runServe},
	{"models", "list, inspect, roll back or delete registered models", runModels},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		usage()
		return
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "%s unknown command %q\n\n", red("✗"), name)
		usage()
		os.Exit(2)
	}

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	_, closer := logging.Setup(logging.Options{
		Level:      c.LogLevel,
		File:       c.LogFile,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
	})

	err = cmd.run(c, os.Args[2:])
	closer.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("✗"), err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "%s\n\nUsage: tabml <command> [flags]\n\nCommands:\n", bold("tabml - tabular classifier pipeline"))
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", cyan(c.name), c.summary)
	}
	fmt.Fprintln(os.Stderr, "\nRun 'tabml <command> -h' for the flags of a command.")
}

func openRegistry(c cfg.Settings) (*registry.Store, error) {
	store, err := registry.New(c.DataPath)
	if err != nil {
		return nil, fmt.Errorf("open registry in %s: %w", c.DataPath, err)
	}
	return store, nil
}

var (
	observerOnce   sync.Once
	sharedObserver *metrics.Observer
)

// newObserver returns the process-wide observer on the default registry.
func newObserver() *metrics.Observer {
	observerOnce.Do(func() {
		sharedObserver = metrics.NewObserver(metrics.New())
	})
	return sharedObserver
}
