package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/wearctl/internal/engine"
	"github.com/danmuck/wearctl/internal/logging"
	"github.com/danmuck/wearctl/internal/observability"
)

func main() {
	path := flag.String("config", "", "config file (defaults to built-in settings)")
	level := flag.String("log-level", "", "trace|debug|info|warn|error|off; overrides "+logging.EnvLogLevel)
	flag.Parse()

	logging.ConfigureRuntime()
	if lvl, ok := logging.ParseLevel(*level); ok {
		observability.InitLogger("wearctl", lvl)
	}

	cfg := engine.DefaultServiceConfig()
	if *path != "" {
		var err error
		if cfg, err = loadServiceConfig(*path); err != nil {
			fmt.Fprintf(os.Stderr, "wearctl: %v\n", err)
			os.Exit(1)
		}
	}
	if err := engine.NewServiceWithConfig(cfg).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "wearctl: %v\n", err)
		os.Exit(1)
	}
}
