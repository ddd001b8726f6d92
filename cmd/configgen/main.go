package main

import (
	"flag"
	"log"

	"github.com/danmuck/wearctl/internal/config"
)

const defaultPath = "cmd/wearctl/config.toml"

func main() {
	output := flag.String("output", defaultPath, "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", defaultPath, "config path for validation")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		f, err := config.Load(*input)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated wearctl config at %s (relays=%d pairs=%d)", *input, len(f.Relays), len(f.Pairs))
		return
	}

	if err := config.WriteTemplate(*output, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote wearctl config template to %s", *output)
}
