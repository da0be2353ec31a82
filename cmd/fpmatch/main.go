// Command fpmatch compares a fingerprint sample against a template image
// and prints the verdict.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/high-horse/fingerprint-server/internal/config"
	"github.com/high-horse/fingerprint-server/internal/preprocess"
	"github.com/high-horse/fingerprint-server/internal/verify"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	debugDir := flag.String("debug", "", "write preprocessing snapshots to this directory")
	asJSON := flag.Bool("json", false, "print the outcome as JSON")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] sample template\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	sample, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		log.Fatal(err)
	}
	tmpl, err := os.ReadFile(flag.Arg(1))
	if err != nil {
		log.Fatal(err)
	}

	opts := verify.OptionsFrom(cfg.Matching)
	opts.CacheTTL = 0
	opts.Quiet = true
	if *debugDir != "" {
		sink, err := preprocess.NewDirSink(*debugDir)
		if err != nil {
			log.Fatal(err)
		}
		opts.Sink = sink
	}

	o := verify.New(opts).VerifyBytes(context.Background(), sample, tmpl)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report{Result: o.Result, SubScores: o.SubScores, Stats: o.Stats, Failure: o.Kind().String(), Error: errString(o.Err)}); err != nil {
			log.Fatal(err)
		}
	} else {
		printReport(o)
	}
	if o.Kind() == verify.KindDecode {
		os.Exit(1)
	}
}
