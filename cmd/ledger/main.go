package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/erp/stockledger/internal/domain/shared"
	"github.com/erp/stockledger/internal/infrastructure/config"
	"github.com/erp/stockledger/internal/infrastructure/logger"
	"go.uber.org/zap"
)

func main() {
	var (
		configFile string
		logLevel   string
		asJSON     bool
	)

	flag.StringVar(&configFile, "config", "", "Config file (default: ./config.toml)")
	flag.StringVar(&logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	flag.BoolVar(&asJSON, "json", false, "Print results as JSON")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = cfg.Log.Format
	logCfg.Output = cfg.Log.Output
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	log, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to start ledger", zap.Error(err))
		os.Exit(1)
	}
	out := newPrinter(os.Stdout, asJSON, a.master)
	err = cmd.run(ctx, a, out, args[1:])
	a.close(context.WithoutCancel(ctx))
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps ledger rejections to 3 and everything else to 1
func exitCode(err error) int {
	var de *shared.DomainError
	if errors.As(err, &de) {
		return 3
	}
	return 1
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Warehouse stock ledger

Usage:
  ledger [flags] <command> [arguments]

Documents:
  create -f <file.yaml>                 Create draft documents described in a YAML file
  confirm <id|number>...                Confirm drafts in the given order
  delete <id|number>                    Delete a draft
  documents [-kind K] [-status S]       List documents
  show <id|number>                      Print one document

Stock:
  on-hand -item <ref> -warehouse <id>   Live quantity of an item
  batches -item <ref> -warehouse <id>   Live batches, oldest first
  stock-as-of -date <YYYY-MM-DD>        Replayed stock at the end of a day
  producible -dish <id> -warehouse <id> How many dishes current stock can produce
  turnover -item <ref> -warehouse <id> -from <date> -to <date> [-xlsx <file>]
                                        Daily movements of an item

Counterparties:
  pay -counterparty <id> -direction PAYABLE|RECEIVABLE -amount <n> -date <date> [-target <doc>]
                                        Record a payment, allocated oldest document first
  balance <counterparty>                Outstanding debts, advances and settlements

Flags:
  -config string      Config file (default: ./config.toml)
  -log-level string   Log level override
  -json               Print results as JSON

Item references are written product:<id> or dish:<id>.
Environment variables prefixed LEDGER_ override the config file
(e.g. LEDGER_DATABASE_DRIVER, LEDGER_LEDGER_MASTER_DATA_PATH).`)
}
