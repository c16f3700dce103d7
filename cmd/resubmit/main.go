// resubmit drains the dead-letter outbox: it retries every stranded solution
// against the scavenger service, re-registering wallets where needed, and
// keeps only the entries that are still unconfirmed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/whonion/scavenger-miner/client"
	"github.com/whonion/scavenger-miner/logging"
	"github.com/whonion/scavenger-miner/outbox"
	"github.com/whonion/scavenger-miner/wallet"
)

type options struct {
	OutboxFile  string `long:"outbox"      description:"Path to the solutions outbox file"   default:"solutions.csv"`
	WalletsFile string `long:"wallets"     description:"Path to the wallets file"            default:"wallets.json"`
	ServiceURL  string `long:"service-url" description:"Base URL of the scavenger service"`
	DebugLog    bool   `long:"debuglog"    description:"Enable debug logs"`
}

func resubmitMain() error {
	opts := options{ServiceURL: client.DefaultBaseURL}
	if _, err := flags.Parse(&opts); err != nil {
		return err
	}

	logLevel := zap.InfoLevel
	if opts.DebugLog {
		logLevel = zap.DebugLevel
	}
	logger := logging.New(logLevel, "", 0, 0, false)
	ctx := logging.NewContext(context.Background(), logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var creds outbox.Credentials
	store, err := wallet.OpenStore(opts.WalletsFile)
	if err != nil {
		logger.Warn("wallet store unavailable, re-registration disabled", zap.Error(err))
	} else {
		creds = func(address string) (string, string, bool) {
			w, ok := store.ByAddress(address)
			return w.Signature, w.Pubkey, ok
		}
	}

	box := outbox.Open(opts.OutboxFile)
	sum, err := box.Resubmit(ctx, client.New(opts.ServiceURL), creds)
	if err != nil {
		return err
	}

	fmt.Printf("accepted: %d, already existed: %d, rejected: %d, errors: %d, window closed: %d, registered: %d\n",
		sum.Accepted, sum.Duplicate, sum.Rejected, sum.Errors, sum.WindowClosed, sum.Registered)
	return nil
}

func main() {
	if err := resubmitMain(); err != nil {
		if fe, ok := err.(*flags.Error); ok && fe.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
