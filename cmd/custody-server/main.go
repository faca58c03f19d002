package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/shamir-custody/api/custody"
	"github.com/ruteri/shamir-custody/cmd/flags"
	"github.com/ruteri/shamir-custody/cryptoutils"
	"github.com/ruteri/shamir-custody/httpserver"
	"github.com/ruteri/shamir-custody/storage"
	"github.com/urfave/cli/v2"
)

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:8080",
	Usage:   "address to listen on for the admin API",
	EnvVars: []string{"SHAMIR_LISTEN_ADDR"},
}
var AdminKeysFlag = &cli.StringFlag{
	Name:     "admin-keys-file",
	Required: true,
	Usage:    "JSON file with admin public keys; file order assigns share indices",
	EnvVars:  []string{"SHAMIR_ADMIN_KEYS_FILE"},
}
var ThresholdFlag = &cli.IntFlag{
	Name:     "threshold",
	Required: true,
	Usage:    "number of admin shares needed to recover the master key",
	EnvVars:  []string{"SHAMIR_THRESHOLD"},
}
var BootstrapTimeoutFlag = &cli.IntFlag{
	Name:    "bootstrap-timeout",
	Value:   86400,
	Usage:   "seconds to wait for admins to complete bootstrap",
	EnvVars: []string{"SHAMIR_BOOTSTRAP_TIMEOUT"},
}
var SetNameFlag = &cli.StringFlag{
	Name:    "set-name",
	Value:   "custody",
	Usage:   "name of the sealed share set in storage",
	EnvVars: []string{"SHAMIR_SET_NAME"},
}

func main() {
	app := &cli.App{
		Name:  "custody-server",
		Usage: "Hold a master key under Shamir custody of a set of admins",
		Flags: append(append([]cli.Flag{
			ListenAddrFlag,
			AdminKeysFlag,
			ThresholdFlag,
			BootstrapTimeoutFlag,
			flags.StoreURIFlag,
			SetNameFlag,
			flags.LogServiceFlagFn("custody"),
		}, flags.MACFlags...), flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			adminHandler, err := setupAdminHandler(cCtx, logger)
			if err != nil {
				logger.Error("Failed to set up admin handler", "err", err)
				return err
			}

			srv, err := httpserver.New(flags.ConfigureServer(cCtx, logger, cCtx.String(ListenAddrFlag.Name)), adminHandler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			srv.RunInBackground()
			defer srv.Shutdown()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			ctx, cancel := context.WithTimeout(cCtx.Context, time.Duration(cCtx.Int(BootstrapTimeoutFlag.Name))*time.Second)
			defer cancel()
			go func() {
				select {
				case <-exit:
					logger.Info("Shutdown signal received during bootstrap")
					cancel()
				case <-ctx.Done():
				}
			}()

			logger.Info("Waiting for KMS bootstrap to complete...", "timeout", cCtx.Int(BootstrapTimeoutFlag.Name))
			shamirKMS, err := adminHandler.WaitForBootstrap(ctx)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("bootstrap did not complete in time: %w", err)
				}
				return err
			}
			defer shamirKMS.Lock()

			logger.Info("KMS bootstrap complete, master key held in memory", "sessionID", shamirKMS.Context().SessionID)

			<-exit
			logger.Info("Shutdown signal received, wiping master key")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setupAdminHandler(cCtx *cli.Context, logger *slog.Logger) (*custody.AdminHandler, error) {
	adminKeysFile := cCtx.String(AdminKeysFlag.Name)

	logger.Info("Loading admin keys", "file", adminKeysFile)
	f, err := os.Open(adminKeysFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open admin keys file: %w", err)
	}
	defer f.Close()

	adminKeys, adminIDs, err := cryptoutils.LoadAdminKeys(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load admin keys: %w", err)
	}
	logger.Info("Admin keys loaded successfully", "count", len(adminIDs))

	macKey, err := flags.LoadMACKey(cCtx)
	if err != nil {
		return nil, err
	}

	cfg := custody.AdminHandlerConfig{
		Threshold:    cCtx.Int(ThresholdFlag.Name),
		AdminIDs:     adminIDs,
		AdminPubKeys: adminKeys,
		MACKey:       macKey,
		SetName:      cCtx.String(SetNameFlag.Name),
	}

	if uris := cCtx.StringSlice(flags.StoreURIFlag.Name); len(uris) > 0 {
		backend, err := storage.NewStorageBackendFactory(logger).CreateMultiBackend(uris)
		if err != nil {
			return nil, fmt.Errorf("failed to set up share storage: %w", err)
		}
		cfg.Store = storage.NewShareStore(backend, logger)
		logger.Info("Sealed shares will be kept in storage", "backend", backend.Name(), "set", cfg.SetName)
	}

	return custody.NewAdminHandler(logger, cfg)
}
