package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OrderDesk/app/config"
	"OrderDesk/app/database"
	"OrderDesk/app/printsvc"
	"OrderDesk/app/services"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

var homeDir string

var rootCmd = &cobra.Command{
	Use:   "orderdesk",
	Short: "Restaurant order backend",
	Long: `OrderDesk takes customer orders, tracks them through the kitchen
workflow, groups them into table sessions and prints kitchen order tickets.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the order API and live event hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := NewApp(homeDir)
		if err != nil {
			return err
		}
		return runUntilSignal(cmd.Context(), app.startup, app.shutdown)
	},
}

var printServiceCmd = &cobra.Command{
	Use:   "print-service",
	Short: "Run the local kitchen ticket print helper",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(homeDir)
		if err != nil {
			return err
		}
		logger := services.NewLoggerService(cfg.Log.Dir)

		db, err := database.Open(cfg.Database)
		if err != nil {
			logger.LogError("Failed to open database", err)
			return err
		}

		printers := services.NewPrinterService(db)
		queue := services.NewPrintQueue(cfg.Print.JobDelay(), logger)
		kot := services.NewKOTService(
			nil,
			printers,
			queue,
			services.NewPrinterRegistry(cfg.Print.KitchenPrinter, cfg.Print.AdminPrinter),
			services.KOTOptions{
				Restaurant: cfg.Business.Name,
				PaperWidth: cfg.Print.PaperWidth,
				SoftFail:   cfg.Print.SoftFail,
			},
		)
		srv := printsvc.NewServer(cfg.Print.ServiceAddr, kot, printers, queue)

		return runUntilSignal(cmd.Context(), srv.Start, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.LogWarning("Print service shutdown error", err.Error())
			}
			queue.Close()
			database.Close(db)
			logger.Close()
		})
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rewrite legacy order statuses and backfill order ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(homeDir)
		if err != nil {
			return err
		}
		db, err := database.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer database.Close(db)

		seq := services.NewOrderIDSequencer(db, cfg.Business.Location())
		summary, err := services.NewMigrationService(db, seq).MigrateOrders(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "processed %d, migrated %d, errors %d (statuses rewritten %d, ids assigned %d)\n",
			summary.Processed, summary.Migrated, summary.Errors, summary.StatusRewrites, summary.IDsAssigned)
		if summary.Errors > 0 {
			return fmt.Errorf("%d orders could not be migrated", summary.Errors)
		}
		return nil
	},
}

var savePIN bool

var hashPINCmd = &cobra.Command{
	Use:   "hash-pin <pin>",
	Short: "Print the bcrypt hash of an admin PIN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash pin: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hash))

		if !savePIN {
			return nil
		}
		// env overrides must not end up in the file
		cfg, err := config.LoadFile(homeDir)
		if err != nil {
			return err
		}
		cfg.Admin.PINHash = string(hash)
		return config.Save(homeDir, cfg)
	},
}

// runUntilSignal runs serve until it returns or the process is interrupted,
// then calls stop
func runUntilSignal(parent context.Context, serve func() error, stop func()) error {
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return serve()
	})
	g.Go(func() error {
		<-ctx.Done()
		stop()
		return nil
	})
	return g.Wait()
}

func init() {
	defaultHome, err := config.HomeDir()
	if err != nil {
		defaultHome = ".orderdesk"
	}
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", defaultHome, "directory holding config.json, .env and logs")
	hashPINCmd.Flags().BoolVar(&savePIN, "save", false, "store the hash in config.json")

	rootCmd.AddCommand(serveCmd, printServiceCmd, migrateCmd, hashPINCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
