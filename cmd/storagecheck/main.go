package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/programme-lv/anytime/conf"
	"github.com/programme-lv/anytime/logger"
	"github.com/programme-lv/anytime/selector"
	"github.com/programme-lv/anytime/submsrvc"
	"github.com/programme-lv/anytime/submstore"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("failed to load .env file: %v", err)
	}

	var skipInsert bool
	var timeout time.Duration

	var rootCmd = &cobra.Command{
		Use:   "storagecheck",
		Short: "Verify the storage backend configuration of the contest API",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			reportEnv(out, os.Getenv)
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			err := checkStorage(ctx, out, skipInsert)
			printHints(out, os.Getenv("STORAGE_BACKEND"))
			return err
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().BoolVar(&skipInsert, "skip-insert", false, "Only select a backend, do not write a test submission")
	rootCmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "Overall time limit for the check")

	var envCmd = &cobra.Command{
		Use:   "env",
		Short: "Show which storage variables are set",
		Run: func(cmd *cobra.Command, args []string) {
			reportEnv(cmd.OutOrStdout(), os.Getenv)
		},
	}

	var hintsCmd = &cobra.Command{
		Use:   "hints [backend]",
		Short: "Show setup instructions for a storage backend",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			backend := os.Getenv("STORAGE_BACKEND")
			if len(args) == 1 {
				backend = args[0]
			}
			printHints(cmd.OutOrStdout(), backend)
		},
	}

	rootCmd.AddCommand(envCmd, hintsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func checkStorage(ctx context.Context, out io.Writer, skipInsert bool) error {
	fmt.Fprintln(out, "\nStorage initialization")
	cfg, err := conf.FromEnv(ctx)
	if err != nil {
		fmt.Fprintf(out, "  configuration error: %v\n", err)
		return err
	}

	sel := selector.New(selector.Config{
		Preferred:   cfg.StorageBackend,
		Credentials: cfg.Storage,
		Logger:      logger.New(os.Stderr, "development"),
	})
	handle, err := sel.Select(ctx)
	if err != nil {
		fmt.Fprintf(out, "  selection failed: %v\n", err)
		return err
	}
	defer sel.Close()

	for _, a := range handle.Attempts() {
		line := fmt.Sprintf("  %-8s %s", a.Backend, a.Outcome)
		if a.Reason != nil {
			line += " (" + a.ReasonCode() + ")"
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "  active backend: %s\n", handle.Kind())
	if handle.Kind() == submstore.KindMemory {
		fmt.Fprintln(out, "  warning: in-memory storage loses every submission on restart")
	}

	srvc := submsrvc.NewSubmSrvc(sel, nil)
	if !skipInsert {
		subm, err := srvc.CreateSubm(ctx, submsrvc.CreateSubmParams{
			Name:   "Test User",
			Email:  "test@example.com",
			Answer: "This is a test submission for storage verification",
		})
		if err != nil {
			fmt.Fprintf(out, "  test submission failed: %v\n", err)
			return err
		}
		fmt.Fprintf(out, "  test submission stored: %s\n", subm.ID)
	}

	count, err := srvc.CountSubms(ctx)
	if err != nil {
		fmt.Fprintf(out, "  count failed: %v\n", err)
		return err
	}
	fmt.Fprintf(out, "  submissions stored: %d\n", count.Total)

	report := srvc.Health(ctx)
	fmt.Fprintf(out, "  health: %s (database %s)\n", report.Status, report.Database)
	return nil
}
