package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/attachflow/attachflow/internal/app"
	"github.com/attachflow/attachflow/internal/config"
	"github.com/attachflow/attachflow/internal/logger"
	"github.com/attachflow/attachflow/internal/models"
	"github.com/attachflow/attachflow/internal/types"
)

var (
	cfgDir    string
	logLevel  string
	logFormat string
	force     bool
	watch     bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "attachflow",
	Short: "Rule-based mailbox attachment extraction",
	Long: `Scans mailboxes over IMAP or POP3, evaluates user-defined rules against
message metadata and extracts matching attachments into a deterministic,
deduplicated local file layout.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config-dir", "./config", "configuration directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging format (text, json, dev)")

	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))

	runCmd.Flags().BoolVar(&force, "force", false, "reprocess messages already recorded in the ledger")
	runCmd.Flags().BoolVar(&watch, "watch", false, "keep running, re-executing rules when the configuration changes")

	rootCmd.AddCommand(runCmd, testConnectionCmd, listFoldersCmd, forgetCmd)
}

// newApp builds the application with a logger derived from the loaded
// settings, with CLI flags taking precedence.
func newApp() (*app.App, *slog.Logger, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, nil, err
	}
	log := logger.Setup(settings)

	application, err := app.New(cfgDir, log)
	if err != nil {
		return nil, nil, err
	}
	return application, log, nil
}

func loadSettings() (*types.Settings, error) {
	store, err := config.Load(cfgDir, slog.Default())
	if err != nil {
		return nil, err
	}
	settings := store.Settings()
	if v := viper.GetString("logging.level"); v != "" {
		settings.Logging.Level = v
	}
	if v := viper.GetString("logging.format"); v != "" {
		settings.Logging.Format = v
	}
	return settings, nil
}

var runCmd = &cobra.Command{
	Use:   "run [rule...]",
	Short: "Execute extraction rules (all enabled rules when none are named)",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, log, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if watch {
			log.Info("watching configuration directory", "dir", cfgDir)
			if err := application.Watch(ctx, args, force); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		}

		reports := application.RunRules(ctx, args, force)
		failed := 0
		for _, rep := range reports {
			logReport(log, rep)
			if !rep.Completed {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d rule runs did not complete", failed, len(reports))
		}
		return nil
	},
}

func logReport(log *slog.Logger, rep *models.RunReport) {
	log.Info("run finished",
		"rule", rep.RuleName,
		"account", rep.AccountName,
		"scanned", rep.Scanned,
		"matched", rep.Matched,
		"written", rep.Written,
		"skipped", rep.Skipped,
		"errors", rep.ErrorCount(),
		"completed", rep.Completed,
		"duration", rep.FinishedAt.Sub(rep.StartedAt).String(),
	)
	for _, msg := range rep.Errors {
		log.Warn("run error", "rule", rep.RuleName, "error", msg)
	}
}

var testConnectionCmd = &cobra.Command{
	Use:   "test-connection <account>",
	Short: "Connect to an account, authenticate and list its folders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, log, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		folders, err := application.TestConnection(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		log.Info("connection test succeeded", "account", args[0], "folders", len(folders))
		for _, f := range folders {
			fmt.Println(f)
		}
		return nil
	},
}

var listFoldersCmd = &cobra.Command{
	Use:   "list-folders <account>",
	Short: "List the folders of an account's mailbox",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, _, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		folders, err := application.ListFolders(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		for _, f := range folders {
			fmt.Println(f)
		}
		return nil
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget <account> <folder> <uid>",
	Short: "Remove one processed record so the message is reprocessed on the next run",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, log, err := newApp()
		if err != nil {
			return err
		}
		defer application.Close()

		if err := application.Forget(cmd.Context(), args[0], args[1], args[2]); err != nil {
			return err
		}
		log.Info("processed record removed", "account", args[0], "folder", args[1], "uid", args[2])
		return nil
	},
}
