package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"orphanscan/internal/logger"
	"orphanscan/pkg/config"
)

var (
	cfgPath    string
	driverFlag string
	dsnFlag    string
	prefixFlag string
	timeout    int

	appCfg config.AppConfig

	rootCmd = &cobra.Command{
		Use:   "orphanscan",
		Short: "Find, track and clean up orphaned rows in a relational database",
		Long: `orphanscan checks every table against its declared foreign keys and a set
of structural rules, records each orphaned row once, and lets an operator
ignore, delete or restore them.`,
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", filepath.Join(".", "configs", "example.yaml"), "path to config YAML")
	pf.StringVar(&driverFlag, "driver", "", "db driver override (postgres,mysql,sqlite,sqlserver,godror)")
	pf.StringVar(&dsnFlag, "dsn", "", "dsn override")
	pf.StringVar(&prefixFlag, "prefix", "", "table prefix override")
	pf.IntVar(&timeout, "timeout", 0, "db connect timeout seconds")
}

// loadConfig reads .env, the config file, the environment and the flags, in
// increasing order of precedence.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("error reading .env: %v", err)
	}

	appCfg = config.Default()
	if c, err := config.LoadFile(cfgPath); err == nil {
		appCfg = c
	} else {
		logger.Warn("error reading config file %s: %v", cfgPath, err)
	}
	config.ApplyEnv(&appCfg)

	if driverFlag != "" && dsnFlag != "" {
		appCfg.Database = config.DBConfig{
			Type:           driverFlag,
			DSN:            dsnFlag,
			TablePrefix:    appCfg.Database.TablePrefix,
			TimeoutSeconds: appCfg.Database.TimeoutSeconds,
		}
	}
	if cmd.Flags().Changed("prefix") {
		appCfg.Database.TablePrefix = prefixFlag
	}
	if timeout > 0 {
		appCfg.Database.TimeoutSeconds = timeout
	}
	if appCfg.Database.TimeoutSeconds == 0 {
		appCfg.Database.TimeoutSeconds = config.DefaultTimeoutSeconds
	}

	if err := config.Validate(appCfg); err != nil {
		return err
	}
	return logger.Configure(logger.Options{
		Level:      appCfg.Log.Level,
		Format:     appCfg.Log.Format,
		File:       appCfg.Log.File,
		MaxSizeMB:  appCfg.Log.MaxSizeMB,
		MaxBackups: appCfg.Log.MaxBackups,
		MaxAgeDays: appCfg.Log.MaxAgeDays,
	})
}

// withApp opens the database for the duration of fn.
func withApp(ctx context.Context, fn func(a *app) error) error {
	a, err := openApp(ctx, appCfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		logger.Fatal("%v", err)
	}
}
