// Command obfuscator releases Laplace-obfuscated counts, either locally from
// a file or through a replicated obfuscation service.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/mundrapranay/silhouette-obfuscator/internal/config"
)

// app carries state shared by every subcommand.
type app struct {
	configPath string
	logLevel   string
	serverAddr string
	timeout    time.Duration

	cfg    *config.Config
	logger hclog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "obfuscator",
		Short: "Differentially private count obfuscation",
		Long: `obfuscator perturbs non-negative counts with Laplace noise, rounds them
to a reporting step and caches each answer so repeated queries for the
same count return the same value.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML config file (defaults and OBF_* environment when empty)")
	flags.StringVar(&a.logLevel, "log-level", "", "override log_level from the config")
	flags.StringVar(&a.serverAddr, "server", "", "gRPC address of an obfuscator node (defaults to server.grpc_addr)")
	flags.DurationVar(&a.timeout, "timeout", 10*time.Second, "timeout for client requests")

	root.AddCommand(
		newServeCmd(a),
		newBatchCmd(a),
		newSessionCmd(a),
		newQueryCmd(a),
		newGuaranteeCmd(a),
	)
	return root
}

func (a *app) load(logOutput io.Writer) error {
	// Validation waits until each subcommand has applied its own flags.
	cfg, err := config.ReadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if a.serverAddr == "" {
		a.serverAddr = cfg.Server.GRPCAddr
	}

	a.cfg = cfg
	a.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "obfuscator",
		Level:  hclog.LevelFromString(cfg.LogLevel),
		Output: logOutput,
	})
	return nil
}

func main() {
	if _, err := maxprocs.Set(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set max procs: %v\n", err)
		os.Exit(1)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
