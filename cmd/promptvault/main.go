// PromptVault gRPC server and command line client
// Stores prompt version history with diffs, reverts and review comments
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nainya/promptvault/internal/config"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
	logPretty  bool

	addr    string
	author  string
	timeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "promptvault",
		Short:         "Versioned prompt storage with diffs, reverts and comments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", "", "YAML config file")
	pf.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before reading PROMPTVAULT_* variables")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVar(&g.logPretty, "log-pretty", false, "human readable console logs")
	pf.StringVar(&g.addr, "addr", "localhost:50051", "server address for client commands")
	pf.StringVar(&g.author, "author", "", "author id sent with comment commands")
	pf.DurationVar(&g.timeout, "timeout", 10*time.Second, "per request timeout for client commands")

	root.AddCommand(
		newServeCmd(g),
		newCreateCollectionCmd(g),
		newGetCollectionCmd(g),
		newListCollectionsCmd(g),
		newDeleteCollectionCmd(g),
		newCreatePromptCmd(g),
		newGetPromptCmd(g),
		newListPromptsCmd(g),
		newUpdatePromptCmd(g),
		newDeletePromptCmd(g),
		newAppendCmd(g),
		newListCmd(g),
		newGetCmd(g),
		newRevertCmd(g),
		newDiffCmd(g),
		newCommentCmd(g),
		newHealthCmd(g),
	)
	return root
}

// loadConfig reads the config file and environment, then applies flags that were set
func (g *globalFlags) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(config.Options{Path: g.configPath, EnvFile: g.envFile})
	if err != nil {
		return cfg, err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if cmd.Flags().Changed("log-pretty") {
		cfg.Log.Pretty = g.logPretty
	}
	return cfg, nil
}
