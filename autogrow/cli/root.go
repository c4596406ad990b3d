// Package cli holds the autogrow command tree.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mjasion/balena-home/autogrow/api"
	"github.com/mjasion/balena-home/autogrow/config"
)

// isTerminal reports whether stdin is interactive; replaced in tests
var isTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

type rootOptions struct {
	configPath string
	envFile    string
	apiURL     string
}

// NewRootCommand builds the autogrow command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "autogrow",
		Short: "Autogrow - sensor and watering dashboard",
		Long: `Autogrow serves a live dashboard for sensor readings and irrigation
cycles stored by the autogrow REST API, and manages those records from the terminal.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envFile == "" {
				return nil
			}
			if err := godotenv.Load(opts.envFile); err != nil {
				return fmt.Errorf("failed to load env file %s: %w", opts.envFile, err)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (environment only when empty)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Load environment variables from this .env file first")
	root.PersistentFlags().StringVar(&opts.apiURL, "api-url", "", "API base URL, overrides the configuration")

	root.AddCommand(
		newServeCommand(opts),
		newHealthCommand(opts),
		newSensorsCommand(opts),
		newHistoryCommand(opts),
		newWateringCommand(opts),
	)
	return root
}

// Execute runs the command tree and returns the process exit code
func Execute() int {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// config loads the configuration with --api-url applied before validation
func (o *rootOptions) config() (*config.Config, error) {
	return config.Load(o.configPath, config.WithAPIURL(o.apiURL))
}

// client builds an API client from the configuration and returns the timezone records are shown in
func (o *rootOptions) client() (*api.Client, *time.Location, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	opts := []api.ClientOption{api.WithTimeout(cfg.APITimeout())}
	if cfg.Breaker.Enabled {
		opts = append(opts, api.WithBreaker(uint32(cfg.Breaker.MaxFailures), time.Duration(cfg.Breaker.OpenSeconds)*time.Second))
	}
	return api.NewClient(cfg.APIURL, opts...), loc, nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// confirm asks a yes/no question when stdin is a terminal; otherwise it answers yes
func confirm(in io.Reader, out io.Writer, question string) (bool, error) {
	if !isTerminal() {
		return true, nil
	}
	fmt.Fprintf(out, "%s [y/N]: ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
