// Package cmd implements the swingctl command tree.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultURL     = "http://localhost:8080"
	configDirName  = ".swingctl"
	configFileName = "config"
)

// app carries the resolved settings shared by every subcommand.
type app struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
}

func (a *app) baseURL() string {
	return strings.TrimRight(a.v.GetString("url"), "/")
}

func (a *app) apiKey() string {
	return a.v.GetString("api_key")
}

func (a *app) jsonOutput() bool {
	return a.v.GetString("output") == "json"
}

func (a *app) client() *apiClient {
	return newAPIClient(a.baseURL(), a.apiKey(), a.v.GetDuration("timeout"))
}

// NewRootCmd builds the command tree. Settings resolve in the order flag,
// SWING_* environment variable, config file, default.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out, errOut: errOut}
	var cfgFile string

	root := &cobra.Command{
		Use:           "swingctl",
		Short:         "Operate the swing analysis server",
		Long:          "swingctl inspects analysis jobs, sends orchestrator triggers and manages API keys for the swing analysis server.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.loadConfig(cfgFile)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default $HOME/.swingctl/config.toml)")
	pf.String("url", defaultURL, "server base URL")
	pf.String("api-key", "", "API key sent as a bearer token")
	pf.StringP("output", "o", "table", "output format: table or json")
	pf.Duration("timeout", 30*time.Second, "HTTP request timeout")

	a.v.SetDefault("url", defaultURL)
	a.v.SetDefault("output", "table")
	a.v.SetDefault("timeout", 30*time.Second)
	_ = a.v.BindPFlag("url", pf.Lookup("url"))
	_ = a.v.BindPFlag("api_key", pf.Lookup("api-key"))
	_ = a.v.BindPFlag("output", pf.Lookup("output"))
	_ = a.v.BindPFlag("timeout", pf.Lookup("timeout"))

	root.AddCommand(
		newStatusCmd(a),
		newTriggerCmd(a),
		newKeysCmd(a),
		newMigrateCmd(a),
		newConfigCmd(a),
	)

	root.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return fmt.Errorf("%w\nrun '%s --help' for usage", err, c.CommandPath())
	})
	return root
}

func (a *app) loadConfig(cfgFile string) error {
	a.v.SetEnvPrefix("SWING")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	a.v.AutomaticEnv()

	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
	} else {
		dir, err := defaultConfigDir()
		if err != nil {
			return err
		}
		a.v.AddConfigPath(dir)
		a.v.SetConfigName(configFileName)
		a.v.SetConfigType("toml")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || cfgFile != "" {
			return fmt.Errorf("read config: %w", err)
		}
	}

	switch a.v.GetString("output") {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output format %q: use table or json", a.v.GetString("output"))
	}
	return nil
}

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}
