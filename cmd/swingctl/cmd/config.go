package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// fileConfig is the on-disk shape of config.toml.
type fileConfig struct {
	URL     string `toml:"url"`
	APIKey  string `toml:"api_key,omitempty"`
	Output  string `toml:"output"`
	Timeout string `toml:"timeout"`
}

func newConfigCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Manage the swingctl config file",
	}
	c.AddCommand(newConfigInitCmd(a), newConfigViewCmd(a))
	return c
}

func newConfigInitCmd(a *app) *cobra.Command {
	var (
		path  string
		force bool
	)
	c := &cobra.Command{
		Use:   "init",
		Short: "Write the current settings to a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				dir, err := defaultConfigDir()
				if err != nil {
					return err
				}
				path = filepath.Join(dir, configFileName+".toml")
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			data, err := toml.Marshal(fileConfig{
				URL:     a.baseURL(),
				APIKey:  a.apiKey(),
				Output:  a.v.GetString("output"),
				Timeout: a.v.GetDuration("timeout").String(),
			})
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return fmt.Errorf("create config dir: %w", err)
			}
			if err := os.WriteFile(path, data, 0o600); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			fmt.Fprintf(a.out, "Wrote %s\n", path)
			return nil
		},
	}
	c.Flags().StringVar(&path, "path", "", "file to write (default $HOME/.swingctl/config.toml)")
	c.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return c
}

func newConfigViewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Print the resolved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key := a.apiKey()
			if len(key) > 8 {
				key = key[:8] + "..."
			}
			fmt.Fprintf(a.out, "url      %s\napi_key  %s\noutput   %s\ntimeout  %s\nfile     %s\n",
				a.baseURL(), key, a.v.GetString("output"), a.v.GetDuration("timeout").Round(time.Millisecond), a.v.ConfigFileUsed())
			return nil
		},
	}
}
