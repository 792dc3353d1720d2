package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pffise-create/PinhighAI-sub003/internal/api/handler"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"github.com/spf13/cobra"
)

type createdKey struct {
	models.APIKey
	Key string `json:"key"`
}

func newKeysCmd(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "keys",
		Short: "Manage API keys",
	}
	c.AddCommand(newKeysCreateCmd(a), newKeysListCmd(a), newKeysRevokeCmd(a), newKeysBootstrapCmd(a))
	return c
}

func newKeysCreateCmd(a *app) *cobra.Command {
	var (
		name   string
		scopes []string
	)
	c := &cobra.Command{
		Use:   "create",
		Short: "Create an API key through the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var key createdKey
			body := map[string]any{"name": name, "scopes": scopes}
			if err := a.client().do(cmd.Context(), "POST", "/api/v1/admin/keys", body, &key); err != nil {
				return err
			}
			return printCreatedKey(a, key)
		},
	}
	c.Flags().StringVar(&name, "name", "", "descriptive name of the calling service (required)")
	c.Flags().StringSliceVar(&scopes, "scope", []string{models.ScopeRead}, "scopes to grant: intake, trigger, read, admin")
	_ = c.MarkFlagRequired("name")
	return c
}

func newKeysListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active API keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var keys []models.APIKey
			if err := a.client().do(cmd.Context(), "GET", "/api/v1/admin/keys", nil, &keys); err != nil {
				return err
			}
			if a.jsonOutput() {
				return printJSON(a.out, keys)
			}
			table := tablewriter.NewWriter(a.out)
			table.Header("ID", "Name", "Prefix", "Scopes", "Last Used", "Created")
			for _, k := range keys {
				lastUsed := "never"
				if k.LastUsedAt != nil {
					lastUsed = k.LastUsedAt.Format(time.RFC3339)
				}
				table.Append(k.ID.String(), k.Name, k.KeyPrefix, strings.Join(k.Scopes, ","), lastUsed, k.CreatedAt.Format(time.RFC3339))
			}
			return table.Render()
		},
	}
}

func newKeysRevokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.client().do(cmd.Context(), "DELETE", "/api/v1/admin/keys/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Key %s revoked\n", args[0])
			return nil
		},
	}
}

// newKeysBootstrapCmd writes a key straight into the store. It exists for the
// first admin key, before any key can authenticate against the API.
func newKeysBootstrapCmd(a *app) *cobra.Command {
	var (
		name   string
		scopes []string
	)
	c := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create an API key directly in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), a.v.GetDuration("timeout"))
			defer cancel()

			st, closeFn, err := openStore(ctx, a.dbSettings())
			if err != nil {
				return err
			}
			defer closeFn()

			raw, key, err := handler.GenerateKey(name, scopes)
			if err != nil {
				return err
			}
			if err := st.CreateAPIKey(ctx, key); err != nil {
				return fmt.Errorf("store key: %w", err)
			}
			return printCreatedKey(a, createdKey{APIKey: *key, Key: raw})
		},
	}
	c.Flags().StringVar(&name, "name", "admin", "descriptive name of the key")
	c.Flags().StringSliceVar(&scopes, "scope", []string{models.ScopeAdmin}, "scopes to grant")
	addDBFlags(a, c)
	return c
}

func printCreatedKey(a *app, key createdKey) error {
	if a.jsonOutput() {
		return printJSON(a.out, key)
	}
	table := tablewriter.NewWriter(a.out)
	table.Header("Field", "Value")
	table.Append("ID", key.ID.String())
	table.Append("Name", key.Name)
	table.Append("Scopes", strings.Join(key.Scopes, ","))
	table.Append("Key", key.Key)
	if err := table.Render(); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "\nStore the key now. It cannot be shown again.")
	return nil
}
