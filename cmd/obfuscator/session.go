package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mundrapranay/silhouette-obfuscator/pkg/client"
	"github.com/mundrapranay/silhouette-obfuscator/pkg/obfuscate"
)

// withClient runs fn against the configured server.
func (a *app) withClient(ctx context.Context, fn func(context.Context, *client.Client) error) error {
	c, err := client.NewClient(a.serverAddr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return fn(ctx, c)
}

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage sessions on an obfuscator node",
	}

	var engine engineFlags
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a session bound to the configured obfuscation parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.engineConfig(cmd.Flags(), &engine)
			if err != nil {
				return err
			}
			return a.withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				id, err := c.CreateSession(ctx, cfg)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	engine.register(create.Flags())

	drop := &cobra.Command{
		Use:   "drop <session-id>",
		Short: "Drop a session and its cached answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				return c.DropSession(ctx, args[0])
			})
		},
	}

	cmd.AddCommand(create, drop)
	return cmd
}

func newQueryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "query <session-id> <value> [bin]",
		Short: "Obfuscate one count through a session",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value: %w", err)
			}
			var bin uint64
			if len(args) == 3 {
				if bin, err = strconv.ParseUint(args[2], 10, 64); err != nil {
					return fmt.Errorf("invalid bin: %w", err)
				}
			}

			return a.withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
				result, err := c.Obfuscate(ctx, args[0], value, obfuscate.Bin(bin))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func newGuaranteeCmd(a *app) *cobra.Command {
	var engine engineFlags
	cmd := &cobra.Command{
		Use:   "guarantee [session-id]",
		Short: "Describe the privacy guarantee of a session or of the local config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return a.withClient(cmd.Context(), func(ctx context.Context, c *client.Client) error {
					g, err := c.Guarantee(ctx, args[0])
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), g)
					return nil
				})
			}

			cfg, err := a.engineConfig(cmd.Flags(), &engine)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Guarantee())
			return nil
		},
	}
	engine.register(cmd.Flags())
	return cmd
}
