package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-rogue/rpc"
)

func addRPCFlags(cmd *cobra.Command) {
	cmd.Flags().String("server", envOr("ROGUE_ADDR", "127.0.0.1:8301"), "rpc server address")
	cmd.Flags().Duration("timeout", 5*time.Second, "request timeout")
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Read a variable and print its display value.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRPCClient(cmd, func(ctx context.Context, c *rpc.Client) error {
				disp, err := c.GetDisp(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), disp)

				return nil
			})
		},
	}
	addRPCFlags(cmd)

	return cmd
}

func newSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Write a variable. The value is parsed by the variable base.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRPCClient(cmd, func(ctx context.Context, c *rpc.Client) error {
				return c.Set(ctx, args[0], args[1])
			})
		},
	}
	addRPCFlags(cmd)

	return cmd
}

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec <path> [arg]",
		Short: "Run a command and print its result.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var arg any
			if len(args) == 2 {
				arg = args[1]
			}

			return withRPCClient(cmd, func(ctx context.Context, c *rpc.Client) error {
				out, err := c.Exec(ctx, args[0], arg)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), out)

				return nil
			})
		},
	}
	addRPCFlags(cmd)

	return cmd
}

func withRPCClient(cmd *cobra.Command, fn func(ctx context.Context, c *rpc.Client) error) error {
	server, err := cmd.Flags().GetString("server")
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client, err := rpc.Dial(ctx, server, rpc.WithRequestTimeout(timeout))
	if err != nil {
		return err
	}
	defer client.Close()

	return fn(ctx, client)
}
