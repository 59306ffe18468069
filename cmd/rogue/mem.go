package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-rogue/logger"
	"github.com/arloliu/go-rogue/memory"
	"github.com/arloliu/go-rogue/memtcp"
)

func newMemCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mem",
		Short: "Read or write remote memory through the memory bridge.",
	}
	cmd.PersistentFlags().String("server", envOr("ROGUE_MEM_ADDR", "127.0.0.1:8300"), "memory bridge address")
	cmd.PersistentFlags().String("addr", "0", "memory address, decimal or 0x hex")
	cmd.PersistentFlags().Duration("timeout", 5*time.Second, "transaction timeout")

	read := &cobra.Command{
		Use:   "read",
		Short: "Read --size bytes at --addr and print them as hex.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			size, err := cmd.Flags().GetUint32("size")
			if err != nil {
				return err
			}

			return withMemClient(cmd, func(ctx context.Context, c *memtcp.Client, addr uint64) error {
				data, err := memory.ReadBytes(ctx, c, addr, size)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(data))

				return nil
			})
		},
	}
	read.Flags().Uint32("size", 4, "number of bytes to read")

	write := &cobra.Command{
		Use:   "write",
		Short: "Write --data hex bytes at --addr.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := cmd.Flags().GetString("data")
			if err != nil {
				return err
			}
			data, err := parseHexData(text)
			if err != nil {
				return err
			}

			return withMemClient(cmd, func(ctx context.Context, c *memtcp.Client, addr uint64) error {
				return memory.WriteBytes(ctx, c, addr, data)
			})
		},
	}
	write.Flags().String("data", "", "bytes to write as hex, in address order")
	_ = write.MarkFlagRequired("data")

	cmd.AddCommand(read, write)

	return cmd
}

// withMemClient opens a memory bridge client for the duration of fn.
func withMemClient(cmd *cobra.Command, fn func(ctx context.Context, c *memtcp.Client, addr uint64) error) error {
	server, err := cmd.Flags().GetString("server")
	if err != nil {
		return err
	}
	addrText, err := cmd.Flags().GetString("addr")
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	addr, err := strconv.ParseUint(addrText, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid address %q", addrText)
	}
	host, port, err := splitHostPort(server)
	if err != nil {
		return err
	}

	cfg, err := memtcp.NewConnectionConfig(host, port,
		memtcp.WithReplyTimeout(timeout),
		memtcp.WithLogger(logger.GetLogger()),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	client, err := memtcp.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	if err := client.Open(); err != nil {
		return err
	}
	defer client.Close()

	return fn(ctx, client, addr)
}
