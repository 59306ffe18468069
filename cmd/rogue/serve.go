package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/arloliu/go-rogue/logger"
	"github.com/arloliu/go-rogue/memory"
	"github.com/arloliu/go-rogue/memtcp"
	"github.com/arloliu/go-rogue/pvbridge"
	"github.com/arloliu/go-rogue/rpc"
	"github.com/arloliu/go-rogue/tree"
)

type serveOptions struct {
	minWidth   uint32
	maxSize    uint32
	memAddr    string
	rpcAddr    string
	pvBase     string
	pvBuffer   int
	poll       time.Duration
	valuesFile string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory emulator, the demo tree and its bridges.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, opts)
		},
	}

	flags := cmd.Flags()
	flags.Uint32Var(&opts.minWidth, "min-width", memory.DefaultMinWidth, "address alignment of the emulator in bytes, at most 4 for the demo tree")
	flags.Uint32Var(&opts.maxSize, "max-size", math.MaxUint32, "largest transaction size of the emulator in bytes")
	flags.StringVar(&opts.memAddr, "mem-addr", "127.0.0.1:8300", "memory bridge listen address, empty to disable")
	flags.StringVar(&opts.rpcAddr, "rpc-addr", envOr("ROGUE_ADDR", "127.0.0.1:8301"), "rpc listen address, empty to disable")
	flags.StringVar(&opts.pvBase, "pv-base", "rogue", "pv name prefix, empty to disable the pv bridge")
	flags.IntVar(&opts.pvBuffer, "pv-write-buffer", 0, "preallocated pv write queue size, 0 for an unbounded lock-free queue")
	flags.DurationVar(&opts.poll, "poll", time.Second, "tree poll interval, 0 to disable")
	flags.StringVar(&opts.valuesFile, "values", "", "YAML file of tree values applied at start")

	return cmd
}

// server holds the running parts of "rogue serve".
type server struct {
	emu  *memory.Emulator
	root *tree.Root
	mem  *memtcp.Server
	rpc  *rpc.Server
	pv   *pvbridge.Server
}

func startServer(ctx context.Context, opts *serveOptions) (*server, error) {
	l := logger.GetLogger()
	s := &server{}

	var err error
	s.emu, err = memory.NewEmulator(memory.WithMinWidth(opts.minWidth), memory.WithMaxSize(opts.maxSize), memory.WithLogger(l))
	if err != nil {
		return nil, err
	}
	if err := presetDemoMemory(ctx, s.emu); err != nil {
		return nil, err
	}

	s.root, err = newDemoRoot(s.emu, opts.poll, l)
	if err != nil {
		return nil, err
	}
	if err := s.root.Start(ctx); err != nil {
		return nil, err
	}

	if opts.valuesFile != "" {
		doc, err := os.ReadFile(opts.valuesFile)
		if err != nil {
			s.stop()
			return nil, err
		}
		if err := s.root.LoadValues(ctx, string(doc)); err != nil {
			s.stop()
			return nil, fmt.Errorf("load %s: %w", opts.valuesFile, err)
		}
	}

	if opts.memAddr != "" {
		if err := s.startMem(ctx, opts, l); err != nil {
			s.stop()
			return nil, err
		}
	}

	if opts.rpcAddr != "" {
		s.rpc, err = rpc.NewServer(ctx, s.root, rpc.WithLogger(l))
		if err == nil {
			err = s.rpc.Open(opts.rpcAddr)
		}
		if err != nil {
			s.rpc = nil
			s.stop()

			return nil, err
		}
	}

	if opts.pvBase != "" {
		pvOpts := []pvbridge.Option{pvbridge.WithLogger(l)}
		if opts.pvBuffer > 0 {
			pvOpts = append(pvOpts, pvbridge.WithWriteBuffer(opts.pvBuffer))
		}
		s.pv, err = pvbridge.NewServer(opts.pvBase, s.root, pvOpts...)
		if err == nil {
			err = s.pv.Start(ctx)
		}
		if err != nil {
			s.pv = nil
			s.stop()

			return nil, err
		}
	}

	return s, nil
}

func (s *server) startMem(ctx context.Context, opts *serveOptions, l logger.Logger) error {
	host, port, err := splitHostPort(opts.memAddr)
	if err != nil {
		return err
	}

	maxAccess := min(opts.maxSize, memtcp.DefaultMaxFrameSize-memtcp.HeaderSize)
	cfg, err := memtcp.NewConnectionConfig(host, port,
		memtcp.WithMinAccess(opts.minWidth),
		memtcp.WithMaxAccess(maxAccess),
		memtcp.WithLogger(l),
	)
	if err != nil {
		return err
	}

	s.mem, err = memtcp.NewServer(ctx, s.emu, cfg)
	if err != nil {
		return err
	}
	if err := s.mem.Open(); err != nil {
		s.mem = nil
		return err
	}

	return nil
}

// stop shuts the parts down in reverse start order.
func (s *server) stop() {
	if s.pv != nil {
		s.pv.Stop()
	}
	if s.rpc != nil {
		_ = s.rpc.Close()
	}
	if s.mem != nil {
		_ = s.mem.Close()
	}
	s.root.Stop()
}

func runServe(ctx context.Context, opts *serveOptions) error {
	s, err := startServer(ctx, opts)
	if err != nil {
		return err
	}

	logger.Info("rogue serving", "mem_addr", opts.memAddr, "rpc_addr", opts.rpcAddr, "pv_base", opts.pvBase)
	<-ctx.Done()
	logger.Info("rogue shutting down")
	s.stop()

	return nil
}
