//go:build linux

// hspctl rings and checks HSP doorbells.
//
//	hspctl [flags] ring|check|poll doorbell...
//
// Doorbells are named ccplex-pm, ccplex-tz-nonsecure, ccplex-tz-secure,
// bpmp, spe, sce and ape.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/c35s/hsp/hsp"
	"github.com/c35s/hsp/hsp/hspsim"
	"github.com/c35s/hsp/pmem"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var errUsage = errors.New("usage: hspctl [flags] ring|check|poll doorbell...")

func main() {

	var (
		memPath  = flag.String("mem", "/dev/mem", "map the HSP from this memory device")
		base     = flag.Uint64("base", hsp.Region.Base, "set the HSP's physical base address")
		size     = flag.Int("size", hsp.Region.Length, "set the HSP's register window size")
		interval = flag.Duration("interval", 10*time.Millisecond, "set the poll period")
		sim      = flag.Bool("sim", false, "use a simulated HSP instead of the memory device")
		verbose  = flag.Bool("v", false, "log debug messages")
	)

	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	var m pmem.Mapper = &pmem.DevMem{Path: *memPath}
	if *sim {
		dev, err := hspsim.New(hsp.Dimensions{NumSM: 8, NumSS: 2, NumAS: 2}, *size)
		if err != nil {
			fatal(err)
		}

		m = dev
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := command{
		out:      &printer{w: os.Stdout, tty: term.IsTerminal(int(os.Stdout.Fd()))},
		interval: *interval,
	}

	if err := cmd.run(ctx, m, hsp.Controller{
		Region: pmem.Region{Type: pmem.TypeDevice, Base: *base, Length: *size},
		Logger: log,
	}, flag.Args()); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, err)
			flag.PrintDefaults()
			os.Exit(2)
		}

		fatal(err)
	}
}

func fatal(err error) {
	slog.Error("hspctl failed", "err", err)
	os.Exit(1)
}

type command struct {
	out      *printer
	interval time.Duration
}

func (cmd *command) run(ctx context.Context, m pmem.Mapper, cfg hsp.Controller, args []string) (err error) {
	if len(args) < 2 {
		return errUsage
	}

	ids := make([]hsp.Doorbell, len(args)-1)
	for i, name := range args[1:] {
		if ids[i], err = hsp.ParseDoorbell(name); err != nil {
			return err
		}
	}

	var do func(context.Context, *hsp.Controller, []hsp.Doorbell) error
	switch args[0] {
	case "ring":
		do = cmd.ring

	case "check":
		do = cmd.check

	case "poll":
		do = cmd.poll

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}

	c, err := hsp.New(m, cfg)
	if err != nil {
		return err
	}

	defer func() {
		if derr := c.Destroy(m); err == nil {
			err = derr
		}
	}()

	return do(ctx, c, ids)
}

func (cmd *command) ring(_ context.Context, c *hsp.Controller, ids []hsp.Doorbell) error {
	for _, id := range ids {
		if err := c.Ring(id); err != nil {
			return err
		}

		slog.Debug("rang doorbell", "doorbell", id)
	}

	return nil
}

func (cmd *command) check(_ context.Context, c *hsp.Controller, ids []hsp.Doorbell) error {
	for _, id := range ids {
		pending, err := c.Check(id)
		if err != nil {
			return err
		}

		cmd.out.print(id, pending)
	}

	return nil
}

// poll checks each doorbell from its own goroutine until it's rung.
// A doorbell named twice is polled once.
func (cmd *command) poll(ctx context.Context, c *hsp.Controller, ids []hsp.Doorbell) error {
	g, ctx := errgroup.WithContext(ctx)

	seen := make(map[hsp.Doorbell]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}

		seen[id] = true

		id := id
		g.Go(func() error {
			t := time.NewTicker(cmd.interval)
			defer t.Stop()

			for {
				pending, err := c.Check(id)
				if err != nil {
					return err
				}

				if pending {
					cmd.out.print(id, true)
					return nil
				}

				select {
				case <-ctx.Done():
					return ctx.Err()

				case <-t.C:
				}
			}
		})
	}

	return g.Wait()
}

// printer writes check results. A terminal gets sentences; anything else
// gets "name\t0|1" lines.
type printer struct {
	mu  sync.Mutex
	w   io.Writer
	tty bool
}

func (p *printer) print(id hsp.Doorbell, pending bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.tty && pending:
		fmt.Fprintf(p.w, "doorbell %v: notification received\n", id)

	case p.tty:
		fmt.Fprintf(p.w, "doorbell %v: nothing pending\n", id)

	case pending:
		fmt.Fprintf(p.w, "%v\t1\n", id)

	default:
		fmt.Fprintf(p.w, "%v\t0\n", id)
	}
}
