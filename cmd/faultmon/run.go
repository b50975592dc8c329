package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/thejerf/suture/v4"

	"faultguard/common"
	"faultguard/fault"
	"faultguard/safety"
)

var runPeriod time.Duration

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the supervisor on a wall-clock tick",
	Long: `Run the supervisor until interrupted.

A supervision tree keeps two services alive: the sampler, which ticks the
core on a wall-clock period, and the injector, which reads commands from
stdin:

  set <source>      assert the raw signal and latch the flag
  clear <source>    deassert the raw signal
  recover <source>  request recovery for the source
  status            print the current status line

Sources are power, clock and memory.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().DurationVar(&runPeriod, "period", 0, "Tick period (overrides the configuration)")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	if runPeriod > 0 {
		params.TickPeriod = runPeriod
	}
	logger := newLogger(cfg)

	signalsIn := fault.NewSignals()
	sup, err := safety.NewSupervisor(params, signalsIn, logger)
	if err != nil {
		return err
	}
	if err := sup.Start(); err != nil {
		return err
	}

	root := suture.New("faultmon", suture.Spec{
		EventHook: func(ev suture.Event) {
			logger.Log(common.SeverityWarning, ev.String())
		},
	})
	root.Add(&samplerService{sup: sup, period: params.TickPeriod, log: logger})
	root.Add(&injectorService{sup: sup, signals: signalsIn, in: os.Stdin, log: logger})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Logf(common.SeverityInfo, "ticking every %s, commands on stdin", params.TickPeriod)
	if err := root.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// samplerService ticks the supervisor core on a wall-clock period and
// logs state changes.
type samplerService struct {
	sup    *safety.Supervisor
	period time.Duration
	log    common.Logger
}

func (s *samplerService) Serve(ctx context.Context) error {
	tick := time.NewTicker(s.period)
	defer tick.Stop()
	last := safety.StateNormal
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if err := s.sup.Tick(); err != nil {
				s.log.Error(err)
			}
			st := s.sup.Status()
			if st.State != last {
				s.log.Logf(common.SeverityInfo, "state %s, aggregate %s, power %s",
					st.State, st.Active, st.PowerMode)
				last = st.State
			}
		}
	}
}

// injectorService drives the event-context API from stdin commands.
type injectorService struct {
	sup     *safety.Supervisor
	signals *fault.Signals
	in      io.Reader
	log     common.Logger
}

func (s *injectorService) Serve(ctx context.Context) error {
	lines := make(chan string)
	scan := bufio.NewScanner(s.in)
	// The read blocks until the next line; the goroutine ends with the
	// process if the context is canceled mid-read.
	go func() {
		defer close(lines)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return suture.ErrDoNotRestart
			}
			s.dispatch(strings.Fields(line))
		}
	}
}

func (s *injectorService) dispatch(fields []string) {
	if len(fields) == 0 {
		return
	}
	if fields[0] == "status" {
		st := s.sup.Status()
		fmt.Printf("state=%s aggregate=%s power=%s faults=%d ticks=%d\n",
			st.State, st.Active, st.PowerMode, st.FaultCount, st.Ticks)
		return
	}
	if len(fields) != 2 {
		s.log.Warning("usage: set|clear|recover <source>, or status")
		return
	}
	src, err := fault.ParseSource(fields[1])
	if err != nil {
		s.log.Error(err)
		return
	}
	switch fields[0] {
	case "set":
		s.signals.Assert(src)
		s.sup.Store().Set(src)
	case "clear":
		s.signals.Deassert(src)
	case "recover":
		outcome, err := s.sup.RequestRecovery(src)
		if err != nil {
			s.log.Error(err)
			return
		}
		s.log.Logf(common.SeverityInfo, "recovery for %s: %s", src, outcome)
	default:
		s.log.Logf(common.SeverityWarning, "unknown command %q", fields[0])
	}
}
