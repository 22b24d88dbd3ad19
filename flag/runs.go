package flag

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/alecthomas/kong"
	"github.com/pkg/profile"
	"github.com/rs/zerolog"

	"github.com/bobuhiro11/gomshv/probe"
	"github.com/bobuhiro11/gomshv/vmm"
)

// Globals is bound into every command's Run.
type Globals struct {
	Logger zerolog.Logger
}

func Parse() error {
	c := CLI{}

	programName := "gomshv"
	programDesc := "gomshv binds event channels to interrupt injection and mmio doorbells of a partition"

	ctx := kong.Parse(&c,
		kong.Name(programName),
		kong.Description(programDesc),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}))

	log, err := NewLogger(c.LogLevel)
	if err != nil {
		return err
	}

	if mode := profileMode(c.Profile); mode != nil {
		defer profile.Start(mode, profile.ProfilePath("."), profile.Quiet).Stop()
	}

	return ctx.Run(&Globals{Logger: log})
}

// NewLogger returns a console logger on stderr at level.
func NewLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger(), nil
}

func profileMode(name string) func(*profile.Profile) {
	switch name {
	case "cpu":
		return profile.CPUProfile
	case "mem":
		return profile.MemProfile
	case "block":
		return profile.BlockProfile
	case "mutex":
		return profile.MutexProfile
	}

	return nil
}

func (d *ProbeCMD) Run(g *Globals) error {
	caps, err := probe.Capabilities(d.Dev)
	if err != nil {
		return err
	}

	probe.Print(os.Stdout, caps)

	return nil
}

// Config translates the command line into a vmm.Config.
func (s *DemoCMD) Config(log zerolog.Logger) (vmm.Config, error) {
	base, err := ParseSize(s.MMIOBase, "")
	if err != nil {
		return vmm.Config{}, err
	}

	signals, err := ParseSize(s.Signals, "")
	if err != nil {
		return vmm.Config{}, err
	}

	return vmm.Config{
		Backend:      s.Backend,
		Dev:          s.Dev,
		PartitionID:  s.PartitionID,
		IRQFDs:       s.IRQFDs,
		Resample:     s.Resample,
		Doorbells:    s.Doorbells,
		MMIOBase:     uint64(base),
		Signals:      signals,
		RouteUpdates: s.RouteUpdates,
		Workers:      s.Workers,
		MaxDoorbells: s.MaxDoorbells,
		Logger:       log,
	}, nil
}

func (s *DemoCMD) Run(g *Globals) error {
	c, err := s.Config(g.Logger)
	if err != nil {
		return err
	}

	v := vmm.New(c)

	if err := v.Init(); err != nil {
		return err
	}
	defer v.Close()

	if err := v.Setup(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st, err := v.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("signals=%d writes=%d acks=%d resampled=%d route_updates=%d injections=%d clears=%d\n",
		st.Signals, st.Writes, st.Acks, st.Resampled, st.RouteUpdates, st.Injections, st.Clears)

	return nil
}
