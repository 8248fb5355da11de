package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/pkg/errors"

	"github.com/aryanA101a/svm-go/console"
	"github.com/aryanA101a/svm-go/memmap"
	"github.com/aryanA101a/svm-go/vm"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "svm: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, images, step, err := parseArgs(args)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logOut, closeLog, err := openLog(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := log.New(logOut, "", log.Lmicroseconds)

	k, err := vm.NewKernel(cfg.Config, images, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var stepper *console.Stepper
	var keyboard *console.Keyboard
	if step {
		if stepper, err = console.OpenStepper(); err != nil {
			return err
		}
		defer stepper.Close()
		fmt.Println("single step: space/enter step, c continue, t timer, i interrupt, q quit")
	} else {
		keyboard = console.NewKeyboard(os.Stdin)
		if keyboard.IsTerminal() {
			if err := keyboard.EnableRawMode(); err != nil {
				return err
			}
			defer keyboard.DisableRawMode()
			keyboard.Poll(ctx)
		}
	}

	err = drive(ctx, k, cfg, keyboard, stepper)

	board := k.Board()
	fmt.Printf("HALT after %d cycles, %d process(es) left, %d free frames\n",
		board.Cycles(), len(k.Processes()), board.Memory.FreeFrames())

	if cfg.MemMap != "" {
		if merr := memmap.SavePNG(cfg.MemMap, k.FrameOwners(), memmap.DefaultOptions()); merr != nil && err == nil {
			err = merr
		}
	}
	return err
}

// drive is the outer loop: one cycle per iteration, a timer interrupt every
// TimerInterval cycles, operator commands in between.
func drive(ctx context.Context, k *vm.Kernel, cfg config, keyboard *console.Keyboard, stepper *console.Stepper) error {
	board := k.Board()
	stepping := stepper != nil
	for k.Running() {
		if ctx.Err() != nil {
			return nil
		}
		if cfg.MaxCycles > 0 && board.Cycles() >= cfg.MaxCycles {
			fmt.Printf("cycle limit %d reached\n", cfg.MaxCycles)
			return nil
		}

		cmd := console.CmdNone
		if stepping {
			var err error
			if cmd, err = stepper.Next(); err != nil {
				return err
			}
		} else if keyboard != nil {
			cmd = keyboard.Command()
		}
		switch cmd {
		case console.CmdQuit:
			return nil
		case console.CmdTimer:
			k.Tick()
			continue
		case console.CmdInterrupt:
			k.Interrupt()
			continue
		case console.CmdContinue:
			stepping = false
		}

		if err := k.Step(); err != nil {
			return errors.Wrap(err, "cycle")
		}
		if cfg.TimerInterval > 0 && board.Cycles()%uint64(cfg.TimerInterval) == 0 {
			k.Tick()
		}
	}
	return k.Err()
}

func parseArgs(args []string) (config, []string, bool, error) {
	cfg := defaultConfig()
	fs := flag.NewFlagSet("svm", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "svm [flags] image-file1 ...")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "JSON configuration file")
	scheduler := fs.String("scheduler", "", "fcfs, sjf, rr or priority")
	quantum := fs.Int("quantum", 0, "timer ticks before preemption")
	isa := fs.String("isa", "", "opcode table: disjoint or legacy")
	timer := fs.Int("timer", 0, "cycles between timer interrupts")
	maxCycles := fs.Uint64("max-cycles", 0, "stop after this many cycles")
	step := fs.Bool("step", false, "single-step interactively")
	logFile := fs.String("log", "", "append the kernel log to this file")
	consoleDev := fs.String("console", "", "write the kernel log to this terminal device")
	memMap := fs.String("memmap", "", "write a PNG frame map here when the run ends")
	if err := fs.Parse(args); err != nil {
		return cfg, nil, false, err
	}

	if *configPath != "" {
		if err := loadConfig(*configPath, &cfg); err != nil {
			return cfg, nil, false, err
		}
	}

	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "scheduler":
			cfg.Scheduler, err = vm.ParseScheduler(*scheduler)
		case "quantum":
			cfg.Quantum = *quantum
		case "isa":
			cfg.ISA, err = vm.ParseISA(*isa)
		case "timer":
			cfg.TimerInterval = *timer
		case "max-cycles":
			cfg.MaxCycles = *maxCycles
		case "log":
			cfg.LogFile = *logFile
		case "console":
			cfg.Console = *consoleDev
		case "memmap":
			cfg.MemMap = *memMap
		}
	})
	if err != nil {
		return cfg, nil, false, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, nil, false, err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return cfg, nil, false, errors.New("no image files given")
	}
	return cfg, fs.Args(), *step, nil
}

func openLog(cfg config) (io.Writer, func(), error) {
	switch {
	case cfg.Console != "":
		w, err := console.OpenLogDevice(cfg.Console)
		if err != nil {
			return nil, nil, err
		}
		return w, func() { w.Close() }, nil
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open log file")
		}
		return f, func() { f.Close() }, nil
	}
	return os.Stderr, func() {}, nil
}
