package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"murmur/audio"
	"murmur/beep"
	"murmur/clipboard"
	"murmur/config"
	"murmur/doctor"
	"murmur/encoder"
	"murmur/history"
	"murmur/hotkey"
	"murmur/log"
	"murmur/notify"
	"murmur/recorder"
	"murmur/shutdown"
	"murmur/stt"
	"murmur/transcriber"
)

var version = "dev"

type options struct {
	cfg       config.Config
	tui       bool
	testWAV   string
	longPress time.Duration
}

func run() {
	configFlag := flag.String("config", "", "config file (default: "+config.DefaultPath()+")")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	devicesFlag := flag.Bool("devices", false, "List capture devices and exit")
	setupFlag := flag.Bool("setup", false, "Select microphone device interactively")
	historyFlag := flag.Int("history", 0, "Print the last N transcripts and exit")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI (false reads toggle/start/stop/quit from stdin)")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven, audio replayed from a WAV file argument)")
	longPressFlag := flag.Duration("longpress", 350*time.Millisecond, "Hold the hotkey longer than this to record until release")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("murmur %s\n", version)
		os.Exit(0)
	}

	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *deviceFlag != "" {
		cfg.Audio.Device = *deviceFlag
	}

	if *historyFlag > 0 {
		os.Exit(printHistory(cfg.History.Path, *historyFlag))
	}

	if *devicesFlag || *setupFlag {
		actx, err := audio.NewContext()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
			os.Exit(1)
		}
		if *devicesFlag {
			err = audio.PrintDevices(actx)
			actx.Close()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			os.Exit(0)
		}
		dev, err := audio.SelectDevice(actx)
		actx.Close()
		switch {
		case errors.Is(err, audio.ErrCancelled):
			os.Exit(0)
		case err != nil:
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
		case dev != nil:
			cfg.Audio.Device = dev.Name
		}
	}

	if *doctorFlag {
		os.Exit(runDoctor(cfg))
	}

	o := options{cfg: cfg, tui: *tuiFlag, longPress: *longPressFlag}
	if *testFlag {
		if flag.NArg() == 0 {
			fmt.Fprintln(os.Stderr, "Usage: murmur -test <wav-file>")
			os.Exit(1)
		}
		o.testWAV = flag.Arg(0)
		o.tui = false
	}
	os.Exit(dictate(o))
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func printHistory(path string, n int) int {
	if path == "" {
		fmt.Fprintln(os.Stderr, "Error: history is disabled (set history.path in the config)")
		return 1
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := history.Open(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	entries, err := store.Recent(ctx, n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, e := range entries {
		fmt.Printf("%s  %5.1fs  %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.AudioSeconds, e.Text)
	}
	return 0
}

func runDoctor(cfg config.Config) int {
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	actx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("Error initializing audio: %v\n", err)
		return 1
	}
	defer actx.Close()

	mgr := transcriber.NewManager(cfg.TranscriberConfig(), transcriber.NewEngine())
	defer mgr.Close()

	return doctor.Run(doctor.Env{
		Audio:    actx,
		Model:    mgr,
		Hotkey:   hotkey.New(),
		Recorder: cfg.RecorderOptions(),
	})
}

// deviceLine describes where audio will come from, as the recorder will
// negotiate it.
func deviceLine(actx audio.Context, name string) string {
	dev, err := audio.FindDevice(actx, name)
	if err != nil {
		return err.Error()
	}
	label := "system default"
	if dev != nil {
		label = dev.Name
		if audio.IsBluetooth(dev.Name) {
			label += " (BT!)"
		}
	}
	ranges, def, err := actx.Formats(dev)
	if err != nil {
		return label
	}
	return label + " " + audio.Negotiate(ranges, def).String()
}

// dictate runs the dictation service until the user quits or a signal
// arrives, and returns the process exit code.
func dictate(o options) int {
	cfg := o.cfg

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.Infof("murmur %s starting", version)

	var actx audio.Context
	var fake *audio.FakeContext
	if o.testWAV != "" {
		beep.Disable()
		f, err := audio.NewFakeContextFromWAV(o.testWAV, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
			return 1
		}
		fake, actx = f, f
	} else {
		c, err := audio.NewContext()
		if err != nil {
			log.Errorf("audio context init error: %v", err)
			fmt.Fprintf(os.Stderr, "Error initializing audio context: %v\n", err)
			return 1
		}
		actx = c
	}
	defer actx.Close()

	ctx, stop := shutdown.Context(context.Background())
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var disp display = consoleDisplay{out: os.Stdout}
	var svc *stt.Service
	toggle := func() error { return svc.Toggle() }
	var program *tea.Program
	if o.tui {
		program = NewTUIProgram(toggle)
		disp = program
	}

	tcfg := cfg.TranscriberConfig()
	lastPct := int64(-1)
	tcfg.Progress = func(read, total int64) {
		if total <= 0 {
			return
		}
		if pct := read * 100 / total; pct != lastPct {
			lastPct = pct
			disp.Send(ModelLineMsg{Text: fmt.Sprintf("downloading model %d%%", pct)})
		}
	}
	mgr := transcriber.NewManager(tcfg, transcriber.NewEngine())
	defer mgr.Close()

	clip := clipboard.New()
	if !clipboard.Available() {
		log.Warn("no clipboard utility found, transcripts will only be logged")
	}

	deps := stt.Deps{
		Transcriber: mgr,
		Clipboard:   clip,
		Notifier: notify.Multi{
			notify.NewDesktop(notify.DesktopOptions{Notifications: cfg.Notify.Enabled && o.testWAV == "", Sounds: cfg.Notify.Sounds}),
			displaySink(disp),
		},
		NewRecorder: func(sessionID string, events chan<- recorder.Event) (stt.Recorder, error) {
			opts := cfg.RecorderOptions()
			opts.SessionID = sessionID
			return recorder.New(actx, events, opts)
		},
		EngineName: mgr.EngineName(),
	}
	if cfg.History.Path != "" {
		store, err := history.Open(ctx, cfg.History.Path)
		if err != nil {
			log.Warnf("history disabled: %v", err)
		} else {
			defer store.Close()
			deps.History = store
		}
	}
	if cfg.Dump.Dir != "" {
		dumper, err := encoder.NewDumper(cfg.Dump.Dir, cfg.Dump.Format)
		if err != nil {
			log.Warnf("session dumps disabled: %v", err)
		} else {
			deps.Dumper = dumper
		}
	}
	svc = stt.New(deps)

	g, gctx := errgroup.WithContext(ctx)
	modelReady := make(chan struct{})

	// The program must be running before anything is sent to it.
	if program != nil {
		g.Go(func() error {
			defer cancel()
			if _, err := program.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			program.Quit()
			return nil
		})
	}

	g.Go(func() error {
		disp.Send(ModelLineMsg{Text: "loading " + mgr.ModelPath()})
		if err := mgr.EnsureModel(gctx); err != nil {
			log.Errorf("model: %v", err)
			disp.Send(ModelLineMsg{Text: "model unavailable: " + err.Error()})
			return nil
		}
		if err := mgr.Load(); err != nil {
			log.Errorf("model: %v", err)
			disp.Send(ModelLineMsg{Text: "model failed to load: " + err.Error()})
			return nil
		}
		close(modelReady)
		disp.Send(ModelLineMsg{Text: fmt.Sprintf("%s %s (%s)", mgr.EngineName(), filepath.Base(mgr.ModelPath()), cfg.Model.Language)})
		return nil
	})

	g.Go(func() error {
		states, unsub := svc.Subscribe()
		defer unsub()
		for {
			select {
			case st, ok := <-states:
				if !ok {
					return nil
				}
				disp.Send(StateMsg{State: st, At: time.Now()})
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		clip.Watch(gctx, 500*time.Millisecond, func(text string) {
			log.Infof("clipboard changed by another application (%d chars)", len(text))
			disp.Send(ClipboardMsg{Chars: len(text)})
		})
		return nil
	})

	disp.Send(DeviceLineMsg{Text: deviceLine(actx, cfg.Audio.Device)})

	if o.testWAV == "" {
		go beep.Init()
		hk := hotkey.New()
		if err := hk.Register(); err != nil {
			log.Errorf("hotkey register error: %v", err)
			disp.Send(ErrorMsg{Text: fmt.Sprintf("hotkey unavailable: %v", err)})
		} else {
			g.Go(func() error {
				defer hk.Unregister()
				driveHotkey(gctx, hotkey.NewHybrid(hk, o.longPress, func() bool {
					return svc.State().Status == stt.Recording
				}), svc)
				return nil
			})
		}
	}

	if program == nil {
		hooks := scriptHooks{ModelReady: modelReady, QuitOnEOF: fake != nil}
		if fake != nil {
			hooks.AudioDone = func() <-chan struct{} {
				caps := fake.Captures()
				if len(caps) == 0 {
					return nil
				}
				return caps[len(caps)-1].AudioDone()
			}
		}
		go func() {
			defer cancel()
			if err := runScript(gctx, os.Stdin, os.Stdout, svc, hooks); err != nil {
				log.Errorf("script: %v", err)
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}()
	}

	err := g.Wait()
	svc.Close()
	log.Info("murmur stopped")
	if err != nil {
		return 1
	}
	return 0
}

// driveHotkey maps hotkey presses onto the service until ctx is done.
func driveHotkey(ctx context.Context, hy *hotkey.Hybrid, svc *stt.Service) {
	for {
		select {
		case <-hy.Start():
			if err := svc.Start(); err != nil && !errors.Is(err, stt.ErrAlreadyRecording) {
				log.Warnf("hotkey start: %v", err)
			}
		case <-hy.StopChan():
			svc.Stop()
		case <-ctx.Done():
			return
		}
	}
}
