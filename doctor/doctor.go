package doctor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"murmur/audio"
	"murmur/clipboard"
	"murmur/hotkey"
	"murmur/log"
	"murmur/recorder"
	"murmur/shutdown"
	"murmur/transcriber"
)

// Env is what the checks run against. Nil fields skip their checks.
type Env struct {
	Audio     audio.Context
	Model     *transcriber.Manager
	Clipboard *clipboard.Clipboard
	Hotkey    hotkey.Hotkey
	Recorder  recorder.Options

	In  io.Reader
	Out io.Writer

	// RecordFor is how long the microphone check listens.
	RecordFor time.Duration
}

type check struct {
	name string
	run  func(ctx context.Context, d *doctor) bool
}

type doctor struct {
	env Env
	in  *bufio.Reader
	out io.Writer
}

// Run executes the diagnostic checks in order and returns an exit code
// (0 all passed, 1 any failed). Checks that depend on a failed one are
// skipped.
func Run(env Env) int {
	if env.In == nil {
		env.In = os.Stdin
	}
	if env.Out == nil {
		env.Out = os.Stdout
	}
	if env.RecordFor <= 0 {
		env.RecordFor = 3 * time.Second
	}
	d := &doctor{env: env, in: bufio.NewReader(env.In), out: env.Out}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	checks := []check{
		{"Log directory", checkLogDir},
		{"Hotkey detection", checkHotkey},
		{"Audio devices", checkAudio},
		{"Speech model", checkModel},
		{"Microphone and transcription", checkMicAndTranscription},
		{"Clipboard", checkClipboard},
	}

	d.printf("murmur doctor - interactive system diagnostics\n")
	d.printf("==============================================\n")

	allPass := true
	for i, c := range checks {
		d.printf("\n[%d/%d] %s\n", i+1, len(checks), c.name)
		if ctx.Err() != nil {
			d.printf("  SKIP: interrupted\n")
			allPass = false
			continue
		}
		if !allPass && c.name == "Microphone and transcription" {
			d.printf("  SKIP: an earlier check failed\n")
			continue
		}
		if !c.run(ctx, d) {
			allPass = false
		}
	}

	d.printf("\n")
	if allPass {
		d.printf("All checks passed!\n")
		return 0
	}
	d.printf("Some checks failed. See details above.\n")
	return 1
}

func (d *doctor) printf(format string, args ...any) {
	fmt.Fprintf(d.out, format, args...)
}

func (d *doctor) pass(format string, args ...any) bool {
	d.printf("  PASS: "+format+"\n", args...)
	return true
}

func (d *doctor) fail(format string, args ...any) bool {
	d.printf("  FAIL: "+format+"\n", args...)
	return false
}

func (d *doctor) skip(reason string) bool {
	d.printf("  SKIP: %s\n", reason)
	return true
}

func (d *doctor) confirm(question string) bool {
	d.printf("%s [y/n]: ", question)
	answer, _ := d.in.ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}

func checkLogDir(_ context.Context, d *doctor) bool {
	dir := log.Dir()
	if dir == "" {
		return d.skip("logging not initialized")
	}
	if err := log.EnsureDir(); err != nil {
		return d.fail("cannot create %s: %v", dir, err)
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return d.fail("%s is not writable: %v", dir, err)
	}
	f.Close()
	os.Remove(f.Name())
	return d.pass("writing logs to %s", dir)
}

func checkHotkey(ctx context.Context, d *doctor) bool {
	hk := d.env.Hotkey
	if hk == nil {
		return d.skip("no hotkey backend")
	}
	d.printf("Press %s...\n", hotkey.Binding)

	if err := hk.Register(); err != nil {
		return d.fail("could not register hotkey: %v", err)
	}
	defer hk.Unregister()

	select {
	case <-hk.Keydown():
		select {
		case <-hk.Keyup():
		case <-time.After(5 * time.Second):
		}
		resetTerminal()
		return d.pass("hotkey detected")
	case <-time.After(10 * time.Second):
		return d.fail("timeout waiting for hotkey")
	case <-ctx.Done():
		return d.fail("interrupted")
	}
}

func checkAudio(_ context.Context, d *doctor) bool {
	actx := d.env.Audio
	if actx == nil {
		return d.fail("no audio backend")
	}
	devices, err := actx.Devices()
	if err != nil {
		return d.fail("cannot list devices: %v", err)
	}
	if len(devices) == 0 {
		return d.fail("no capture devices found")
	}

	device, err := audio.FindDevice(actx, d.env.Recorder.Device)
	if err != nil {
		return d.fail("%v", err)
	}
	name := "system default"
	if device != nil {
		name = device.Name
	}
	ranges, def, err := actx.Formats(device)
	if err != nil {
		return d.fail("cannot query formats of %s: %v", name, err)
	}
	f := audio.Negotiate(ranges, def)
	if f.SampleRate != audio.TargetSampleRate {
		d.printf("  note: %s has no %d Hz mode, audio will be resampled from %d Hz\n",
			name, audio.TargetSampleRate, f.SampleRate)
	}
	if device != nil && audio.IsBluetooth(device.Name) {
		d.printf("  note: Bluetooth input may switch your headset to a low quality profile\n")
	}
	return d.pass("%d device(s), capturing from %s as %s", len(devices), name, f)
}

func checkModel(ctx context.Context, d *doctor) bool {
	m := d.env.Model
	if m == nil {
		return d.fail("no model manager")
	}
	if !m.ModelPresent() {
		d.printf("  downloading model to %s...\n", m.ModelPath())
	}
	if err := m.EnsureModel(ctx); err != nil {
		return d.fail("%v", err)
	}
	start := time.Now()
	if err := m.Load(); err != nil {
		return d.fail("%v", err)
	}
	return d.pass("%s engine loaded %s in %v", m.EngineName(), m.ModelPath(), time.Since(start).Round(time.Millisecond))
}

func checkMicAndTranscription(ctx context.Context, d *doctor) bool {
	m := d.env.Model
	if d.env.Audio == nil || m == nil || !m.IsLoaded() {
		return d.skip("needs audio and a loaded model")
	}

	d.printf("Press Enter and speak for %v...", d.env.RecordFor)
	d.in.ReadString('\n')

	samples, err := record(ctx, d.env.Audio, d.env.Recorder, d.env.RecordFor)
	if err != nil {
		return d.fail("recording error: %v", err)
	}
	if len(samples) == 0 {
		return d.fail("nothing above the silence threshold was captured")
	}
	d.printf("  Captured %.1fs of speech, transcribing...\n", float64(len(samples))/audio.TargetSampleRate)

	res, err := m.Transcribe(samples)
	if err != nil {
		return d.fail("transcription error: %v", err)
	}
	text := res.Text
	if text == "" {
		text = "(no speech detected)"
	}
	d.printf("\n  Transcribed text: %s\n\n", text)

	if d.confirm("Is this correct?") {
		return d.pass("transcription verified by user")
	}
	return d.fail("transcription not confirmed")
}

// record runs one recorder session for at most d and returns its
// finalized samples.
func record(ctx context.Context, actx audio.Context, opts recorder.Options, d time.Duration) ([]float32, error) {
	events := make(chan recorder.Event, 1)
	opts.SessionID = "doctor"
	rec, err := recorder.New(actx, events, opts)
	if err != nil {
		return nil, err
	}
	rec.Start()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case ev, ok := <-events:
		if !ok {
			return nil, nil
		}
		return ev.Samples, nil
	case <-timer.C:
		rec.Stop()
	case <-ctx.Done():
		rec.Shutdown()
		return nil, ctx.Err()
	}
	ev := <-events
	return ev.Samples, nil
}

func checkClipboard(_ context.Context, d *doctor) bool {
	c := d.env.Clipboard
	if c == nil {
		if !clipboard.Available() {
			return d.fail("no clipboard utility found (install xclip, xsel or wl-clipboard)")
		}
		c = clipboard.New()
	}

	testStr := fmt.Sprintf("murmur-doctor-%d", time.Now().UnixNano())

	type cbResult struct {
		readback string
		err      error
		phase    string
	}
	ch := make(chan cbResult, 1)
	go func() {
		if !c.SetContentSilent(testStr) {
			ch <- cbResult{err: fmt.Errorf("see diagnostics log"), phase: "write"}
			return
		}
		got, err := c.Read()
		if err != nil {
			ch <- cbResult{err: err, phase: "read"}
			return
		}
		ch <- cbResult{readback: got}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return d.fail("clipboard %s failed: %v", res.phase, res.err)
		}
		if res.readback != testStr {
			return d.fail("clipboard mismatch: wrote %q, got %q", testStr, res.readback)
		}
		return d.pass("clipboard write/read verified")
	case <-time.After(3 * time.Second):
		return d.fail("clipboard timed out (clipboard tool hung, compositor not accessible?)")
	}
}
