package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"murmur/log"
	"murmur/stt"
)

// controller is the part of stt.Service a script drives.
type controller interface {
	Toggle() error
	Start() error
	Stop()
	State() stt.State
	Subscribe() (<-chan stt.State, func())
}

type scriptHooks struct {
	// AudioDone is closed once a fake capture has replayed its file.
	AudioDone func() <-chan struct{}
	// ModelReady is closed once the model has loaded.
	ModelReady <-chan struct{}
	// QuitOnEOF ends the script at end of input; otherwise it waits for ctx.
	QuitOnEOF bool
}

const waitTimeout = 2 * time.Minute

// runScript reads one command per line from in and drives c:
//
//	toggle | start | stop        control the recording
//	wait                         block until the last started session ends
//	wait_audio_done              block until the fake capture replayed its file
//	wait_model                   block until the model is loaded
//	sleep <ms>                   pause
//	quit                         return
//
// Commands are case-insensitive. It returns when quit is read, input ends
// (with QuitOnEOF) or ctx is done.
func runScript(ctx context.Context, in io.Reader, out io.Writer, c controller, hooks scriptHooks) error {
	states, unsub := c.Subscribe()
	defer unsub()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	pending := false
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				if hooks.QuitOnEOF {
					return nil
				}
				<-ctx.Done()
				return nil
			}
			line = l
		}

		fields := strings.Fields(strings.ToLower(line))
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "toggle":
			wasRecording := c.State().Status == stt.Recording
			if !wasRecording {
				drain(states)
			}
			if err := c.Toggle(); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			} else if !wasRecording {
				pending = true
			}
		case "start":
			drain(states)
			if err := c.Start(); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			} else {
				pending = true
			}
		case "stop":
			c.Stop()
		case "wait":
			if !pending {
				continue
			}
			pending = false
			if err := waitSessionEnd(ctx, states); err != nil {
				return err
			}
		case "wait_audio_done":
			if hooks.AudioDone == nil {
				continue
			}
			if err := waitClosed(ctx, hooks.AudioDone(), "audio replay"); err != nil {
				return err
			}
		case "wait_model":
			if hooks.ModelReady == nil {
				continue
			}
			if err := waitClosed(ctx, hooks.ModelReady, "model load"); err != nil {
				return err
			}
		case "sleep":
			if len(fields) < 2 {
				continue
			}
			if ms, err := strconv.Atoi(fields[1]); err == nil {
				select {
				case <-time.After(time.Duration(ms) * time.Millisecond):
				case <-ctx.Done():
					return nil
				}
			}
		case "quit", "exit":
			return nil
		default:
			log.Warnf("script: unknown command %q", line)
			fmt.Fprintf(out, "unknown command %q\n", fields[0])
		}
	}
}

// drain discards states left over from earlier sessions.
func drain(states <-chan stt.State) {
	for {
		select {
		case _, ok := <-states:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// waitSessionEnd consumes states until a session finishes.
func waitSessionEnd(ctx context.Context, states <-chan stt.State) error {
	timeout := time.After(waitTimeout)
	sawRecording := false
	for {
		select {
		case st, ok := <-states:
			if !ok {
				return nil
			}
			switch st.Status {
			case stt.Recording:
				sawRecording = true
			case stt.Idle, stt.Error:
				if sawRecording {
					return nil
				}
			}
		case <-timeout:
			return fmt.Errorf("wait: session still running after %v", waitTimeout)
		case <-ctx.Done():
			return nil
		}
	}
}

func waitClosed(ctx context.Context, ch <-chan struct{}, what string) error {
	select {
	case <-ch:
		return nil
	case <-time.After(waitTimeout):
		return fmt.Errorf("%s did not finish within %v", what, waitTimeout)
	case <-ctx.Done():
		return nil
	}
}
