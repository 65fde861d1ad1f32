package encoder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"
)

func TestDumpWav(t *testing.T) {
	d, err := NewDumper(t.TempDir(), "wav")
	if err != nil {
		t.Fatal(err)
	}
	samples := make([]float32, 5000)
	for i := range samples {
		samples[i] = 0.25
	}
	path, err := d.Dump("abc", samples)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if !strings.HasSuffix(path, "_abc.wav") {
		t.Errorf("path = %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != SampleRate || dec.NumChans != Channels || dec.BitDepth != BitsPerSample {
		t.Errorf("header = %d Hz %d ch %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), len(samples))
	}
	if buf.Data[0] != 8191 {
		t.Errorf("first sample = %d, want 8191", buf.Data[0])
	}
}

func TestDumpFlac(t *testing.T) {
	dir := t.TempDir()
	d, err := NewDumper(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	path, err := d.Dump("s1", make([]float32, 100))
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if filepath.Ext(path) != ".flac" {
		t.Errorf("path = %s, want .flac", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data[:4]) != "fLaC" {
		t.Error("dump is not FLAC")
	}
}

func TestNewDumperRejectsFormat(t *testing.T) {
	if _, err := NewDumper(t.TempDir(), "mp3"); err == nil {
		t.Error("expected error for mp3")
	}
}
