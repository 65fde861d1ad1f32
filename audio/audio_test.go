package audio

import (
	"math"
	"testing"
	"time"
)

func TestNegotiate(t *testing.T) {
	def := Format{SampleFormat: FormatF32, Channels: 2, SampleRate: 48000}
	tests := []struct {
		name   string
		ranges []FormatRange
		want   Format
	}{
		{
			name:   "no ranges",
			ranges: nil,
			want:   def,
		},
		{
			name: "first range with 16k wins",
			ranges: []FormatRange{
				{SampleFormat: FormatS16, Channels: 2, MinSampleRate: 44100, MaxSampleRate: 48000},
				{SampleFormat: FormatS16, Channels: 1, MinSampleRate: 8000, MaxSampleRate: 48000},
				{SampleFormat: FormatF32, Channels: 1, MinSampleRate: 16000, MaxSampleRate: 16000},
			},
			want: Format{SampleFormat: FormatS16, Channels: 1, SampleRate: 16000},
		},
		{
			name: "none contain 16k",
			ranges: []FormatRange{
				{SampleFormat: FormatS16, Channels: 2, MinSampleRate: 44100, MaxSampleRate: 96000},
			},
			want: def,
		},
		{
			name: "bounds inclusive",
			ranges: []FormatRange{
				{SampleFormat: FormatS24, Channels: 4, MinSampleRate: 16000, MaxSampleRate: 16000},
			},
			want: Format{SampleFormat: FormatS24, Channels: 4, SampleRate: 16000},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Negotiate(tt.ranges, def); got != tt.want {
				t.Errorf("Negotiate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMonoCallbackAveragesChannels(t *testing.T) {
	f := Format{SampleFormat: FormatF32, Channels: 2, SampleRate: 48000}
	var got []float32
	cb, err := NewMonoCallback(f, func(s []float32) { got = s })
	if err != nil {
		t.Fatal(err)
	}
	// frames: (0.2, 0.4), (-1, 1), (0.5, 0.5)
	data := Float32Bytes([]float32{0.2, 0.4, -1, 1, 0.5, 0.5})
	cb(data, 3)

	want := []float32{0.3, 0, 0.5}
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestMonoCallbackFormats(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.25}
	for _, sf := range []SampleFormat{FormatU8, FormatS16, FormatS24, FormatS32, FormatF32} {
		t.Run(sf.String(), func(t *testing.T) {
			f := Format{SampleFormat: sf, Channels: 3, SampleRate: 16000}
			got, err := ToMono(EncodeFrames(in, f), f)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(in) {
				t.Fatalf("got %d samples, want %d", len(got), len(in))
			}
			tol := 1e-4
			if sf == FormatU8 {
				tol = 1.0 / 64
			}
			for i := range in {
				if math.Abs(float64(got[i]-in[i])) > tol {
					t.Errorf("sample %d = %f, want %f", i, got[i], in[i])
				}
			}
		})
	}
}

func TestMonoCallbackUnsupported(t *testing.T) {
	if _, err := NewMonoCallback(Format{SampleFormat: FormatUnknown, Channels: 1}, func([]float32) {}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := NewMonoCallback(Format{SampleFormat: FormatS16, Channels: 0}, func([]float32) {}); err == nil {
		t.Error("expected error for zero channels")
	}
}

func TestResampleIdentity(t *testing.T) {
	in := []float32{1, 2, 3}
	out := Resample(in, 16000, 16000)
	if len(out) != 3 || &out[0] != &in[0] {
		t.Error("equal rates should return input unchanged")
	}
}

func TestResampleDownsample(t *testing.T) {
	in := make([]float32, 48000)
	for i := range in {
		in[i] = float32(i)
	}
	out := Resample(in, 48000, 16000)
	if len(out) != 16000 {
		t.Fatalf("len = %d, want 16000", len(out))
	}
	// ratio 3: output i lands exactly on input 3i
	for _, i := range []int{0, 1, 100, 15999} {
		if out[i] != float32(3*i) {
			t.Errorf("out[%d] = %f, want %d", i, out[i], 3*i)
		}
	}
}

func TestResampleUpsampleInterpolates(t *testing.T) {
	in := []float32{0, 1}
	out := Resample(in, 8000, 16000)
	want := []float32{0, 0.5, 1, 1}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %f, want %f", i, out[i], want[i])
		}
	}
}

func TestResample44100(t *testing.T) {
	in := make([]float32, 44100)
	out := Resample(in, 44100, 16000)
	if n := len(out); n < 15999 || n > 16000 {
		t.Errorf("len = %d, want ~16000", n)
	}
}

func TestTrim(t *testing.T) {
	tests := []struct {
		name    string
		in      []float32
		padding int
		want    []float32
	}{
		{"empty", nil, 2, nil},
		{"all quiet", []float32{0, 0.005, -0.01, 0}, 2, nil},
		{"padding clipped at edges", []float32{0.5, 0, 0, 0.5}, 5, []float32{0.5, 0, 0, 0.5}},
		{"pads both sides", []float32{0, 0, 0, 0.5, 0, 0, 0, 0}, 1, []float32{0, 0.5, 0}},
		{"negative counts", []float32{0, 0, -0.5, 0, 0.2, 0, 0}, 0, []float32{-0.5, 0, 0.2}},
		{"threshold is exclusive", []float32{0.01, 0.02, 0.01}, 0, []float32{0.02}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Trim(tt.in, 0.01, tt.padding)
			if len(got) != len(tt.want) {
				t.Fatalf("Trim = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Trim = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestTrimKeepsSpeechWithFullPadding(t *testing.T) {
	in := make([]float32, 20000)
	in[10000] = 0.3
	got := Trim(in, 0.01, 3200)
	if len(got) != 6401 {
		t.Errorf("len = %d, want 6401", len(got))
	}
}

func TestPeak(t *testing.T) {
	if got := Peak([]float32{0.1, -0.7, 0.3}); got != 0.7 {
		t.Errorf("Peak = %f, want 0.7", got)
	}
	if got := Peak(nil); got != 0 {
		t.Errorf("Peak(nil) = %f, want 0", got)
	}
}

func TestIsBluetooth(t *testing.T) {
	cases := map[string]bool{
		"AirPods Pro":                 true,
		"bluez_input.XX Bluetooth":    true,
		"Built-in Microphone":         false,
		"alsa_input.pci-0000_00_1f.3": false,
		"Sony WH-1000XM4":             true,
	}
	for name, want := range cases {
		if got := IsBluetooth(name); got != want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestFakeCaptureReplay(t *testing.T) {
	samples := make([]float32, 3000)
	for i := range samples {
		samples[i] = 0.25
	}
	f := Format{SampleFormat: FormatS16, Channels: 2, SampleRate: 16000}
	ctx := NewFakeContext(f, samples, false)

	dev, err := ctx.NewCapture(nil, f)
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan []float32, 1024)
	cb, err := NewMonoCallback(dev.Format(), func(s []float32) {
		select {
		case got <- s:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	dev.SetCallback(cb)
	if err := dev.Start(); err != nil {
		t.Fatal(err)
	}

	fc := ctx.Captures()[0]
	select {
	case <-fc.AudioDone():
	case <-time.After(2 * time.Second):
		t.Fatal("replay never finished")
	}
	dev.Close()
	close(got)

	total := 0
	for chunk := range got {
		for _, s := range chunk {
			if total < len(samples) && math.Abs(float64(s-0.25)) > 1e-3 {
				t.Fatalf("sample %d = %f, want 0.25", total, s)
			}
			total++
		}
	}
	if total < len(samples) {
		t.Errorf("got %d samples, want at least %d", total, len(samples))
	}
	if !fc.Closed() {
		t.Error("capture not marked closed")
	}
}
