package audio_test

import (
	"math"
	"testing"

	"github.com/basa-ph/basa/pkg/audio"
)

func constant(v int16, n int) []byte {
	s := make([]int16, n)
	for i := range s {
		s[i] = v
	}
	return samplesToBytes(s)
}

func TestRMS(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		pcm  []byte
		want float64
	}{
		{name: "empty", pcm: nil, want: 0},
		{name: "digital silence", pcm: constant(0, 160), want: 0},
		{name: "half scale", pcm: constant(16384, 160), want: 0.5},
		{name: "alternating full scale", pcm: samplesToBytes([]int16{-32768, -32768}), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := audio.RMS(tt.pcm); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("RMS: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDBFS(t *testing.T) {
	if got := audio.DBFS(0); got != audio.SilenceFloorDB {
		t.Errorf("DBFS(0): got %v, want %v", got, audio.SilenceFloorDB)
	}
	if got := audio.DBFS(1); got != 0 {
		t.Errorf("DBFS(1): got %v, want 0", got)
	}
	if got := audio.DBFS(0.5); math.Abs(got-(-6.0206)) > 0.001 {
		t.Errorf("DBFS(0.5): got %v, want about -6.02", got)
	}
}

func TestLevel_QuietSignalBelowVoiceThreshold(t *testing.T) {
	// Amplitude 30/32768 sits near -61 dBFS.
	if got := audio.Level(constant(30, 320)); got >= -50 {
		t.Errorf("Level: got %.1f dB, want below -50", got)
	}
	// Amplitude 3000/32768 sits near -21 dBFS.
	if got := audio.Level(constant(3000, 320)); got <= -50 {
		t.Errorf("Level: got %.1f dB, want above -50", got)
	}
}
