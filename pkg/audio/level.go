package audio

import (
	"encoding/binary"
	"math"
)

// SilenceFloorDB is the level reported for digital silence, where the true
// dBFS value would be negative infinity.
const SilenceFloorDB = -120.0

// RMS returns the root-mean-square amplitude of 16-bit little-endian PCM,
// normalised to [0, 1] against full scale. A trailing odd byte is ignored.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

// DBFS converts a normalised RMS amplitude to decibels relative to full
// scale. Values at or below zero map to [SilenceFloorDB].
func DBFS(rms float64) float64 {
	if rms <= 0 {
		return SilenceFloorDB
	}
	db := 20 * math.Log10(rms)
	if db < SilenceFloorDB {
		return SilenceFloorDB
	}
	return db
}

// Level is shorthand for DBFS(RMS(pcm)).
func Level(pcm []byte) float64 {
	return DBFS(RMS(pcm))
}
