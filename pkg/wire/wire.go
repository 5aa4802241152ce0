// Package wire defines the encoded media units exchanged with the remote
// streaming endpoint and the PCM conversions that produce them.
//
// The uplink format is fixed: 16 kHz mono little-endian signed 16-bit PCM,
// base64-encoded and tagged with a MIME-like descriptor. The downlink format
// is fixed as well: 24 kHz mono s16le PCM. This package is deliberately not a
// general codec layer — one input format, one output format.
package wire

import (
	"encoding/base64"
	"math"
	"time"
)

const (
	// InputSampleRate is the capture-side sample rate in Hz.
	InputSampleRate = 16000

	// OutputSampleRate is the render-side sample rate in Hz of decoded
	// model audio.
	OutputSampleRate = 24000

	// FrameSamples is the fixed number of samples per capture frame
	// (4096 samples ≈ 256 ms at 16 kHz).
	FrameSamples = 4096

	// AudioMIME is the descriptor attached to every uplink audio chunk.
	AudioMIME = "audio/pcm;rate=16000"

	// VideoMIME is the descriptor attached to every uplink video frame.
	VideoMIME = "image/jpeg"
)

// MediaChunk is a transport-ready unit of media data: base64 payload plus a
// MIME-like format descriptor. Chunks are ephemeral — they exist only between
// encoding and the transport send.
type MediaChunk struct {
	// MIMEType describes the payload format (e.g. "audio/pcm;rate=16000").
	MIMEType string

	// Data is the base64-encoded payload.
	Data string
}

// EncodeAudioFrame converts one frame of normalized float32 samples into an
// uplink MediaChunk: each sample is scaled by 32768, rounded, packed as
// little-endian int16 and base64-encoded.
//
// Out-of-range samples (possible with upstream gain processing) wrap rather
// than saturate — the truncating int32→int16 conversion reproduces the
// capture stack's observed behaviour and is intentionally not clamped.
func EncodeAudioFrame(samples []float32) MediaChunk {
	return MediaChunk{
		MIMEType: AudioMIME,
		Data:     base64.StdEncoding.EncodeToString(FloatToPCM(samples)),
	}
}

// EncodeVideoFrame wraps an already JPEG-compressed image into an uplink
// MediaChunk.
func EncodeVideoFrame(jpegData []byte) MediaChunk {
	return MediaChunk{
		MIMEType: VideoMIME,
		Data:     base64.StdEncoding.EncodeToString(jpegData),
	}
}

// FloatToPCM converts normalized float32 samples to little-endian s16le PCM
// bytes via round(s * 32768). See EncodeAudioFrame for the wrap semantics.
func FloatToPCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(int32(math.Round(float64(s) * 32768)))
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// PCMToFloat converts little-endian s16le PCM bytes back to normalized
// float32 samples. A trailing odd byte is ignored.
func PCMToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(v) / 32768
	}
	return out
}

// PCMDuration returns the playback duration of s16le mono PCM data at the
// given sample rate.
func PCMDuration(data []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(data) / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// DecodeBase64 decodes a base64 payload from the wire. It is a thin wrapper
// kept here so both transport directions share one encoding.
func DecodeBase64(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}
