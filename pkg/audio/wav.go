package audio

import (
	"encoding/binary"
	"fmt"
)

// WAV container constants for 16-bit mono PCM.
const (
	wavHeaderSize    = 44
	wavFmtChunkSize  = 16
	wavAudioFmtPCM   = 1
	wavBitsPerSample = 16
)

// EncodeWAV serialises 16-bit mono PCM samples into a minimal RIFF/WAVE
// container. This is the payload format sent to speech-to-text services,
// which generally refuse raw headerless PCM.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}

	dataSize := len(samples) * 2
	buf := make([]byte, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], wavFmtChunkSize)
	binary.LittleEndian.PutUint16(buf[20:22], wavAudioFmtPCM)
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2)) // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], 2)                    // block align
	binary.LittleEndian.PutUint16(buf[34:36], wavBitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[wavHeaderSize+i*2:], uint16(s))
	}
	return buf, nil
}

// DecodeWAV parses a RIFF/WAVE container holding 16-bit PCM and returns the
// samples and sample rate. Multi-channel input is down-mixed to mono by
// averaging channels per frame, since the whole pipeline is single-channel.
//
// Only uncompressed PCM is supported; compressed formats return an error.
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < wavHeaderSize || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("audio: not a RIFF/WAVE file")
	}

	var (
		sampleRate int
		channels   int
		bits       int
		pcm        []byte
	)

	// Walk the chunk list. Chunks other than "fmt " and "data" are skipped.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			return nil, 0, fmt.Errorf("audio: truncated %q chunk", id)
		}

		switch id {
		case "fmt ":
			if size < wavFmtChunkSize {
				return nil, 0, fmt.Errorf("audio: short fmt chunk (%d bytes)", size)
			}
			if fmtCode := binary.LittleEndian.Uint16(data[body : body+2]); fmtCode != wavAudioFmtPCM {
				return nil, 0, fmt.Errorf("audio: unsupported WAV format code %d (want PCM)", fmtCode)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size + size%2
	}

	if sampleRate == 0 || channels == 0 {
		return nil, 0, fmt.Errorf("audio: missing fmt chunk")
	}
	if bits != wavBitsPerSample {
		return nil, 0, fmt.Errorf("audio: unsupported bit depth %d (want 16)", bits)
	}
	if pcm == nil {
		return nil, 0, fmt.Errorf("audio: missing data chunk")
	}

	frames := len(pcm) / (2 * channels)
	samples := make([]int16, frames)
	for i := range frames {
		var sum int
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sum += int(int16(binary.LittleEndian.Uint16(pcm[idx : idx+2])))
		}
		samples[i] = int16(sum / channels)
	}
	return samples, sampleRate, nil
}

// BytesToSamples converts raw little-endian 16-bit PCM bytes to samples.
// Any trailing odd byte is silently ignored.
func BytesToSamples(pcm []byte) []int16 {
	n := len(pcm) / 2
	samples := make([]int16, n)
	for i := range n {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
	}
	return samples
}

// SamplesToBytes converts 16-bit samples to little-endian PCM bytes.
func SamplesToBytes(samples []int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}
