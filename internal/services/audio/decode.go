package audio

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Format names a supported clip container.
type Format string

const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// Clip is a fetched clip with its decoded duration.
type Clip struct {
	Data     []byte
	Format   Format
	Duration time.Duration
}

// Decode detects the container and reads the clip duration. RIFF/WAVE data
// goes to the WAV decoder; everything else is tried as MP3.
func Decode(data []byte) (Clip, error) {
	if len(data) == 0 {
		return Clip{}, fmt.Errorf("empty clip: %w", ErrAudioUnavailable)
	}
	if isWAV(data) {
		return decodeWAV(data)
	}
	return decodeMP3(data)
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func decodeWAV(data []byte) (Clip, error) {
	d := wav.NewDecoder(bytes.NewReader(data))
	if !d.IsValidFile() {
		return Clip{}, fmt.Errorf("invalid wav clip")
	}
	dur, err := d.Duration()
	if err != nil {
		return Clip{}, fmt.Errorf("failed to read wav duration: %w", err)
	}
	if dur <= 0 {
		return Clip{}, fmt.Errorf("wav clip has no audio")
	}
	return Clip{Data: data, Format: FormatWAV, Duration: dur}, nil
}

// go-mp3 always decodes to 16-bit stereo.
const mp3BytesPerFrame = 4

func decodeMP3(data []byte) (Clip, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Clip{}, fmt.Errorf("failed to decode mp3 clip: %w", err)
	}
	length := d.Length()
	if length <= 0 || d.SampleRate() <= 0 {
		return Clip{}, fmt.Errorf("mp3 clip has no audio")
	}
	frames := length / mp3BytesPerFrame
	dur := time.Duration(frames) * time.Second / time.Duration(d.SampleRate())
	return Clip{Data: data, Format: FormatMP3, Duration: dur}, nil
}
