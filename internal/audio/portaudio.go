package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioLister enumerates input devices through PortAudio. Each call
// initializes and terminates the library, so it is safe to use while
// ffmpeg owns the devices.
type PortAudioLister struct{}

func NewPortAudioLister() *PortAudioLister {
	return &PortAudioLister{}
}

func (PortAudioLister) ListDevices() ([]AudioDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		if d.MaxInputChannels <= 0 {
			continue
		}
		dev := AudioDevice{
			ID:      d.Name,
			Name:    d.Name,
			Default: d == defaultDevice,
		}
		if d.HostApi != nil {
			dev.Host = d.HostApi.Name
		}
		result = append(result, dev)
	}

	return result, nil
}
