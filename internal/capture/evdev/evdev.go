//go:build linux

// Package evdev delivers raw key transitions from Linux input devices
// (/dev/input/event*). Requires read access to the devices, typically via
// the input group.
package evdev

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"keyflow/internal/event"
)

const (
	evKey = 0x01 // EV_KEY

	valueUp   = 0
	valueDown = 1
	// value 2 is autorepeat; repeats are not physical transitions.

	// struct input_event on 64-bit: two int64 time fields + type, code, value.
	eventSize = 24
)

// Source reads key transitions from every keyboard-capable input device.
type Source struct {
	mu       sync.Mutex
	devices  []string
	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	log      *zap.Logger
}

func NewSource(log *zap.Logger) *Source {
	return &Source{log: log}
}

// findKeyboards lists input event devices whose key-capability bitmap is
// large enough to be a keyboard, the same heuristic used for sysfs device
// discovery elsewhere on Linux.
func findKeyboards() ([]string, error) {
	var devices []string

	inputDevs, err := filepath.Glob("/sys/class/input/event*")
	if err != nil {
		return nil, err
	}
	for _, sysDev := range inputDevs {
		caps, err := os.ReadFile(filepath.Join(sysDev, "device/capabilities/key"))
		if err != nil {
			continue
		}
		if len(strings.TrimSpace(string(caps))) <= 20 {
			continue
		}
		devPath := "/dev/input/" + filepath.Base(sysDev)
		if _, err := os.Stat(devPath); err == nil {
			devices = append(devices, devPath)
		}
	}
	return devices, nil
}

// Start opens all keyboard devices and delivers transitions on out until the
// context is cancelled or Stop is called.
func (s *Source) Start(ctx context.Context, out chan<- event.Transition) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("evdev source already started")
	}
	devices, err := findKeyboards()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to scan input devices: %w", err)
	}
	if len(devices) == 0 {
		s.mu.Unlock()
		return errors.New("no keyboard input devices found (missing permissions on /dev/input?)")
	}
	s.devices = devices
	s.stopChan = make(chan struct{})
	s.started = true
	s.mu.Unlock()

	s.log.Info("Starting evdev key source", zap.Strings("devices", devices))

	for _, dev := range devices {
		fd, err := unix.Open(dev, unix.O_RDONLY|unix.O_NONBLOCK, 0)
		if err != nil {
			s.log.Warn("Could not open input device", zap.String("device", dev), zap.Error(err))
			continue
		}
		s.wg.Add(1)
		go s.readLoop(ctx, fd, dev, out)
	}

	select {
	case <-ctx.Done():
	case <-s.stopChan:
	}
	s.wg.Wait()
	return nil
}

func (s *Source) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	close(s.stopChan)
	s.started = false
	return nil
}

func (s *Source) readLoop(ctx context.Context, fd int, dev string, out chan<- event.Transition) {
	defer s.wg.Done()
	defer unix.Close(fd)

	buf := make([]byte, eventSize*64)
	pollFds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
		}

		n, err := unix.Poll(pollFds, 500)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			s.log.Warn("Poll failed on input device", zap.String("device", dev), zap.Error(err))
			return
		}
		if n == 0 || pollFds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		read, err := unix.Read(fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			s.log.Warn("Read failed on input device", zap.String("device", dev), zap.Error(err))
			return
		}

		for off := 0; off+eventSize <= read; off += eventSize {
			tr, ok := parseEvent(buf[off : off+eventSize])
			if !ok {
				continue
			}
			select {
			case out <- tr:
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			}
		}
	}
}

// parseEvent decodes one struct input_event and keeps only key transitions.
func parseEvent(b []byte) (event.Transition, bool) {
	sec := int64(binary.LittleEndian.Uint64(b[0:8]))
	usec := int64(binary.LittleEndian.Uint64(b[8:16]))
	typ := binary.LittleEndian.Uint16(b[16:18])
	code := binary.LittleEndian.Uint16(b[18:20])
	value := int32(binary.LittleEndian.Uint32(b[20:24]))

	if typ != evKey {
		return event.Transition{}, false
	}

	var edge event.Edge
	switch value {
	case valueDown:
		edge = event.EdgeDown
	case valueUp:
		edge = event.EdgeUp
	default:
		return event.Transition{}, false
	}

	name, char := lookupKey(code)
	if name == "" {
		name = fmt.Sprintf("key_%d", code)
	}

	return event.Transition{
		Timestamp: time.Unix(sec, usec*int64(time.Microsecond)),
		KeyCode:   code,
		KeyChar:   char,
		KeyName:   name,
		Edge:      edge,
	}, true
}
