//go:build linux

package gpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealBuzzer drives a buzzer on an output line of the GPIO character device.
type RealBuzzer struct {
	chip  *gpiocdev.Chip
	line  *gpiocdev.Line
	pulse time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewRealBuzzer requests pin as an output, initially low.
func NewRealBuzzer(pin int, pulse time.Duration) (*RealBuzzer, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request buzzer pin %d: %w", pin, err)
	}

	if pulse <= 0 {
		pulse = DefaultPulse
	}
	return &RealBuzzer{chip: chip, line: line, pulse: pulse}, nil
}

// Beep drives the line high and schedules it low after the pulse. A beep
// during a running pulse extends it.
func (b *RealBuzzer) Beep() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.line.SetValue(1); err != nil {
		return fmt.Errorf("set buzzer high: %w", err)
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.pulse, b.silence)
	return nil
}

func (b *RealBuzzer) silence() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.line.SetValue(0)
}

// Close drives the line low and reconfigures it as an input with pull-down,
// matching the Pi boot defaults, before releasing it.
func (b *RealBuzzer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
	}

	var errs []error
	if b.line != nil {
		if err := b.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("set buzzer low: %w", err))
		}
		if err := b.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure buzzer pin: %w", err))
		}
		if err := b.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close buzzer pin: %w", err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
