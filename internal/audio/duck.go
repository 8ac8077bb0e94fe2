package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

const maxVolume = 150

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id, from, to int
}

// Ducker fades every PulseAudio sink input except our own down while the
// assistant speaks and restores the original volumes afterwards.
type Ducker struct {
	mu       sync.Mutex
	active   bool
	self     []string
	saved    map[int]int
	factor   float64
	floor    int
	duration time.Duration

	// replaced in tests
	list func(ctx context.Context) ([]sinkInput, error)
	set  func(ctx context.Context, id, percent int) error
}

func NewDucker(self []string, factor float64, floor int, duration time.Duration) *Ducker {
	return &Ducker{
		self:     append([]string(nil), self...),
		saved:    make(map[int]int),
		factor:   factor,
		floor:    min(max(floor, 0), maxVolume),
		duration: duration,
		list:     listSinkInputs,
		set:      setSinkInputVolume,
	}
}

// Duck is a no-op while already ducked.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	d.saved = make(map[int]int)
	var fades []fade
	for _, in := range inputs {
		if d.isSelf(in) {
			continue
		}
		to := int(math.Round(float64(in.Volume) * d.factor))
		to = min(max(to, d.floor), maxVolume)

		d.saved[in.ID] = in.Volume
		fades = append(fades, fade{id: in.ID, from: in.Volume, to: to})
	}

	if err := d.apply(ctx, fades); err != nil {
		return err
	}
	d.active = true
	return nil
}

// Unduck restores volumes saved by Duck. Streams that appeared in between
// are left alone.
func (d *Ducker) Unduck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	inputs, err := d.list(ctx)
	if err != nil {
		return fmt.Errorf("list sink inputs: %w", err)
	}

	var fades []fade
	for _, in := range inputs {
		orig, ok := d.saved[in.ID]
		if !ok || d.isSelf(in) {
			continue
		}
		fades = append(fades, fade{id: in.ID, from: in.Volume, to: orig})
	}

	if err := d.apply(ctx, fades); err != nil {
		return err
	}
	d.saved = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) isSelf(in sinkInput) bool {
	for _, name := range d.self {
		if in.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) apply(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}

	const minStep = 10 * time.Millisecond
	steps := max(int(d.duration/minStep), 1)
	if d.duration <= 0 {
		steps = 1
	}
	pause := d.duration / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.set(ctx, f.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", f.id, err)
			}
		}
		if i < steps && pause > 0 {
			time.Sleep(pause)
		}
	}
	return nil
}

func listSinkInputs(ctx context.Context) ([]sinkInput, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	var res []sinkInput

	for _, block := range blocks[1:] {
		header, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil {
			continue
		}

		in := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && in.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) == 2 {
					in.Volume, _ = strconv.Atoi(m[1])
				}
			}
			if rest, ok := strings.CutPrefix(line, "application.name = "); ok && in.AppName == "" {
				in.AppName = strings.Trim(rest, `"`)
			}
		}

		if in.Volume == 0 && in.AppName == "" {
			continue
		}
		res = append(res, in)
	}
	return res
}

func setSinkInputVolume(ctx context.Context, id, percent int) error {
	percent = min(max(percent, 0), maxVolume)
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", percent)).Run()
}
