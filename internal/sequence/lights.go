package sequence

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cubehook/internal/device"
)

// LightReport lists which channels a light effect lit and which it had to skip.
type LightReport struct {
	Set     []device.ChannelID
	Missing []device.ChannelID
}

// LightEffect lights a set of channels for a fixed hold and clears them afterwards.
type LightEffect struct {
	channels device.ChannelProvider
}

// NewLightEffect creates a light effect over the given channel provider.
func NewLightEffect(channels device.ChannelProvider) *LightEffect {
	return &LightEffect{channels: channels}
}

// RunFor sets every channel in colors, waits the full hold and turns the lit
// channels off again.
//
// Unavailable channels are skipped with a warning. The hold is not shortened
// by ctx cancellation, and clearing always runs, even when unwinding a panic.
func (e *LightEffect) RunFor(ctx context.Context, hold time.Duration, colors map[device.ChannelID]device.Color) LightReport {
	ids := make([]device.ChannelID, 0, len(colors))
	for id := range colors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var report LightReport
	lit := make([]device.Channel, 0, len(ids))
	defer func() { e.clear(ctx, lit) }()

	for _, id := range ids {
		ch, err := e.channels.Channel(ctx, id)
		if err != nil {
			log.Warn().Err(err).Str("channel", string(id)).Msg("Light channel unavailable, skipping")
			report.Missing = append(report.Missing, id)
			continue
		}
		if err := ch.SetColor(ctx, colors[id]); err != nil {
			log.Warn().Err(err).Str("channel", string(id)).Msg("Failed to set light channel, skipping")
			report.Missing = append(report.Missing, id)
			continue
		}
		report.Set = append(report.Set, id)
		lit = append(lit, ch)
	}

	log.Debug().
		Int("set", len(report.Set)).
		Int("missing", len(report.Missing)).
		Dur("hold", hold).
		Msg("Light effect holding")

	if hold > 0 {
		timer := time.NewTimer(hold)
		<-timer.C
	}

	return report
}

// clear turns lit channels off on a context that cannot be cancelled.
func (e *LightEffect) clear(ctx context.Context, lit []device.Channel) {
	clearCtx := context.WithoutCancel(ctx)
	for _, ch := range lit {
		if err := ch.Off(clearCtx); err != nil {
			if errors.Is(err, device.ErrAccessoryUnavailable) {
				log.Debug().Str("channel", string(ch.ID())).Msg("Light channel gone before clearing")
				continue
			}
			log.Warn().Err(err).Str("channel", string(ch.ID())).Msg("Failed to clear light channel")
		}
	}
}
