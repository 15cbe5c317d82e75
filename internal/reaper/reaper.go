package reaper

import (
	"context"
	"fmt"
	"time"

	"github.com/gatherhq/gather/internal/domain"
	"github.com/gatherhq/gather/internal/store"
	"github.com/gatherhq/gather/pkg/log"
)

// Config holds reaper tunables.
type Config struct {
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
	InactivityThreshold time.Duration `mapstructure:"inactivity_threshold"`
}

// Reaper reclaims video rooms whose last participant left longer ago than
// the inactivity threshold. The sweep is leaderless and idempotent: every
// mutation is an idempotent row update and the occupancy check is
// re-evaluated fresh each cycle, so concurrent or repeated sweeps are safe.
type Reaper struct {
	rooms    store.RoomStore
	provider Provider
	cfg      Config

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a room reaper.
func New(rooms store.RoomStore, provider Provider, cfg Config) *Reaper {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.InactivityThreshold <= 0 {
		cfg.InactivityThreshold = 10 * time.Minute
	}
	return &Reaper{
		rooms:    rooms,
		provider: provider,
		cfg:      cfg,
	}
}

// Start launches the periodic sweep.
func (r *Reaper) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.run(runCtx)

	l := log.L()
	l.Info().
		Dur("sweep_interval", r.cfg.SweepInterval).
		Dur("inactivity_threshold", r.cfg.InactivityThreshold).
		Msg("room reaper started")
}

// Stop halts the periodic sweep.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Reaper) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.ManualSweep(ctx); err != nil {
				l := log.L()
				l.Error().Err(err).Msg("room sweep failed")
			}
		}
	}
}

// ManualSweep runs one sweep cycle immediately. Failure on one room never
// aborts processing of the others.
func (r *Reaper) ManualSweep(ctx context.Context) error {
	l := log.Ctx(ctx)

	rooms, err := r.rooms.ListNonDeleted(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate rooms: %w", err)
	}

	now := time.Now()
	reclaimed := 0
	for _, room := range rooms {
		ok, err := r.sweepRoom(ctx, room, now)
		if err != nil {
			l.Error().Err(err).Str(log.FieldRoomID, room.ID).Msg("failed to sweep room")
			continue
		}
		if ok {
			reclaimed++
		}
	}

	if reclaimed > 0 {
		l.Info().Int("reclaimed", reclaimed).Int("scanned", len(rooms)).Msg("room sweep completed")
	}
	return nil
}

// sweepRoom reclaims one room if it qualifies, reporting whether it did.
func (r *Reaper) sweepRoom(ctx context.Context, room *domain.Room, now time.Time) (bool, error) {
	l := log.Ctx(ctx)

	// Pinned rooms are exempt no matter how long they sit empty.
	if room.Pinned() {
		return false, nil
	}

	participants, err := r.rooms.ListParticipants(ctx, room.ID)
	if err != nil {
		return false, err
	}

	// Rooms nobody ever joined are left for a future pass.
	if len(participants) == 0 {
		return false, nil
	}

	var lastLeftAt time.Time
	for _, p := range participants {
		// Occupied rooms are never reclaimed, regardless of age.
		if p.Active() {
			return false, nil
		}
		if p.LeftAt.After(lastLeftAt) {
			lastLeftAt = *p.LeftAt
		}
	}

	if now.Sub(lastLeftAt) < r.cfg.InactivityThreshold {
		return false, nil
	}

	// Best-effort provider delete; the DB transition below is authoritative
	// and proceeds regardless.
	if err := r.provider.DeleteRoom(ctx, room.Name); err != nil {
		l.Warn().Err(err).
			Str(log.FieldRoomID, room.ID).
			Str(log.FieldRoomName, room.Name).
			Msg("external room deletion failed, proceeding with db cleanup")
	}

	if err := r.rooms.SoftDeleteRoom(ctx, room.ID); err != nil {
		return false, err
	}

	// A deleted room must carry no active participant rows.
	if err := r.rooms.MarkAllParticipantsDeparted(ctx, room.ID); err != nil {
		return false, err
	}

	l.Info().
		Str(log.FieldRoomID, room.ID).
		Str(log.FieldRoomName, room.Name).
		Strs("tags", room.Tags).
		Time("last_left_at", lastLeftAt).
		Msg("abandoned room reclaimed")
	return true, nil
}
