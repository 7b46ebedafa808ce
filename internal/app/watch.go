package app

import (
	"context"

	"github.com/rs/zerolog/log"
	"golekquiz-service/internal/domain"
)

// Watch streams snapshots of a session: one immediately, then a fresh one after
// every change signal. Signals that pile up while a snapshot is built collapse
// into a single refetch. The channel closes when ctx is done.
func (s *SessionService) Watch(ctx context.Context, sessionID string) (<-chan domain.Snapshot, error) {
	events, cancel := s.broker.Subscribe(sessionID)
	initial, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan domain.Snapshot, 1)
	out <- initial

	go func() {
		defer close(out)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				drain(events)
				snapshot, err := s.Snapshot(ctx, sessionID)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Warn().Err(err).Str("session_id", sessionID).Msg("snapshot refetch failed")
					continue
				}
				offerLatest(out, snapshot)
			}
		}
	}()
	return out, nil
}

func drain(events <-chan domain.Event) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// offerLatest replaces an unread snapshot so slow readers only see the newest.
func offerLatest(out chan domain.Snapshot, snapshot domain.Snapshot) {
	select {
	case out <- snapshot:
	default:
		select {
		case <-out:
		default:
		}
		out <- snapshot
	}
}
