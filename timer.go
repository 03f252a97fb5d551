package ircore

import (
	"context"
	"time"
)

// timerLoop runs the once-a-second periodic housekeeping described across
// 4.5/4.10: sweeping expired redirects and stale batches, and
// (when configured) polling channel membership for away-state drift via
// WHO, since away-notify alone misses nicks that were already away before
// they joined a channel this client tracks.
func (s *Server) timerLoop(ctx context.Context) error {
	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	var lastAwayCheck time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-tick.C:
			s.redirects.sweepExpired(now)
			s.batches.sweepExpired(now)

			immediate, high, low := s.outq.Depth()
			s.core.Metrics.observeQueueDepth(s.cfg.Name, immediate, high, low)

			if s.cfg.AwayCheck > 0 && now.Sub(lastAwayCheck) >= s.cfg.AwayCheck {
				lastAwayCheck = now
				s.runAwayCheck()
			}
		}
	}
}

// runAwayCheck issues a WHO against every tracked channel to refresh away
// state for members who were already away before away-notify could
// observe them, bounded by cfg.AwayCheckMaxNicks per channel.
func (s *Server) runAwayCheck() {
	max := s.cfg.AwayCheckMaxNicks

	for _, ch := range s.channels.all() {
		if ch.Part {
			continue
		}

		names := ch.NickNames()
		if max > 0 && len(names) > max {
			continue
		}

		ch.WHOXCheckCounter++
		s.writeImmediate(&Message{Command: WHO, Params: []string{ch.Name, "%tacuhnr,1"}})
	}
}
