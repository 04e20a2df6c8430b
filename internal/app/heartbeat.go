package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

func heartbeat(ctx context.Context, cs *Components, opts RunOptions, log zerolog.Logger) {
	ticker := time.NewTicker(opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info().
				Str("name", opts.Name).
				Bool("ready", cs.Ready()).
				Strs("components", cs.Names()).
				Msg("heartbeat")
		}
	}
}
