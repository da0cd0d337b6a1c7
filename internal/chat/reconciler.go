package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"
)

// Reconciler listens for cache key expirations and persists the last cached
// snapshot of each expiring chat into the durable store. One instance runs
// for the lifetime of the process.
//
// Failures are logged and dropped: at most one chat's delta is at risk per
// event, and the listener must stay available.
type Reconciler struct {
	repo  *Repo
	cache Cache
	sub   ExpiredSubscriber
}

func NewReconciler(repo *Repo, cache Cache, sub ExpiredSubscriber) *Reconciler {
	return &Reconciler{repo: repo, cache: cache, sub: sub}
}

// Run subscribes to key expirations, sweeps once for snapshots orphaned
// while no listener was running, then reconciles until ctx is cancelled.
// Subscribing before the sweep means no expiration slips between the two.
func (r *Reconciler) Run(ctx context.Context) error {
	ch, err := r.sub.SubscribeExpired(ctx)
	if err != nil {
		return err
	}

	r.sweep(ctx)

	log.Info().Msg("reconciler: listening for expired chat snapshots")

	for {
		select {
		case <-ctx.Done():
			return nil
		case key, ok := <-ch:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(key, notifyKeyPrefix) {
				continue
			}
			r.handleExpired(ctx, strings.TrimPrefix(key, notifyKeyPrefix))
		}
	}
}

// sweep flushes snapshots whose notification key is already gone. If the
// notification expired while no listener was running, no event will ever
// arrive for that chat and the snapshot would die silently at its own TTL.
func (r *Reconciler) sweep(ctx context.Context) {
	keys, err := r.cache.Keys(ctx, "*/chat:*")
	if err != nil {
		log.Warn().Err(err).Msg("reconciler: sweep scan")
		return
	}

	for _, key := range keys {
		if strings.HasPrefix(key, notifyKeyPrefix) {
			continue
		}
		_, err := r.cache.Get(ctx, notifyKeyPrefix+key)
		if err == nil {
			// notification still pending; the live path will handle it
			continue
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Warn().Err(err).Str("key", key).Msg("reconciler: sweep read")
			continue
		}
		r.handleExpired(ctx, key)
	}
}

// handleExpired flushes the snapshot behind an expired notification key.
// A missing snapshot means the chat was archived (or already reconciled)
// between the notification firing and this read; that is a no-op.
func (r *Reconciler) handleExpired(ctx context.Context, snapshotKey string) {
	raw, err := r.cache.Get(ctx, snapshotKey)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			log.Debug().Str("key", snapshotKey).Msg("reconciler: snapshot already gone")
			return
		}
		log.Error().Err(err).Str("key", snapshotKey).Msg("reconciler: read snapshot")
		return
	}

	st, err := DecodeState(raw)
	if err != nil {
		log.Error().Err(err).Str("key", snapshotKey).Msg("reconciler: decode snapshot")
		return
	}

	if err := r.repo.FlushState(ctx, st); err != nil {
		log.Error().Err(err).Str("key", snapshotKey).Uint64("chat_id", st.ID).
			Msg("reconciler: flush snapshot")
		return
	}

	// The delta is durable; drop the snapshot so nothing re-reads the
	// now-stale nil-id messages.
	if err := r.cache.Delete(ctx, snapshotKey); err != nil {
		log.Warn().Err(err).Str("key", snapshotKey).Msg("reconciler: delete snapshot")
		return
	}

	log.Info().Uint64("chat_id", st.ID).Str("key", snapshotKey).
		Msg("reconciler: snapshot persisted")
}
