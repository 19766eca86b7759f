package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

type reservationStore interface {
	TryReserve(ctx context.Context, key models.ReservationKey, ttl time.Duration) (bool, error)
	TryReserveBatch(ctx context.Context, keys []models.ReservationKey, ttl time.Duration) ([]bool, error)
	MarkCompleted(ctx context.Context, key models.ReservationKey, ttl time.Duration) error
	MarkCompletedBatch(ctx context.Context, keys []models.ReservationKey, ttl time.Duration) error
	Release(ctx context.Context, key models.ReservationKey) error
	ReleaseBatch(ctx context.Context, keys []models.ReservationKey) error
	Status(ctx context.Context, key models.ReservationKey) (models.ReservationStatus, error)
	StatusBatch(ctx context.Context, keys []models.ReservationKey) ([]models.ReservationStatus, error)
}

// DedupConfig carries the reservation TTL policy.
type DedupConfig struct {
	Enabled    bool
	PendingTTL time.Duration
	MatchTTL   time.Duration
	BeatmapTTL time.Duration
	PlayerTTL  time.Duration
}

// DedupService guards upstream fetches against duplicate work across workers.
type DedupService struct {
	store   reservationStore
	cfg     DedupConfig
	metrics *MetricsService
	logger  *zap.Logger
}

// NewDedupService constructs the service. With cfg.Enabled false every call permits the fetch.
func NewDedupService(store reservationStore, cfg DedupConfig, metrics *MetricsService, logger *zap.Logger) *DedupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = 5 * time.Minute
	}
	if cfg.MatchTTL <= 0 {
		cfg.MatchTTL = time.Hour
	}
	if cfg.BeatmapTTL <= 0 {
		cfg.BeatmapTTL = 24 * time.Hour
	}
	if cfg.PlayerTTL <= 0 {
		cfg.PlayerTTL = 12 * time.Hour
	}
	return &DedupService{store: store, cfg: cfg, metrics: metrics, logger: logger}
}

// Enabled reports whether reservations are enforced.
func (s *DedupService) Enabled() bool {
	return s.cfg.Enabled && s.store != nil
}

func (s *DedupService) processedTTL(t models.ResourceType) time.Duration {
	switch t {
	case models.ResourceMatch:
		return s.cfg.MatchTTL
	case models.ResourceBeatmap, models.ResourceBeatmapset:
		return s.cfg.BeatmapTTL
	case models.ResourcePlayer:
		return s.cfg.PlayerTTL
	default:
		return s.cfg.PendingTTL
	}
}

func reservationKey(t models.ResourceType, id int64) models.ReservationKey {
	return models.ReservationKey{Type: t, ID: id, Platform: models.PlatformOsu}
}

func reservationKeys(t models.ResourceType, ids []int64) []models.ReservationKey {
	out := make([]models.ReservationKey, len(ids))
	for i, id := range ids {
		out[i] = reservationKey(t, id)
	}
	return out
}

// TryReserve claims the resource for the pending TTL. false means another worker owns it or it was processed recently.
func (s *DedupService) TryReserve(ctx context.Context, t models.ResourceType, id int64) (bool, error) {
	if !s.Enabled() {
		return true, nil
	}
	ok, err := s.store.TryReserve(ctx, reservationKey(t, id), s.cfg.PendingTTL)
	if err != nil {
		return false, err
	}
	s.metrics.RecordReservation(string(t), ok)
	if !ok {
		s.logger.Debug("fetch already reserved", zap.String("resource", string(t)), zap.Int64("osu_id", id))
	}
	return ok, nil
}

// TryReserveBatch claims many resources in one round trip. The result maps each id to whether it was claimed.
func (s *DedupService) TryReserveBatch(ctx context.Context, t models.ResourceType, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if !s.Enabled() {
		for _, id := range ids {
			out[id] = true
		}
		return out, nil
	}
	results, err := s.store.TryReserveBatch(ctx, reservationKeys(t, ids), s.cfg.PendingTTL)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		out[id] = results[i]
		s.metrics.RecordReservation(string(t), results[i])
	}
	return out, nil
}

// MarkCompleted records a successful fetch so the resource is not refetched for the type's processed TTL.
func (s *DedupService) MarkCompleted(ctx context.Context, t models.ResourceType, id int64) error {
	if !s.Enabled() {
		return nil
	}
	return s.store.MarkCompleted(ctx, reservationKey(t, id), s.processedTTL(t))
}

func (s *DedupService) MarkCompletedBatch(ctx context.Context, t models.ResourceType, ids []int64) error {
	if !s.Enabled() || len(ids) == 0 {
		return nil
	}
	return s.store.MarkCompletedBatch(ctx, reservationKeys(t, ids), s.processedTTL(t))
}

// Release drops a claim after a failed fetch so a retry can proceed.
func (s *DedupService) Release(ctx context.Context, t models.ResourceType, id int64) error {
	if !s.Enabled() {
		return nil
	}
	return s.store.Release(ctx, reservationKey(t, id))
}

func (s *DedupService) ReleaseBatch(ctx context.Context, t models.ResourceType, ids []int64) error {
	if !s.Enabled() || len(ids) == 0 {
		return nil
	}
	return s.store.ReleaseBatch(ctx, reservationKeys(t, ids))
}

// Status reports the reservation state. Disabled dedup always reports Available.
func (s *DedupService) Status(ctx context.Context, t models.ResourceType, id int64) (models.ReservationStatus, error) {
	if !s.Enabled() {
		return models.ReservationAvailable, nil
	}
	return s.store.Status(ctx, reservationKey(t, id))
}

func (s *DedupService) StatusBatch(ctx context.Context, t models.ResourceType, ids []int64) (map[int64]models.ReservationStatus, error) {
	out := make(map[int64]models.ReservationStatus, len(ids))
	if !s.Enabled() {
		for _, id := range ids {
			out[id] = models.ReservationAvailable
		}
		return out, nil
	}
	statuses, err := s.store.StatusBatch(ctx, reservationKeys(t, ids))
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		out[id] = statuses[i]
	}
	return out, nil
}
