package alerts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vigilai/vigil-core/internal/data"
	"github.com/vigilai/vigil-core/internal/metrics"
)

// DefaultConfidenceThreshold gates alert creation when no value is
// configured. Detections below it are persisted but never alerted.
const DefaultConfidenceThreshold = 0.7

// AlertStore is the persistence surface the emitter needs.
type AlertStore interface {
	Insert(ctx context.Context, a *data.Alert) error
}

// Broadcaster pushes alert events to live subscribers. Delivery problems
// stay inside the hub and never reach the emitting worker.
type Broadcaster interface {
	BroadcastNewAlert(a *data.Alert)
	BroadcastAlertUpdate(alertID uuid.UUID, a *data.Alert)
}

// ThumbnailStore keeps the frame that triggered an alert so the UI can
// show it without re-decoding the source media. Optional.
type ThumbnailStore interface {
	Put(ctx context.Context, fileName, contentType string, body io.Reader) (string, error)
}

// Emitter turns qualifying detections into persisted, broadcast alerts.
type Emitter struct {
	store     AlertStore
	hub       Broadcaster
	thumbs    ThumbnailStore
	threshold float64

	// Replay guard: a stale worker that lost its lease can offer the same
	// persisted detection again. Keys are per detection row and cleared by
	// Forget when a reprocessing run purges the asset, so re-inserted
	// detections alert again.
	dedup    *lru.Cache[string, time.Time]
	dedupTTL time.Duration
}

func NewEmitter(store AlertStore, hub Broadcaster, thumbs ThumbnailStore, threshold float64) *Emitter {
	if threshold <= 0 {
		threshold = DefaultConfidenceThreshold
	}
	cache, _ := lru.New[string, time.Time](4096)
	return &Emitter{
		store:     store,
		hub:       hub,
		thumbs:    thumbs,
		threshold: threshold,
		dedup:     cache,
		dedupTTL:  10 * time.Minute,
	}
}

// MaybeEmit creates and broadcasts an alert for det if its confidence meets
// the threshold. frameJPEG, when present, is stored as the alert thumbnail.
// Returns nil, nil when the detection does not qualify.
func (e *Emitter) MaybeEmit(ctx context.Context, asset *data.MediaAsset, det *data.Detection, frameJPEG []byte) (*data.Alert, error) {
	if det.Confidence < e.threshold {
		return nil, nil
	}

	if e.isDuplicate(dedupKey(det)) {
		return nil, nil
	}

	alert := &data.Alert{
		DetectionID: det.ID,
		CameraID:    asset.CameraID,
		Severity:    SeverityFor(det.Type),
		Description: fmt.Sprintf("%s detected with %.2f%% confidence", det.Type, det.Confidence*100),
	}

	if e.thumbs != nil && len(frameJPEG) > 0 {
		key, err := e.thumbs.Put(ctx, "thumb.jpg", "image/jpeg", bytes.NewReader(frameJPEG))
		if err != nil {
			// Best effort; the alert still goes out without it.
			log.Printf("[Emitter] Thumbnail store error: %v", err)
		} else {
			alert.ThumbnailKey = key
		}
	}

	if err := e.store.Insert(ctx, alert); err != nil {
		return nil, fmt.Errorf("persist alert: %w", err)
	}

	metrics.RecordAlertEmitted(alert.Severity)
	log.Printf("[Emitter] Alert %s: %s (camera=%s severity=%s)", alert.ID, alert.Description, alert.CameraID, alert.Severity)

	e.hub.BroadcastNewAlert(alert)
	return alert, nil
}

// Forget drops the replay-guard entries for one media asset. The worker
// calls it while purging rows before a reprocessing run; without it a
// re-claimed asset would complete with its alerts deleted and never
// re-created.
func (e *Emitter) Forget(mediaID uuid.UUID) {
	prefix := mediaID.String() + "|"
	for _, key := range e.dedup.Keys() {
		if strings.HasPrefix(key, prefix) {
			e.dedup.Remove(key)
		}
	}
}

func (e *Emitter) isDuplicate(key string) bool {
	if at, ok := e.dedup.Get(key); ok && time.Since(at) < e.dedupTTL {
		return true
	}
	e.dedup.Add(key, time.Now())
	return false
}

func dedupKey(det *data.Detection) string {
	return det.MediaID.String() + "|" + det.ID.String()
}
