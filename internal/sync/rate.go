// ABOUTME: Device rate tracking from consumer frame timestamps
// ABOUTME: Estimates the effective sample rate and its drift against the local clock
package sync

import (
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Quality represents how far the estimate can be trusted
type Quality int

const (
	QualityGood Quality = iota
	QualityDegraded
	QualityLost
)

func (q Quality) String() string {
	switch q {
	case QualityGood:
		return "good"
	case QualityDegraded:
		return "degraded"
	default:
		return "lost"
	}
}

const (
	// DefaultUpdateInterval spaces filter updates so arrival jitter averages out
	DefaultUpdateInterval = time.Second

	positionGain = 0.2
	rateGain     = 0.05

	// Residuals above this fraction of a second of audio are treated as outliers
	outlierSeconds = 0.05
	// Consecutive outliers before the tracker re-anchors
	maxOutliers = 5
	// Gaps longer than this re-anchor and mark the estimate lost
	stallTimeout = 5 * time.Second
	// Relative error below which the estimate counts as good
	goodPPM = 5000
)

// Stats is a snapshot of the estimate
type Stats struct {
	Rate    float64
	PPM     float64
	Updates int
	Quality Quality
}

// RateTracker follows the device's sample clock as seen from this host.
//
// It models sample_time = position + rate * elapsed and corrects both terms
// from each residual with fixed gains, an alpha-beta filter.
type RateTracker struct {
	mu       sync.RWMutex
	nominal  float64
	interval time.Duration
	logger   *log.Logger

	rate       float64
	position   float64
	lastLocal  time.Time
	lastSeen   time.Time
	lastSample int64
	anchored   bool
	updates    int
	outliers   int
	quality    Quality
}

// NewRateTracker creates a tracker for a device running at nominal Hz
func NewRateTracker(nominal int, interval time.Duration, logger *log.Logger) *RateTracker {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &RateTracker{
		nominal:  float64(nominal),
		interval: interval,
		logger:   logger.With("component", "rate"),
		rate:     float64(nominal),
		quality:  QualityLost,
	}
}

// Observe records that sampleTime arrived at local time at
func (r *RateTracker) Observe(sampleTime int64, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastSeen = at
	if !r.anchored || sampleTime < r.lastSample {
		// First frame, or the stream restarted after a rate change
		r.anchor(sampleTime, at)
		return
	}
	r.lastSample = sampleTime

	dt := at.Sub(r.lastLocal)
	if dt < r.interval {
		return
	}
	if dt > stallTimeout {
		r.logger.Debug("stream stalled, re-anchoring", "gap", dt)
		r.anchor(sampleTime, at)
		return
	}

	seconds := dt.Seconds()
	predicted := r.position + r.rate*seconds
	residual := float64(sampleTime) - predicted

	if math.Abs(residual) > r.nominal*outlierSeconds {
		r.outliers++
		r.logger.Debug("discarding outlier", "residual_frames", residual, "outliers", r.outliers)
		if r.outliers >= maxOutliers {
			r.anchor(sampleTime, at)
		}
		return
	}
	r.outliers = 0

	r.position = predicted + positionGain*residual
	r.rate += rateGain * residual / seconds
	r.lastLocal = at
	r.updates++

	if r.updates >= 3 && math.Abs(r.ppmLocked()) < goodPPM {
		r.quality = QualityGood
	} else {
		r.quality = QualityDegraded
	}

	if r.updates < 5 {
		r.logger.Debug("rate update", "n", r.updates, "rate", r.rate, "residual_frames", residual)
	}
}

// anchor restarts the position model at sampleTime, keeping the rate estimate
func (r *RateTracker) anchor(sampleTime int64, at time.Time) {
	r.position = float64(sampleTime)
	r.lastSample = sampleTime
	r.lastLocal = at
	r.outliers = 0
	r.anchored = true
	r.quality = QualityDegraded
}

func (r *RateTracker) ppmLocked() float64 {
	return (r.rate/r.nominal - 1) * 1e6
}

// Stats returns the current estimate
func (r *RateTracker) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Rate: r.rate, PPM: r.ppmLocked(), Updates: r.updates, Quality: r.quality}
}

// CheckQuality marks the estimate lost when nothing arrived for a while
func (r *RateTracker) CheckQuality(now time.Time) Quality {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.anchored && now.Sub(r.lastSeen) > stallTimeout {
		r.quality = QualityLost
	}
	return r.quality
}
