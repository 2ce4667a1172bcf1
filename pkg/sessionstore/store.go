package sessionstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store errors.
var (
	ErrNotFound    = errors.New("session not found")
	ErrUnavailable = errors.New("session store unavailable")
)

// Record is one device session as seen by the access point.
type Record struct {
	ID             string `redis:"id" json:"id"`
	DeviceID       string `redis:"device_id" json:"deviceId"`
	APBSSID        string `redis:"ap_bssid" json:"apBssid"`
	Suite          string `redis:"suite" json:"suite"`
	KeyFingerprint string `redis:"key_fp" json:"keyFingerprint"`
	EstablishedAt  int64  `redis:"established_at" json:"establishedAt"` // Unix milliseconds
	LastSeen       int64  `redis:"last_seen" json:"lastSeen"`           // Unix milliseconds
	Frames         int64  `redis:"frames" json:"frames"`
	LastSeq        int64  `redis:"last_seq" json:"lastSeq"`
}

// NewRecord creates a record for a session established now.
func NewRecord(deviceID, apBSSID, suite, keyFingerprint string, now time.Time) *Record {
	ms := now.UnixMilli()
	return &Record{
		ID:             uuid.New().String(),
		DeviceID:       deviceID,
		APBSSID:        apBSSID,
		Suite:          suite,
		KeyFingerprint: keyFingerprint,
		EstablishedAt:  ms,
		LastSeen:       ms,
	}
}

// Store persists session records keyed by device identity.
type Store interface {
	// Put creates or replaces the record for rec.DeviceID.
	Put(ctx context.Context, rec *Record) error

	// Get returns the record for deviceID or ErrNotFound.
	Get(ctx context.Context, deviceID string) (*Record, error)

	// Touch counts one received frame.
	Touch(ctx context.Context, deviceID string, seq uint64, at time.Time) error

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, deviceID string) error

	// List returns every record sorted by device identity.
	List(ctx context.Context) ([]*Record, error)
}
