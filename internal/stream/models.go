package stream

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Key identifies one camera channel being transcoded: "<deviceId>_<channel>".
type Key string

// ErrInvalidKey is returned when a device id or channel cannot be used as a
// stream key (empty, or containing path elements).
var ErrInvalidKey = errors.New("invalid stream key")

// NewKey normalizes a (deviceId, channel) pair into a Key. The key names a
// directory under the output root, so separators and dot segments are refused.
func NewKey(deviceID, channel string) (Key, error) {
	deviceID = strings.TrimSpace(deviceID)
	channel = strings.TrimSpace(channel)
	if err := validateKeyPart(deviceID); err != nil {
		return "", fmt.Errorf("%w: device id: %v", ErrInvalidKey, err)
	}
	if err := validateKeyPart(channel); err != nil {
		return "", fmt.Errorf("%w: channel: %v", ErrInvalidKey, err)
	}
	return Key(deviceID + "_" + channel), nil
}

func validateKeyPart(s string) error {
	switch {
	case s == "":
		return errors.New("empty")
	case s == "." || s == "..":
		return errors.New("dot segment")
	case strings.ContainsAny(s, `/\`):
		return errors.New("contains path separator")
	case strings.ContainsRune(s, 0):
		return errors.New("contains NUL")
	}
	return nil
}

// ManifestPath returns the URL path a player uses to fetch the live playlist
// for key. It depends only on the key.
func ManifestPath(key Key) string {
	return "/hls/" + string(key) + "/" + manifestName
}

const manifestName = "index.m3u8"

// Session is the live state for one Key. Fields are guarded by the
// Supervisor's lock; callers outside the package see SessionInfo copies.
type Session struct {
	Key        Key
	handle     Process
	generation uint64
	outputDir  string
	watchCount int
	lastActive time.Time
	startedAt  time.Time
}

// SessionInfo is a point-in-time copy of a Session.
type SessionInfo struct {
	Key        Key       `json:"key"`
	WatchCount int       `json:"watchCount"`
	LastActive time.Time `json:"lastActive"`
	StartedAt  time.Time `json:"startedAt"`
	OutputDir  string    `json:"-"`
	Pid        int       `json:"pid"`
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		Key:        s.Key,
		WatchCount: s.watchCount,
		LastActive: s.lastActive,
		StartedAt:  s.startedAt,
		OutputDir:  s.outputDir,
		Pid:        s.handle.Pid(),
	}
}
