package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultDeviceCapacity matches the historical device table size.
const DefaultDeviceCapacity = 100

// ErrDeviceTableFull is returned when no slot is left for a new device.
var ErrDeviceTableFull = errors.New("device table full")

// Device is the address push prompts for a user are sent to.
type Device struct {
	UserID uint32
	Addr   string
	// Timestamp is the signed timestamp the registration was made with.
	Timestamp    uint64
	RegisteredAt time.Time
}

// DeviceStore persists device registrations keyed by user.
type DeviceStore interface {
	Get(ctx context.Context, userID uint32) (Device, bool, error)
	Put(ctx context.Context, device Device) error
}

type memoryDeviceStore struct {
	mu       sync.RWMutex
	capacity int
	devices  map[uint32]Device
}

// NewMemoryDeviceStore builds a device table holding at most capacity users.
// A capacity of zero or less means unbounded.
func NewMemoryDeviceStore(capacity int) DeviceStore {
	return &memoryDeviceStore{capacity: capacity, devices: make(map[uint32]Device)}
}

func (s *memoryDeviceStore) Get(_ context.Context, userID uint32) (Device, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.devices[userID]
	return d, ok, nil
}

func (s *memoryDeviceStore) Put(_ context.Context, device Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.devices[device.UserID]; !exists && s.capacity > 0 && len(s.devices) >= s.capacity {
		return ErrDeviceTableFull
	}
	s.devices[device.UserID] = device
	return nil
}

// ReRegisterPolicy decides what a registration for an already known user does.
type ReRegisterPolicy string

const (
	// PolicyIgnore keeps the first registered address.
	PolicyIgnore ReRegisterPolicy = "ignore"
	// PolicyUpdate moves the registration to the newest address once the
	// signature verifies again.
	PolicyUpdate ReRegisterPolicy = "update"
)

// ParsePolicy maps a configuration string to a policy. Empty means ignore.
func ParsePolicy(v string) (ReRegisterPolicy, error) {
	switch ReRegisterPolicy(strings.ToLower(strings.TrimSpace(v))) {
	case "", PolicyIgnore:
		return PolicyIgnore, nil
	case PolicyUpdate:
		return PolicyUpdate, nil
	default:
		return "", fmt.Errorf("unknown re-registration policy %q", v)
	}
}
