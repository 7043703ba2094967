package registry

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lodi-net/lodi/internal/logging"
)

type brokenStore struct{ err error }

func (b brokenStore) Get(context.Context, uint32) (Record, bool, error) { return Record{}, false, b.err }
func (b brokenStore) Put(context.Context, Record) error { return b.err }

func TestRegisterAndLookup(t *testing.T) {
	svc := NewService(NewMemoryStore(DefaultCapacity), logging.Discard())
	ctx := context.Background()

	if err := svc.Register(ctx, 7, 13); err != nil {
		t.Fatalf("register: %v", err)
	}

	key, found, err := svc.Lookup(ctx, 7)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found || key != 13 {
		t.Fatalf("expected key 13, got %d (found=%v)", key, found)
	}
}

func TestRegisterLastWriteWins(t *testing.T) {
	svc := NewService(NewMemoryStore(DefaultCapacity), logging.Discard())
	ctx := context.Background()

	if err := svc.Register(ctx, 7, 13); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.Register(ctx, 7, 17); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	key, _, err := svc.Lookup(ctx, 7)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if key != 17 {
		t.Fatalf("expected last written key 17, got %d", key)
	}
}

func TestLookupDistinguishesMissingFromZeroKey(t *testing.T) {
	svc := NewService(NewMemoryStore(DefaultCapacity), logging.Discard())
	ctx := context.Background()

	if _, found, _ := svc.Lookup(ctx, 42); found {
		t.Fatalf("expected unknown user to be reported missing")
	}

	if err := svc.Register(ctx, 42, 0); err != nil {
		t.Fatalf("register zero key: %v", err)
	}
	key, found, err := svc.Lookup(ctx, 42)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !found || key != 0 {
		t.Fatalf("expected present zero key, got %d (found=%v)", key, found)
	}
}

func TestFullRegistryRejectsNewUsersOnly(t *testing.T) {
	svc := NewService(NewMemoryStore(2), logging.Discard())
	ctx := context.Background()

	for _, id := range []uint32{1, 2} {
		if err := svc.Register(ctx, id, 13); err != nil {
			t.Fatalf("register %d: %v", id, err)
		}
	}

	if err := svc.Register(ctx, 3, 13); err != ErrRegistryFull {
		t.Fatalf("expected ErrRegistryFull, got %v", err)
	}
	if _, found, _ := svc.Lookup(ctx, 3); found {
		t.Fatalf("rejected user must not be stored")
	}

	if err := svc.Register(ctx, 2, 19); err != nil {
		t.Fatalf("update existing user in full registry: %v", err)
	}
	if key, _, _ := svc.Lookup(ctx, 2); key != 19 {
		t.Fatalf("expected updated key 19, got %d", key)
	}
}

func TestStoreFailuresAreLogged(t *testing.T) {
	var buf bytes.Buffer
	storeErr := errors.New("connection reset")
	svc := NewService(brokenStore{err: storeErr}, logging.NewWithWriter(&buf, "info", "registry"))
	ctx := context.Background()

	if err := svc.Register(ctx, 7, 13); !errors.Is(err, storeErr) {
		t.Fatalf("register: expected store error, got %v", err)
	}
	if !strings.Contains(buf.String(), "registry.register lookup failed") {
		t.Fatalf("register failure not logged: %s", buf.String())
	}

	buf.Reset()
	if _, _, err := svc.Lookup(ctx, 7); !errors.Is(err, storeErr) {
		t.Fatalf("lookup: expected store error, got %v", err)
	}
	if !strings.Contains(buf.String(), "registry.lookup failed") {
		t.Fatalf("lookup failure not logged: %s", buf.String())
	}
}
