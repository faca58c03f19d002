package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/ruteri/shamir-custody/interfaces"
)

// Manifest describes a stored share set. It never contains share values,
// only their digests.
type Manifest struct {
	SessionID string         `json:"session_id"`
	Threshold int            `json:"threshold"`
	Total     int            `json:"total"`
	Algorithm string         `json:"algorithm"`
	CreatedAt time.Time      `json:"created_at"`
	Shares    map[int]string `json:"shares"`
}

// Indices returns the share indices listed in the manifest in ascending order.
func (m Manifest) Indices() []int {
	out := make([]int, 0, len(m.Shares))
	for idx := range m.Shares {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// ShareStore keeps encoded shares of a named set in a storage backend as
// "<name>.<index>" plus a "<name>.manifest" JSON document.
type ShareStore struct {
	backend interfaces.StorageBackend
	log     *slog.Logger
}

func NewShareStore(backend interfaces.StorageBackend, log *slog.Logger) *ShareStore {
	return &ShareStore{backend: backend, log: log}
}

// SaveSet stores every encoded share, then the manifest. The manifest is
// written last so a readable manifest implies all shares were written.
func (s *ShareStore) SaveSet(ctx context.Context, name string, m Manifest, encoded map[int][]byte) (Manifest, error) {
	if err := interfaces.ValidateKey(name); err != nil {
		return Manifest{}, err
	}
	if len(encoded) == 0 {
		return Manifest{}, fmt.Errorf("no shares to store for %s", name)
	}

	m.Shares = make(map[int]string, len(encoded))
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	indices := make([]int, 0, len(encoded))
	for idx := range encoded {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	for _, idx := range indices {
		data := encoded[idx]
		if err := s.backend.Store(ctx, shareKey(name, idx), data); err != nil {
			return Manifest{}, fmt.Errorf("failed to store share %d of %s: %w", idx, name, err)
		}
		digest := sha256.Sum256(data)
		m.Shares[idx] = hex.EncodeToString(digest[:])
	}

	manifest, err := json.Marshal(m)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := s.backend.Store(ctx, manifestKey(name), manifest); err != nil {
		return Manifest{}, fmt.Errorf("failed to store manifest of %s: %w", name, err)
	}

	s.log.Info("Stored share set",
		slog.String("name", name),
		slog.String("session_id", m.SessionID),
		slog.Int("shares", len(indices)),
		slog.String("backend", s.backend.Name()))

	return m, nil
}

// LoadManifest fetches and parses the manifest of a set.
func (s *ShareStore) LoadManifest(ctx context.Context, name string) (Manifest, error) {
	if err := interfaces.ValidateKey(name); err != nil {
		return Manifest{}, err
	}

	raw, err := s.backend.Fetch(ctx, manifestKey(name))
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to fetch manifest of %s: %w", name, err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest of %s: %w", name, err)
	}
	return m, nil
}

// LoadSet returns the manifest and the requested encoded shares. With no
// indices every share listed in the manifest is loaded. Each share is
// checked against its manifest digest; a mismatch is an IntegrityError.
func (s *ShareStore) LoadSet(ctx context.Context, name string, indices []int) (Manifest, map[int][]byte, error) {
	m, err := s.LoadManifest(ctx, name)
	if err != nil {
		return Manifest{}, nil, err
	}

	if len(indices) == 0 {
		indices = m.Indices()
	}

	out := make(map[int][]byte, len(indices))
	for _, idx := range indices {
		want, ok := m.Shares[idx]
		if !ok {
			return Manifest{}, nil, fmt.Errorf("share %d is not part of %s: %w", idx, name, interfaces.ErrContentNotFound)
		}

		data, err := s.backend.Fetch(ctx, shareKey(name, idx))
		if err != nil {
			return Manifest{}, nil, fmt.Errorf("failed to fetch share %d of %s: %w", idx, name, err)
		}

		digest := sha256.Sum256(data)
		if hex.EncodeToString(digest[:]) != want {
			return Manifest{}, nil, &interfaces.IntegrityError{
				Err: fmt.Errorf("%w: share %d of %s", interfaces.ErrDigestMismatch, idx, name),
			}
		}
		out[idx] = data
	}

	s.log.Debug("Loaded share set",
		slog.String("name", name),
		slog.Int("shares", len(out)),
		slog.String("backend", s.backend.Name()))

	return m, out, nil
}

func shareKey(name string, idx int) string {
	return name + "." + strconv.Itoa(idx)
}

func manifestKey(name string) string {
	return name + ".manifest"
}
