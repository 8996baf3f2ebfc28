// Package directory maps workspace identifiers to authenticated platform
// clients. Single-workspace deployments seed one static installation at
// startup; multi-workspace deployments populate it via the OAuth flow.
package directory

import (
	"context"
	"errors"
	"sync"

	"github.com/jibinmichael/paperforslack/internal/platform"
	"github.com/jibinmichael/paperforslack/pkg/models"
)

// ErrNotInstalled signals that a workspace has no installation record.
// Callers must short-circuit rather than retry: this is not a transient
// error.
var ErrNotInstalled = errors.New("workspace not installed")

// InstallationStore persists installation records.
type InstallationStore interface {
	Get(ctx context.Context, teamID string) (models.Installation, error)
	Put(ctx context.Context, inst models.Installation) error
	Delete(ctx context.Context, teamID string) error
	List(ctx context.Context) ([]models.Installation, error)
}

// ClientFactory builds a platform client from an installation's
// credentials.
type ClientFactory func(inst models.Installation) platform.Client

// Directory resolves workspaces. Read-mostly: installs and uninstalls are
// rare OAuth events, lookups happen on every inbound message.
type Directory struct {
	store   InstallationStore
	factory ClientFactory

	mu      sync.RWMutex
	clients map[string]platform.Client

	// single holds the team id of the static installation in
	// single-workspace mode, where events may arrive without a usable
	// team id and resolve to the one configured workspace.
	single string
}

// New creates a Directory over the given installation store.
func New(store InstallationStore, factory ClientFactory) *Directory {
	return &Directory{
		store:   store,
		factory: factory,
		clients: make(map[string]platform.Client),
	}
}

// SeedSingle registers the static single-workspace installation.
func (d *Directory) SeedSingle(ctx context.Context, inst models.Installation) error {
	inst.Mode = models.InstallModeSingle
	if !inst.Valid() {
		return errors.New("single-workspace installation is missing team id or token")
	}
	if err := d.store.Put(ctx, inst); err != nil {
		return err
	}
	d.mu.Lock()
	d.single = inst.TeamID
	d.mu.Unlock()
	return nil
}

// Resolve returns the installation and an authenticated client for the
// workspace, or ErrNotInstalled.
func (d *Directory) Resolve(ctx context.Context, teamID string) (models.Installation, platform.Client, error) {
	d.mu.RLock()
	if teamID == "" {
		teamID = d.single
	}
	client, cached := d.clients[teamID]
	d.mu.RUnlock()

	inst, err := d.store.Get(ctx, teamID)
	if err != nil {
		return models.Installation{}, nil, err
	}

	if !cached {
		d.mu.Lock()
		client, cached = d.clients[teamID]
		if !cached {
			client = d.factory(inst)
			d.clients[teamID] = client
		}
		d.mu.Unlock()
	}
	return inst, client, nil
}

// Install records a new workspace installation, replacing any previous
// grant for the same team.
func (d *Directory) Install(ctx context.Context, inst models.Installation) error {
	if !inst.Valid() {
		return errors.New("installation is missing team id or token")
	}
	if err := d.store.Put(ctx, inst); err != nil {
		return err
	}
	// Drop the cached client so the next resolve picks up the new token.
	d.mu.Lock()
	delete(d.clients, inst.TeamID)
	d.mu.Unlock()
	return nil
}

// Uninstall removes a workspace. Subsequent resolves return
// ErrNotInstalled until the workspace reinstalls.
func (d *Directory) Uninstall(ctx context.Context, teamID string) error {
	if err := d.store.Delete(ctx, teamID); err != nil && !errors.Is(err, ErrNotInstalled) {
		return err
	}
	d.mu.Lock()
	delete(d.clients, teamID)
	d.mu.Unlock()
	return nil
}

// MemoryStore is the in-memory installation store used in single-workspace
// mode and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	installations map[string]models.Installation
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{installations: make(map[string]models.Installation)}
}

func (s *MemoryStore) Get(_ context.Context, teamID string) (models.Installation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inst, ok := s.installations[teamID]
	if !ok {
		return models.Installation{}, ErrNotInstalled
	}
	return inst, nil
}

func (s *MemoryStore) Put(_ context.Context, inst models.Installation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installations[inst.TeamID] = inst
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.installations[teamID]; !ok {
		return ErrNotInstalled
	}
	delete(s.installations, teamID)
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]models.Installation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Installation, 0, len(s.installations))
	for _, inst := range s.installations {
		out = append(out, inst)
	}
	return out, nil
}
