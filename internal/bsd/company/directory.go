package company

import (
	"context"
	"sync"

	id "bordereau/pkg/domain"
)

// StaticDirectory is a map-backed DirectoryLookup. Establishments never
// registered resolve as open, so a deployment without a registry feed still
// accepts signatures while closures can be declared operationally.
type StaticDirectory struct {
	mu      sync.RWMutex
	entries map[id.Siret]Info
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{entries: make(map[id.Siret]Info)}
}

// Set records or replaces the directory entry for an establishment.
func (d *StaticDirectory) Set(info Info) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[info.Siret] = info
}

func (d *StaticDirectory) Lookup(_ context.Context, siret id.Siret) (*Info, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if info, ok := d.entries[siret]; ok {
		out := info
		return &out, nil
	}
	return &Info{Siret: siret, AdministrativeStatus: StatusOpen}, nil
}
