package kernels

import (
	"fmt"
	"sort"
)

// The registry is built once from the catalogue and is immutable, so lookups
// need no locking.
var registry = func() map[string]Entry {
	reg := make(map[string]Entry, len(batchedConfigs)+len(groupedConfigs))
	add := func(kind Kind, cfgs []Config) {
		for _, cfg := range cfgs {
			name := Name(kind, cfg)
			if _, dup := reg[name]; dup {
				panic("duplicate kernel variant " + name)
			}
			reg[name] = Entry{Name: name, Kind: kind, Cfg: cfg}
		}
	}
	add(Batched, batchedConfigs)
	add(Grouped, groupedConfigs)
	return reg
}()

// Lookup resolves a kernel name within one kind. A name registered under the
// other kind still reports ErrNotFound.
func Lookup(kind Kind, name string) (Entry, error) {
	e, ok := registry[name]
	if !ok || e.Kind != kind {
		return Entry{}, fmt.Errorf("%w: no %s kernel named %q", ErrNotFound, kind, name)
	}
	return e, nil
}

// Names returns the sorted kernel names of one kind.
func Names(kind Kind) []string {
	out := make([]string, 0, len(registry))
	for name, e := range registry {
		if e.Kind == kind {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Entries returns the entries of one kind, sorted by name.
func Entries(kind Kind) []Entry {
	out := make([]Entry, 0, len(registry))
	for _, e := range registry {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
