package kernels

import (
	"errors"
	"sort"
	"strings"
	"testing"
)

func TestRegistryCounts(t *testing.T) {
	if got, want := len(Names(Batched)), len(batchedConfigs); got != want {
		t.Errorf("batched names = %d, want %d", got, want)
	}
	if got, want := len(Names(Grouped)), len(groupedConfigs); got != want {
		t.Errorf("grouped names = %d, want %d", got, want)
	}
}

func TestNamesSortedUnique(t *testing.T) {
	for _, kind := range []Kind{Batched, Grouped} {
		names := Names(kind)
		if !sort.StringsAreSorted(names) {
			t.Errorf("%v names not sorted", kind)
		}
		seen := make(map[string]bool, len(names))
		for _, name := range names {
			if seen[name] {
				t.Errorf("duplicate %v name %q", kind, name)
			}
			seen[name] = true
			if !strings.HasPrefix(name, "f8f8bf16_rowwise_"+kind.String()+"_") {
				t.Errorf("name %q does not carry the %v prefix", name, kind)
			}
		}
	}
}

func TestLookup(t *testing.T) {
	name := Name(Grouped, groupedConfigs[0])
	e, err := Lookup(Grouped, name)
	if err != nil {
		t.Fatalf("Lookup(%q): %v", name, err)
	}
	if e.Name != name || e.Kind != Grouped {
		t.Fatalf("Lookup(%q) = %+v", name, e)
	}

	_, err = Lookup(Grouped, "f8f8bf16_rowwise_grouped_512_512_128_1_1_1_t")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing kernel: err = %v, want ErrNotFound", err)
	}
	if !strings.Contains(err.Error(), "f8f8bf16_rowwise_grouped_512_512_128_1_1_1_t") {
		t.Errorf("lookup error should name the kernel: %v", err)
	}
}

func TestLookupIsKindScoped(t *testing.T) {
	name := Name(Batched, batchedConfigs[0])
	if _, err := Lookup(Batched, name); err != nil {
		t.Fatalf("Lookup(Batched, %q): %v", name, err)
	}
	if _, err := Lookup(Grouped, name); !errors.Is(err, ErrNotFound) {
		t.Fatalf("batched name under grouped kind: err = %v, want ErrNotFound", err)
	}
}

func TestEntriesMatchNames(t *testing.T) {
	for _, kind := range []Kind{Batched, Grouped} {
		entries := Entries(kind)
		names := Names(kind)
		if len(entries) != len(names) {
			t.Fatalf("%v: %d entries vs %d names", kind, len(entries), len(names))
		}
		for i, e := range entries {
			if e.Name != names[i] {
				t.Errorf("%v entry %d = %q, names[%d] = %q", kind, i, e.Name, i, names[i])
			}
			if e.Name != Name(e.Kind, e.Cfg) {
				t.Errorf("entry %q does not round-trip its config", e.Name)
			}
		}
	}
}
