package backend

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", Auto, false},
		{"auto", Auto, false},
		{"host", Host, false},
		{"HOST", Host, false},
		{" cuda ", CUDA, false},
		{"opencl", "", true},
		{"cpu", "", true},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("Normalize(%q) accepted, want error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("Normalize(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestAvailableAlwaysListsHost(t *testing.T) {
	if got := Available(); !strings.Contains(got, Host) {
		t.Errorf("Available() = %q, missing %q", got, Host)
	}
}

func TestOpenHost(t *testing.T) {
	dev, err := Open(Host, "")
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	if dev.Name() != Host {
		t.Errorf("Name() = %q, want %q", dev.Name(), Host)
	}
}

// Auto without a kernel image can never pick cuda; the grouped setup kernels
// only exist inside an image.
func TestOpenAutoWithoutImage(t *testing.T) {
	dev, err := Open(Auto, "")
	if err != nil {
		t.Fatal(err)
	}
	defer dev.Close()
	if dev.Name() != Host {
		t.Errorf("Name() = %q, want %q", dev.Name(), Host)
	}
}

func TestOpenUnknown(t *testing.T) {
	if _, err := Open("metal", ""); err == nil {
		t.Fatal("unknown backend accepted")
	}
}
