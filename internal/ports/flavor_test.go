package ports

import (
	"errors"
	"testing"

	pkgerrors "github.com/freebsd-sec/pysec2vuxml/internal/errors"
)

func TestSplitFlavor(t *testing.T) {
	tests := []struct {
		name          string
		portName      string
		wantFlavor    Flavor
		wantCanonical string
		wantErr       bool
	}{
		{
			name:          "python3 flavor",
			portName:      "py39-requests",
			wantFlavor:    Flavor{Major: 3, Minor: 9},
			wantCanonical: "requests",
		},
		{
			name:          "two digit minor",
			portName:      "py311-rencode",
			wantFlavor:    Flavor{Major: 3, Minor: 11},
			wantCanonical: "rencode",
		},
		{
			name:          "python2 flavor",
			portName:      "py27-yaml",
			wantFlavor:    Flavor{Major: 2, Minor: 7},
			wantCanonical: "yaml",
		},
		{
			name:          "version suffixed fork stays distinct",
			portName:      "py39-sqlalchemy14",
			wantFlavor:    Flavor{Major: 3, Minor: 9},
			wantCanonical: "sqlalchemy14",
		},
		{
			name:          "canonical name with hyphens",
			portName:      "py38-python-dateutil",
			wantFlavor:    Flavor{Major: 3, Minor: 8},
			wantCanonical: "python-dateutil",
		},
		{
			name:     "no flavor prefix",
			portName: "rust",
			wantErr:  true,
		},
		{
			name:     "lua prefix is not a python flavor",
			portName: "lua53-lpeg",
			wantErr:  true,
		},
		{
			name:     "prefix without canonical name",
			portName: "py39-",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flavor, canonical, err := SplitFlavor(tt.portName)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SplitFlavor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, pkgerrors.ErrMalformedIdentifier) {
					t.Errorf("SplitFlavor() error = %v, want ErrMalformedIdentifier", err)
				}
				return
			}
			if flavor != tt.wantFlavor {
				t.Errorf("SplitFlavor() flavor = %v, want %v", flavor, tt.wantFlavor)
			}
			if canonical != tt.wantCanonical {
				t.Errorf("SplitFlavor() canonical = %q, want %q", canonical, tt.wantCanonical)
			}
		})
	}
}

func TestFlavorString(t *testing.T) {
	f := Flavor{Major: 3, Minor: 11}
	if f.String() != "py311" {
		t.Errorf("String() = %q, want %q", f.String(), "py311")
	}
	if f.Prefix() != "py311-" {
		t.Errorf("Prefix() = %q, want %q", f.Prefix(), "py311-")
	}
}

func TestFlavorRange(t *testing.T) {
	r := FlavorRange{Major: 3, FirstMinor: 7, LastMinor: 11}

	flavors := r.Flavors()
	if len(flavors) != 5 {
		t.Fatalf("Flavors() returned %d flavors, want 5", len(flavors))
	}
	if flavors[0].String() != "py37" || flavors[4].String() != "py311" {
		t.Errorf("Flavors() = %v", flavors)
	}

	if !r.Contains(Flavor{Major: 3, Minor: 9}) {
		t.Error("range should contain py39")
	}
	if r.Contains(Flavor{Major: 2, Minor: 7}) {
		t.Error("range should not contain py27")
	}
	if r.Contains(Flavor{Major: 3, Minor: 12}) {
		t.Error("range should not contain py312")
	}
}
