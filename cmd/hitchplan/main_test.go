package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseGrid(t *testing.T) {
	name, values, err := parseGrid("r_u=0.1, 1,10")
	if err != nil {
		t.Fatal(err)
	}
	if name != "r_u" {
		t.Errorf("expected r_u, got %s", name)
	}
	if diff := cmp.Diff([]float64{0.1, 1, 10}, values); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"r_u", "=1,2", "r_u=", "r_u=1,x"} {
		if _, _, err := parseGrid(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
