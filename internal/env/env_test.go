package env

import (
	"slices"
	"testing"
)

func TestMergeOverridesAndSorts(t *testing.T) {
	e := FromList([]string{"PATH=/bin", "HOME=/home/ana", "bad", "=C:=C:\\"})
	got := e.Merge([]string{"PORT=0", "HOME=/tmp"})
	want := []string{"HOME=/tmp", "PATH=/bin", "PORT=0"}
	if !slices.Equal(got, want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
}

func TestMergeExpandsOverrides(t *testing.T) {
	e := FromList([]string{"HOME=/home/ana", "RAW=${HOME}"})
	got := e.Merge([]string{
		"DATA_DIR=${HOME}/.hcdesk",
		"MISSING=${NOPE}x",
		"LITERAL=$HOME",
	})
	want := []string{
		"DATA_DIR=/home/ana/.hcdesk",
		"HOME=/home/ana",
		"LITERAL=$HOME",
		"MISSING=x",
		"RAW=${HOME}",
	}
	if !slices.Equal(got, want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
}

func TestMergeLaterOverrideWins(t *testing.T) {
	if got := FromList(nil).Merge([]string{"A=1", "A=2"}); !slices.Equal(got, []string{"A=2"}) {
		t.Fatalf("Merge = %v", got)
	}
}

func TestFromOS(t *testing.T) {
	t.Setenv("HCDESK_ENV_TEST", "yes")
	got := FromOS().Merge([]string{"X=${HCDESK_ENV_TEST}"})
	if !slices.Contains(got, "HCDESK_ENV_TEST=yes") || !slices.Contains(got, "X=yes") {
		t.Fatalf("Merge = %v", got)
	}
}
