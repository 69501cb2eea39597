package version

import (
	"strings"
	"testing"
)

func TestGetPopulatesRuntimeFields(t *testing.T) {
	info := Get()
	if info.GoVersion == "" {
		t.Error("GoVersion should not be empty")
	}
	if info.Platform == "" {
		t.Error("Platform should not be empty")
	}
}

func TestStringFormatsDevBuildDistinctly(t *testing.T) {
	orig := Version
	Version = "dev"
	defer func() { Version = orig }()

	s := Get().String()
	if !strings.Contains(s, "dev") {
		t.Errorf("String() = %q, want it to mention dev build", s)
	}
}

func TestStringFormatsTaggedVersion(t *testing.T) {
	origV, origC, origB := Version, CommitHash, BuildTime
	Version, CommitHash, BuildTime = "1.2.3", "abcdef1", "2026-01-01"
	defer func() { Version, CommitHash, BuildTime = origV, origC, origB }()

	s := Get().String()
	if !strings.Contains(s, "1.2.3") || !strings.Contains(s, "abcdef1") {
		t.Errorf("String() = %q, want it to include version and commit", s)
	}
}

func TestShortTruncatesCommitHashToSevenChars(t *testing.T) {
	info := Info{CommitHash: "abcdef1234567"}
	if got := info.Short(); got != "abcdef1" {
		t.Errorf("Short() = %q, want abcdef1", got)
	}
}

func TestShortReturnsFullHashWhenShorterThanSeven(t *testing.T) {
	info := Info{CommitHash: "abc"}
	if got := info.Short(); got != "abc" {
		t.Errorf("Short() = %q, want abc", got)
	}
}
