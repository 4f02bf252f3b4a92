// Package version reports which quicchat build is running.
//
// Release builds inject the tag, commit, and date:
//
//	go build -ldflags "-X github.com/NicolasHaas/quicchat/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/quicchat/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/quicchat/pkg/version.date=2026-01-01"
//
// Without ldflags the VCS stamp the Go toolchain embeds is used instead.
package version

import (
	"runtime/debug"
	"sync"
)

// Populated by -ldflags "-X ...".
var (
	tag    = ""
	commit = ""
	date   = ""
)

// Build describes one binary.
type Build struct {
	Tag    string // git tag, empty if not on a tag
	Commit string // short commit SHA
	Date   string // build or commit date
	Dirty  bool   // built from a modified tree
}

var current = sync.OnceValue(func() Build {
	b := Build{Tag: tag, Commit: commit, Date: date}
	if b.Commit == "" {
		b.Commit, b.Date, b.Dirty = vcsStamp()
	}
	return b
})

// Current returns this binary's build info.
func Current() Build { return current() }

// String returns the tag, else the commit, else "dev".
func (b Build) String() string {
	switch {
	case b.Tag != "":
		return b.Tag
	case b.Commit != "" && b.Dirty:
		return b.Commit + "-dirty"
	case b.Commit != "":
		return b.Commit
	default:
		return "dev"
	}
}

// Banner formats a one-line version report for binary.
func (b Build) Banner(binary string) string {
	s := binary + " " + b.String()
	if b.Tag != "" && b.Commit != "" {
		s += " (" + b.Commit + ")"
	}
	if b.Date != "" {
		s += " built " + b.Date
	}
	return s
}

func vcsStamp() (rev, at string, dirty bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", "", false
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.time":
			at = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	return rev, at, dirty
}
