package toolrun

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Requirement is a prerequisite a reviewer needs before it can run.
type Requirement interface {
	// Describe names the requirement for logs and listings.
	Describe() string
	// Check reports nil when the requirement is satisfied. Checks have no
	// side effects.
	Check(ctx context.Context, r Runner) error
}

// Version is a dotted major.minor.patch version.
type Version struct {
	Major, Minor, Patch int
}

var versionRe = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// ParseVersion accepts "14", "0.6" or "0.6.4". Missing parts are zero.
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) == 0 || len(parts) > 3 || parts[0] == "" {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("invalid version %q", s)
		}
		nums[i] = n
	}
	return Version{nums[0], nums[1], nums[2]}, nil
}

// MustVersion is ParseVersion for constants.
func MustVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FindVersion extracts the first x.y.z from tool output.
func FindVersion(out string) (Version, bool) {
	m := versionRe.FindStringSubmatch(out)
	if m == nil {
		return Version{}, false
	}
	var v Version
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	v.Patch, _ = strconv.Atoi(m[3])
	return v, true
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	a := [3]int{v.Major, v.Minor, v.Patch}
	b := [3]int{o.Major, o.Minor, o.Patch}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

func (v Version) IsZero() bool { return v == Version{} }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// DependencyError explains why a requirement is not met.
type DependencyError struct {
	Name   string
	Reason string
	// Credential marks a missing secret rather than a missing tool.
	Credential bool
	Err        error
}

func (e *DependencyError) Error() string {
	if e.Reason == "" {
		return "dependency " + e.Name + " unavailable"
	}
	return "dependency " + e.Name + ": " + e.Reason
}

func (e *DependencyError) Unwrap() error { return e.Err }

// Dependency is an executable with an optional version window.
type Dependency struct {
	Name string
	// Min and Max bound the version inclusively. Zero means unbounded.
	Min Version
	Max Version
	// VersionArgs defaults to --version.
	VersionArgs []string
	// Package is the distro package name when it differs from Name.
	Package string
	// Source is an optional fallback build when no package manager has it.
	Source *SourceBuild
}

func (d Dependency) Describe() string {
	var b strings.Builder
	b.WriteString(d.Name)
	if !d.Min.IsZero() {
		b.WriteString(" >= " + d.Min.String())
	}
	if !d.Max.IsZero() {
		b.WriteString(" <= " + d.Max.String())
	}
	return b.String()
}

const versionProbeTimeout = 10 * time.Second

// Check looks the binary up on PATH and, if bounded, verifies its version.
func (d Dependency) Check(ctx context.Context, r Runner) error {
	if _, err := lookPath(d.Name); err != nil {
		return &DependencyError{Name: d.Name, Reason: "not found on PATH", Err: ErrNotFound}
	}
	if d.Min.IsZero() && d.Max.IsZero() {
		return nil
	}

	args := d.VersionArgs
	if len(args) == 0 {
		args = []string{"--version"}
	}
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	res, err := r.Run(ctx, Command{Name: d.Name, Args: args})
	if err != nil {
		return &DependencyError{Name: d.Name, Reason: "version probe failed", Err: err}
	}
	v, ok := FindVersion(res.Combined())
	if !ok {
		return &DependencyError{Name: d.Name, Reason: "cannot parse version from " + strconv.Quote(firstLine(res.Combined()))}
	}
	if !d.Min.IsZero() && v.Compare(d.Min) < 0 {
		return &DependencyError{Name: d.Name, Reason: fmt.Sprintf("version %s is older than %s", v, d.Min)}
	}
	if !d.Max.IsZero() && v.Compare(d.Max) > 0 {
		return &DependencyError{Name: d.Name, Reason: fmt.Sprintf("version %s is newer than %s", v, d.Max)}
	}
	return nil
}

// EnvDependency is a required, non-empty environment variable holding a
// credential such as an API key.
type EnvDependency struct {
	Name string
}

func (e EnvDependency) Describe() string { return "$" + e.Name }

func (e EnvDependency) Check(context.Context, Runner) error {
	if strings.TrimSpace(os.Getenv(e.Name)) == "" {
		return &DependencyError{Name: e.Name, Reason: "environment variable not set", Credential: true}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
