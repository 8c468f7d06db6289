package toolrun

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// SourceBuild clones and installs a tool when packages are unavailable.
type SourceBuild struct {
	Repo string
	Ref  string
}

type packageManager struct {
	name    string
	refresh []string
	install []string
}

var packageManagers = []packageManager{
	{name: "apt-get", refresh: []string{"update"}, install: []string{"install", "-y"}},
	{name: "dnf", install: []string{"install", "-y"}},
	{name: "yum", install: []string{"install", "-y"}},
	{name: "zypper", install: []string{"--non-interactive", "install"}},
	{name: "pacman", install: []string{"-Sy", "--noconfirm"}},
}

// Install attempts to satisfy req. Environment requirements cannot be
// installed and return their check error. Success is confirmed by running the
// check again.
func Install(ctx context.Context, r Runner, req Requirement, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := req.Check(ctx, r); err == nil {
		return nil
	}
	dep, ok := req.(Dependency)
	if !ok {
		return req.Check(ctx, r)
	}

	pkg := dep.Package
	if pkg == "" {
		pkg = dep.Name
	}
	var errs []error
	for _, pm := range packageManagers {
		if _, err := lookPath(pm.name); err != nil {
			continue
		}
		logger.Info("installing dependency", zap.String("dep", dep.Name), zap.String("via", pm.name))
		if len(pm.refresh) > 0 {
			if _, err := runChecked(ctx, r, sudo(pm.name, pm.refresh...)); err != nil {
				errs = append(errs, err)
			}
		}
		args := append(append([]string{}, pm.install...), pkg)
		if _, err := runChecked(ctx, r, sudo(pm.name, args...)); err != nil {
			errs = append(errs, err)
			continue
		}
		err := dep.Check(ctx, r)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}

	if dep.Source != nil {
		err := buildFromSource(ctx, r, dep, logger)
		if err == nil {
			if err = dep.Check(ctx, r); err == nil {
				return nil
			}
		}
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		errs = append(errs, errors.New("no supported package manager found"))
	}
	return &DependencyError{Name: dep.Name, Reason: "install failed", Err: errors.Join(errs...)}
}

func buildFromSource(ctx context.Context, r Runner, dep Dependency, logger *zap.Logger) error {
	dir, err := os.MkdirTemp("", "patchwise-"+dep.Name+"-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	logger.Info("building dependency from source", zap.String("dep", dep.Name), zap.String("repo", dep.Source.Repo))
	clone := []string{"clone", "--depth", "1"}
	if dep.Source.Ref != "" {
		clone = append(clone, "--branch", dep.Source.Ref)
	}
	clone = append(clone, dep.Source.Repo, dir)
	steps := []Command{
		{Name: "git", Args: clone},
		{Name: "make", Args: []string{"-C", dir}},
		withDir(sudo("make", "-C", dir, "install"), dir),
	}
	for _, c := range steps {
		if _, err := runChecked(ctx, r, c); err != nil {
			return err
		}
	}
	return nil
}

func runChecked(ctx context.Context, r Runner, c Command) (Result, error) {
	res, err := r.Run(ctx, c)
	if err != nil {
		return res, err
	}
	if res.ExitCode != 0 {
		return res, fmt.Errorf("%s exited %d: %s", c, res.ExitCode, firstLine(res.Stderr))
	}
	return res, nil
}

func sudo(name string, args ...string) Command {
	if os.Geteuid() == 0 {
		return Command{Name: name, Args: args}
	}
	return Command{Name: "sudo", Args: append([]string{name}, args...)}
}

func withDir(c Command, dir string) Command {
	c.Dir = dir
	return c
}
