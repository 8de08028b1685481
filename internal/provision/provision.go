// Package provision defines the batches of guest commands that turn a fresh
// NetBSD install into a usable build machine.
//
// Each batch runs in its own boot, so a batch that changes boot-time
// configuration (rc.conf, dhcpcd.conf) takes effect for the next one.
package provision

import (
	"context"
	"fmt"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/firefly-engineering/netbsd-imager/internal/config"
	"github.com/firefly-engineering/netbsd-imager/internal/logging"
)

// Built-in batch names.
const (
	BatchNetwork  = "network"
	BatchPackages = "packages"
	BatchSettle   = "settle"
)

// Batch is an ordered list of commands run in one boot.
type Batch struct {
	Name     string
	Commands []string
}

// Runner runs one batch on a freshly booted guest.
type Runner interface {
	RunBatch(ctx context.Context, name string, commands []string) error
}

// NetworkCommands enables sshd and dhcpcd and restricts dhcpcd to IPv4.
// Every edit is guarded so re-running the batch is harmless.
func NetworkCommands() []string {
	return []string{
		ensureLine("sshd", "sshd=YES", "/etc/rc.conf", ">>"),
		ensureLine("dhcpcd", "dhcpcd=YES", "/etc/rc.conf", ">>"),
		ensureLine("ipv4only", "ipv4only", "/etc/dhcpcd.conf", ">> "),
	}
}

func ensureLine(pattern, line, file, redirect string) string {
	return fmt.Sprintf("grep -q %s %s || echo %s %s%s", pattern, file, line, redirect, file)
}

// PackageCommands installs pkgs from the binary package repository at
// pkgPath and installs the Mozilla CA bundle when it is among them.
func PackageCommands(pkgPath string, pkgs []string) []string {
	if len(pkgs) == 0 {
		return nil
	}

	cmds := []string{
		fmt.Sprintf("env PKG_PATH=%q pkg_add %s", pkgPath, shellquote.Join(pkgs...)),
	}
	for _, p := range pkgs {
		if p == "mozilla-rootcerts" {
			cmds = append(cmds, "mozilla-rootcerts install")
			break
		}
	}
	return cmds
}

// AuthorizedKeysCommands installs keys for user. root's home is /root;
// every other user is looked up in the guest.
func AuthorizedKeysCommands(user string, keys []string) []string {
	if len(keys) == 0 {
		return nil
	}

	home := "/root"
	if user != "root" {
		home = fmt.Sprintf("$(getent passwd %s | cut -d: -f6)", shellquote.Join(user))
	}
	dir := home + "/.ssh"
	file := dir + "/authorized_keys"

	cmds := []string{
		fmt.Sprintf("mkdir -p %s && chmod 700 %s", dir, dir),
	}
	for _, k := range keys {
		quoted := shellquote.Join(k)
		cmds = append(cmds, fmt.Sprintf("grep -qxF %s %s 2>/dev/null || echo %s >> %s", quoted, file, quoted, file))
	}
	cmds = append(cmds,
		fmt.Sprintf("chmod 600 %s", file),
		fmt.Sprintf("chown -R %s %s", shellquote.Join(user), dir),
	)
	return cmds
}

// DefaultPlan returns the built-in batches followed by the configured ones.
// Batches left without commands are dropped.
func DefaultPlan(cfg *config.Config, keys []string) []Batch {
	var plan []Batch

	if !cfg.Provision.SkipDefaults {
		network := append(NetworkCommands(), AuthorizedKeysCommands(cfg.Session.User, keys)...)
		plan = append(plan,
			Batch{Name: BatchNetwork, Commands: network},
			Batch{Name: BatchPackages, Commands: PackageCommands(cfg.Packages.Path, cfg.Packages.Names)},
			Batch{Name: BatchSettle, Commands: []string{"true"}},
		)
	}

	for _, b := range cfg.Provision.Batches {
		plan = append(plan, Batch{Name: b.Name, Commands: b.Commands})
	}

	kept := plan[:0]
	for _, b := range plan {
		if len(b.Commands) > 0 {
			kept = append(kept, b)
		}
	}
	return kept
}

// Select returns the batches of plan named in names, in plan order. An
// empty names selects the whole plan.
func Select(plan []Batch, names []string) ([]Batch, error) {
	if len(names) == 0 {
		return plan, nil
	}

	known := make(map[string]bool, len(plan))
	for _, b := range plan {
		known[b.Name] = true
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if !known[n] {
			return nil, fmt.Errorf("unknown batch %q (have %s)", n, strings.Join(Names(plan), ", "))
		}
		want[n] = true
	}

	var selected []Batch
	for _, b := range plan {
		if want[b.Name] {
			selected = append(selected, b)
		}
	}
	return selected, nil
}

// Names returns the batch names of plan.
func Names(plan []Batch) []string {
	names := make([]string, len(plan))
	for i, b := range plan {
		names[i] = b.Name
	}
	return names
}

// Apply runs every batch of plan in order. done reports batches to skip;
// completed is called after each batch succeeds.
func Apply(ctx context.Context, r Runner, plan []Batch, done func(string) bool, completed func(string) error) error {
	for i, b := range plan {
		if done != nil && done(b.Name) {
			logging.Info("batch already applied, skipping", "batch", b.Name)
			continue
		}

		logging.Info("applying batch", "batch", b.Name, "step", i+1, "of", len(plan), "commands", len(b.Commands))
		if err := r.RunBatch(ctx, b.Name, b.Commands); err != nil {
			return fmt.Errorf("batch %s: %w", b.Name, err)
		}

		if completed != nil {
			if err := completed(b.Name); err != nil {
				return err
			}
		}
	}
	return nil
}
