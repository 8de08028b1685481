// Package config provides configuration types and loading for netbsd-imager.
//
// # Configuration Files
//
// A build is described by a single file, TOML by default or YAML when the
// file name ends in .yaml or .yml. Every field has a default, so an empty
// file (or no file at all) reproduces the classic netbsd-8/amd64 build:
//
//	branch = "netbsd-8"
//	arch   = "amd64"
//
//	[machine]
//	disk_size   = "24G"
//	memory_size = "4G"
//
//	[packages]
//	path  = "http://cdn.NetBSD.org/pub/pkgsrc/packages/NetBSD/amd64/8.1/All/"
//	names = ["cmake", "git"]
//
//	[[provision.batch]]
//	name     = "motd"
//	commands = ["echo built by netbsd-imager > /etc/motd"]
//
// # Build State
//
// BuildState tracks pipeline progress in <workdir>/build.json: the release
// being built, when it was installed, and which provisioning batches have
// completed. Selecting a different release resets it.
//
// # Validation
//
// All configuration sections implement Validate() to check for required
// fields and valid values. Load validates after parsing.
package config
