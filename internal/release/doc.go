// Package release locates NetBSD nightly builds on the FTP mirror.
//
// The daily tree is laid out as <root>/<branch>/<YYYYMMDDhhmmZ>/<arch>/.
// Locator lists the dated directories of a branch newest first and picks
// the first one that carries the requested architecture; the result is
// turned into the HTTPS URL anita installs from.
package release
