// Package testutil provides test fixtures and utilities.
//
// # Fixtures
//
// Fixtures are embedded using go:embed:
//
//	fixtures/valid_config.toml
//	fixtures/valid_config.yaml
//	fixtures/invalid_config.toml
//	fixtures/build_state.json
//
// Config fixtures are decoded on top of config.Default without validation:
//
//	cfg, err := testutil.ValidConfig()
//	cfg, err := testutil.InvalidConfig()
//	state, err := testutil.PartialBuildState()
//
// # Test Environment
//
// NewTestEnv installs an app.App whose executor, guest, and mirror are
// fakes, and makes it the default for the duration of the test:
//
//	env := testutil.NewTestEnv(t)
//	defer env.Cleanup()
//	env.Shell.Results["pkg_add git"] = sessiontest.Result{Status: 1}
package testutil
