// Package harness runs declarative workflow scenarios for conformance
// testing.
//
// A scenario is a YAML file describing a closing transaction: documents to
// record up front, a flow of step actions to execute, and assertions over
// the resulting progress state and audit trail. Scenarios run against an
// in-memory store with a deterministic clock and stubbed collaborators, so
// the same scenario always produces byte-identical traces suitable for
// golden-file comparison.
//
// Typical use in a test:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/happy-path.yaml")
//	require.NoError(t, err)
//	result, err := harness.Run(scenario)
//	require.NoError(t, err)
//	require.NoError(t, harness.Check(result))
//	harness.AssertGolden(t, result)
package harness
