// Package conformance runs end-to-end scenarios against component
// binaries: load, instantiate in the scenario's mode, call exports and
// check the results.
//
// A scenario declares its options the way test sources do, with a header
// line such as
//
//	// Flags: --instantiation sync
//
// and records assertions on a T. The Suite runs scenarios, optionally in
// parallel, and returns a Report:
//
//	load, _ := conformance.FixtureLoader()
//	suite := &conformance.Suite{Runtime: rt, Load: load, Scenarios: conformance.Builtin()}
//	report, err := suite.Run(ctx)
//	if err != nil || !report.Passed() {
//		fmt.Print(report)
//	}
package conformance
