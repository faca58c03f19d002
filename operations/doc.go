// Package operations orchestrates a split or recovery as a strict forward
// pipeline: INITIALIZE, SPLIT, VERIFY, RECONSTRUCT.
//
// The pipeline is a plain value. Each stage is a method that takes the
// current state and returns the next one together with a Result, so callers
// can log, persist or discard intermediate states freely:
//
//	p, res := operations.Initialize(operations.NewContext(3, 5))
//	if !res.Success {
//		return res.AsError()
//	}
//	p, res, payloads := p.Split(secret, shamir.SplitBytes)
//
// A failed stage halts the pipeline; every later transition returns the
// halting result again. Nothing is retried.
package operations
