// Package rerr defines the closed set of error kinds the rule engine
// propagates, following the teacher's small-sentinel style
// (miner.errBlockInterruptedByNewHead and friends): package-level
// errors.New values, wrapped with context via fmt.Errorf("...: %w", err)
// at call sites and compared with errors.Is.
package rerr

import "errors"

var (
	// ErrDecode means a raw broker payload could not be parsed into a
	// Transaction. The message is dropped; the pipeline continues.
	ErrDecode = errors.New("decode error")

	// ErrCatalog means the rule store was unreachable or a row was
	// malformed during a reload. The previous snapshot remains in place.
	ErrCatalog = errors.New("catalog error")

	// ErrEvaluation means a single rule timed out, failed to compile a
	// regex, or hit an arithmetic overflow during evaluation. Sibling
	// rules are unaffected.
	ErrEvaluation = errors.New("evaluation error")

	// ErrPublish means the output broker rejected or timed out on an
	// alert publish. Retried once, then dropped and counted.
	ErrPublish = errors.New("publish error")

	// ErrConsume means the input broker returned an error on receive.
	// The driver sleeps one second and retries.
	ErrConsume = errors.New("consume error")

	// ErrConfig is fatal at startup only.
	ErrConfig = errors.New("config error")
)
