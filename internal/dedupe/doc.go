// Package dedupe remembers idempotency keys for a bounded time window so a
// retried request can be answered with the result of the first attempt.
//
// The cache is in-process only; keys are lost on restart and are not shared
// between gateway instances.
package dedupe
