// Package delivery decides which messages of a round reach their receiver.
//
// Messages occupy canonical slots: sender ascending, then receiver
// ascending, skipping self-messages. A Model turns a delivery probability
// and an RNG into one bool per slot. A Plan assigns a Model to every sender
// and resolves per-process overrides against the global default.
//
// Guaranteed models draw exactly like Standard; their minimum-message
// constraint is checked after a whole run by Guaranteed.Satisfied.
package delivery
