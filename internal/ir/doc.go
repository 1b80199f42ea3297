// Package ir provides the intermediate representation of a parsed consensus
// protocol.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal, so it remains the foundational
// layer with no circular dependencies.
//
// Expression, predicate and update-rule trees are closed sum types: each is
// a sealed interface implemented only by the node types in this package.
// Consumers (the compiler and the canonical encoder) dispatch with exhaustive
// type switches and report unknown node types as errors.
//
// Key design constraints:
//   - A ProtocolIR is immutable after parsing; it is reused across a whole
//     probability sweep.
//   - JSON renderings use snake_case keys and go through Canonical so that
//     ProtocolHash is stable across runs and platforms.
package ir
