// Package core defines the shared language of the leapcheck system.
//
// This package contains:
//   - Rule contracts (Rule, QueryRule, RowSetRule) and their metadata
//   - Run identity (RunContext) and outcomes (RuleResult)
//   - Store contract types (AdapterConfig, Conn, Row, Statement)
//   - The error taxonomy shared by the registry, engine and aggregator
//
// The Golden Rule: pkg/core imports ONLY the standard library.
// All other packages depend on core, not the reverse.
package core
