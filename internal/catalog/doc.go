// Package catalog resolves workpiece attributes that are not carried in
// the telemetry stream itself, currently the material of a piece.
//
// Lookups hit an optional SQLite catalog first and fall back to a piece
// ID prefix heuristic when the catalog is disabled or has no row for
// the piece. The heuristic mirrors the plant's numbering scheme: early
// PZ00 batches are steel, PZ01 batches are aluminium.
package catalog
