// Package depcheck evaluates proposed layer imports against an architecture
// spec. Each layer's allow-list is fail-closed: a target that is neither in
// canImport nor cannotImport is denied. When the spec declares a
// unidirectional flow, edges must also follow the order of base.layers; the
// two checks are independent and both are reported for the same edge.
package depcheck
