// Package ebml implements a generic recursive-descent parser for the
// Extensible Binary Meta Language, the tag/length/value encoding under
// Matroska and WebM. It has no knowledge of WebM element semantics.
//
// The central type is [Element], a parsed element identifier plus the byte
// span of its payload. Payloads are interpreted on demand with
// [Element.Uint], [Element.Float] and [Element.Parser]; nested elements are
// never materialized eagerly.
package ebml
