// Package textutil provides the small text helpers shared by the pipeline:
// deterministic record naming and filename sanitization.
//
// Record names are built from the subject's display name, external id, and
// session date. Accents are folded with golang.org/x/text so that the same
// session always maps to the same ASCII slug.
package textutil
