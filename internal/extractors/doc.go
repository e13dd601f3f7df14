// Package extractors provides implementations of the Extractor interface
// for the supported document types. Each extractor parses one format into
// provenance-tagged chunk drafts and can cut a page or block range back out
// of the original bytes as a standalone document.
//
// Extractors are registered with the Registry at startup.
package extractors
