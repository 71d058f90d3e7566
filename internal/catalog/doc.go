// Package catalog defines the media catalog domain: files, probe history, crawl and
// check jobs, diagnostics, and the ports the background subsystems depend on.
package catalog
