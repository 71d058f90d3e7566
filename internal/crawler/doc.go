// Package crawler walks a remote directory tree breadth-first, catalogs every file link
// it recognizes, and records the URLs it could not catalog cleanly. Each crawl runs in a
// detached goroutine and stops cooperatively when a cancellation request is recorded
// for it.
package crawler
