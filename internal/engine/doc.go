// Package engine downloads a single resource from an ordered list of
// mirrors. The resource is split into byte ranges that are fetched
// concurrently, each worker retrying on its mirror before moving to the
// next one from the offset it reached. Completed ranges are merged into the
// destination and optionally checked against a digest.
//
// A Task goes through created, connecting, downloading (and paused), then
// one of finished, stopped or failed. Every failure is kept as a TaskError
// whose Kind can be matched with errors.Is against the Err* sentinels.
package engine
