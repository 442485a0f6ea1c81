// Package dedupe drops redelivered engine payloads using a TTL cache of
// event fingerprints with a bounded size.
package dedupe
