// Package cache defines the disk-backed store used for rendered page
// snapshots. Entries live under StoragePath/<namespace>/<xx>/<sha256(key)>;
// writes go through a temp file + rename so readers never see partial
// bodies, and file info (size, modtime) backs TTL based freshness checks.
package cache
