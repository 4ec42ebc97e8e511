/*
Package rendercache provides a disk-backed cache for rendered image
artifacts, indexed in a SQLite database.

Artifacts are keyed by (asset path, resolved pixel size, content
fingerprint), so a change to a source file automatically supersedes every
cached rendering of it: the new fingerprint simply misses the cache. Writes
are published atomically via rename, which means readers never observe a
half-written artifact, and a per-key lock ensures that concurrent first-time
requests for the same key perform the expensive render only once. Superseded
entries stay on disk until Prune is called.
*/
package rendercache
