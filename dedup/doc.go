// Package dedup detects duplicate task deliveries.
//
// Webhook providers redeliver events, so the intake path fingerprints
// every task by its source and content identifiers and checks whether
// the same fingerprint was already processed within the dedup window.
// Duplicates are marked ignored rather than failed: they count toward
// neither error rates nor retries.
//
// Two index implementations ship with the engine: StoreIndex scans
// recently completed tasks in the task store (no extra infrastructure),
// and RedisIndex keeps a TTL'd fingerprint set in Redis for high
// intake volumes.
package dedup
