// Package retry classifies unit-of-work failures and re-admits the
// transient ones to the queue with exponential backoff. Permanent
// failures and units past their retry ceiling are pinned as
// dead-letters for operator attention.
package retry
