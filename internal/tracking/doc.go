// Package tracking follows a long-running server-side batch job from a thin
// client. The server exposes no per-job status, so progress is estimated by
// polling an aggregate counter and subtracting the value captured just before
// submission.
//
// A Tracker owns one resource kind. Starting a job persists a Descriptor in a
// single durable slot and starts a Session that polls on a fixed cadence
// until the counter shows the target was reached or the attempt budget runs
// out. Tearing the client down mid-flight keeps the slot, and the
// ResumeCoordinator picks the job up again on the next start if the slot is
// younger than the TTL.
package tracking
