// Package operationloop drives request strategies: it asks the request
// store for the next request, sends it and delivers the response back.
//
// The loop runs a single worker goroutine. It is woken by
// NewRequestsAvailable (coalesced, so many calls while the worker is busy
// result in one more pass) and by application status changes. Each pass
// drains the store until no strategy has anything to send.
//
// # Temporary Failures
//
// When the backend answers with a temporary error (5xx, 408, 429) or the
// connection fails, the loop stops draining and schedules another pass
// after an exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Reset to 1s after the next successful response
//
// Each delay gets up to 25% random jitter added.
package operationloop
