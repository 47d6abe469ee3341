// Package poster is the action sink the scheduler fires into.
//
// A Service wraps one transport (Chatwork or Telegram) with a token-bucket
// rate limit, a bounded per-call timeout and optional retries. Every failure
// it returns wraps ErrSinkFailure.
//
// # History
//
// For operator visibility the service keeps a small in-memory history of the
// most recent deliveries, successful or not.
package poster
