// Package notifier is the outbound side of the bot: direct messages, channel
// posts, channel membership changes and admin notifications.
//
// Every call is synchronous and rate limited. Platform failures are returned
// as apperr.ExternalServiceError and are never retried here; callers decide
// whether a failure is fatal (see the workflow packages).
package notifier
