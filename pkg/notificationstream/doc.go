// Package notificationstream fetches queued notification events from the
// backend when a push notification announces them.
//
// PushStatus tracks the event IDs announced by push notifications. While
// any are outstanding the application status reports that the notification
// stream is being fetched, which is what
// AllowsRequestsDuringNotificationStreamFetch gates on. Sync pages through
// GET /notifications until the announced events have arrived and hands the
// decoded events to a Delegate.
package notificationstream
