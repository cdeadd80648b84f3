// Package appstatus tracks the client environment that decides whether
// request strategies may talk to the backend.
//
// The environment has three independent dimensions:
//   - Sync state: unauthenticated, slow sync, quick sync, online
//   - Operation state: foreground or background
//   - Whether queued notification events are being fetched
//
// # Usage
//
//	tracker := appstatus.NewTracker()
//	tracker.OnChange(func(old, current appstatus.Status) {
//	    loop.NewRequestsAvailable()
//	})
//	tracker.SetSyncState(appstatus.SyncStateSlowSyncing)
//
// Snapshots are plain values and safe to pass between goroutines.
package appstatus
