// Package strategy decides when request strategies may talk to the backend
// and collects their requests.
//
// Every strategy carries an Option set (its configuration) naming the
// conditions under which it may issue requests. The current application
// status is translated into the set of conditions that hold right now (the
// prerequisites). A strategy is asked for a request only if every
// prerequisite is part of its configuration:
//
//	Prerequisites(status).IsSubsetOf(configuration)
//
// A strategy configured with DoesNotAllowRequests never issues requests.
//
// # Example
//
// A strategy that fetches feature configs while online, during quick sync
// and in the background:
//
//	base := strategy.NewBase("feature-config",
//	    strategy.AllowsRequestsWhileOnline|
//	        strategy.AllowsRequestsDuringQuickSync|
//	        strategy.AllowsRequestsWhileInBackground,
//	    tracker, s.nextRequestIfAllowed)
//
// While the tracker reports ONLINE/BACKGROUND the prerequisites are
// online|background and the strategy is asked. During SLOW_SYNCING the
// prerequisite slow-sync is missing from the configuration and it is not.
//
// # Store
//
// Store asks its generators in registration order and returns the first
// request produced, so earlier strategies take priority.
package strategy
