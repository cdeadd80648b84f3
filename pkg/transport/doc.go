// Package transport defines the backend requests produced by request
// strategies and the session that executes them.
//
// A Request is created by a strategy, handed to the operation loop and sent
// through a Session. The Response is delivered back to the strategy through
// the completion handlers registered on the request:
//
//	req := transport.NewRequest(http.MethodGet, "/teams/"+teamID+"/features")
//	req.AddCompletionHandler(func(resp *transport.Response) {
//	    if resp.Result() != transport.ResultSuccess {
//	        return
//	    }
//	    ...
//	})
//
// # Result Classification
//
//   - 2xx: success
//   - 408, 429, 5xx: temporary error, the request may be retried
//   - other 4xx: permanent error
//   - transport failure after the deadline: expired
package transport
