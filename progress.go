package ftpclient

// ProgressContext is handed to the progress callback on every call.
type ProgressContext struct {
	// Owner is the value given to SetProgressFunc.
	Owner any

	// Client is the client running the transfer.
	Client *Client
}

// ProgressFunc is called periodically during a transfer with the expected
// and current byte counts. Totals are 0 when unknown. Returning a non-nil
// error aborts the transfer; the operation then fails with
// CodeAbortedByCallback.
//
// Example:
//
//	client.SetProgressFunc(bar, func(p *ftpclient.ProgressContext, dlTotal, dlNow, ulTotal, ulNow int64) error {
//	    p.Owner.(*ProgressBar).Set(dlNow, dlTotal)
//	    return nil
//	})
type ProgressFunc func(p *ProgressContext, dlTotal, dlNow, ulTotal, ulNow int64) error
