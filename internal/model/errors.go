package model

import "fmt"

// NetworkError is a transport failure that survived every retry attempt.
type NetworkError struct {
	Op         string
	Attempts   int
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("network error: %s: status %d after %d attempts", e.Op, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("network error: %s after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// RPCError is a JSON-RPC error envelope. The server understood and rejected
// the request, so it is never retried.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// CommitError wraps a failed atomic storage batch.
type CommitError struct {
	ChainID uint64
	Err     error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("commit chain %d: %v", e.ChainID, e.Err)
}

func (e *CommitError) Unwrap() error { return e.Err }
