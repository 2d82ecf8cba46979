package port

import "context"

type FailureNotice struct {
	UserEmail string
	JobID     string
	VideoKey  string
	Reason    string
	Message   string
}

type FailureNotifier interface {
	NotifyFailure(ctx context.Context, notice FailureNotice) error
}
