package webhooks

// Result tells the controller what a handled delivery amounted to. All of
// these map to a 200 response; PSPs only retry on non-2xx.
type Result string

const (
	// ResultSettled means the payment was reconciled as succeeded.
	ResultSettled Result = "settled"
	// ResultFailed means the payment was reconciled as failed.
	ResultFailed Result = "failed"
	// ResultIgnored means the event type is not one this core acts on.
	ResultIgnored Result = "ignored"
	// ResultDuplicate means the delivery was already processed.
	ResultDuplicate Result = "duplicate"
)
