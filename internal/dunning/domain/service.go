package domain

import "context"

type ListNoticeRequest struct {
	InvoiceID string
}

type ListNoticeResponse struct {
	Notices []Notice `json:"notices"`
}

type Service interface {
	// CreateFirstNotice opens a level-1 chain against an unpaid invoice.
	// Fails with a conflict if the invoice is paid or a non-terminal notice
	// already exists for it.
	CreateFirstNotice(ctx context.Context, invoiceID string) (Notice, error)

	// CreateFollowUp escalates from a sent parent notice to the next level,
	// recomputing the claim from the current invoice balance. Level is
	// capped at MaxLevel.
	CreateFollowUp(ctx context.Context, parentNoticeID string) (Notice, error)

	// Submit moves a created notice into the approval queue.
	Submit(ctx context.Context, noticeID string) (Notice, error)

	// Approve and Reject move the approval gate. Approval permits the
	// transition to sent; a rejection is terminal for the notice but does
	// not block future notices.
	Approve(ctx context.Context, noticeID string) (Notice, error)
	Reject(ctx context.Context, noticeID string) (Notice, error)

	// MarkSent records that the external dispatcher delivered the notice.
	// Requires an approved notice.
	MarkSent(ctx context.Context, noticeID string) (Notice, error)

	// List returns the chain of an invoice, newest first.
	List(ctx context.Context, req ListNoticeRequest) (ListNoticeResponse, error)

	GetByID(ctx context.Context, noticeID string) (Notice, error)
}
