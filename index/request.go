package index

import (
	"time"
)

// settings
type RequestSettings struct {
	Timeout      time.Duration
	DefaultLimit int
	MaxLimit     int
}

// requests
type SortType string

const (
	DESC SortType = "desc"
	ASC  SortType = "asc"
)

type LimitRequest struct {
	Limit  *int32    `query:"limit"`
	Offset *int32    `query:"offset"`
	Sort   *SortType `query:"sort"`
}

type TransactionRequest struct {
	Address *AddressHash `query:"address"`
	Status  *string      `query:"status"`
}

type NodeRequest struct {
	NodeType *string `query:"node_type"`
}

// Normalize clamps the limit into [1, MaxLimit] and fills defaults.
func (lim *LimitRequest) Normalize(settings RequestSettings) error {
	if lim.Limit == nil {
		lim.Limit = new(int32)
		*lim.Limit = int32(settings.DefaultLimit)
	}
	if *lim.Limit < 1 {
		return RequestError{Code: 422, Message: "limit should be positive"}
	}
	if settings.MaxLimit > 0 && *lim.Limit > int32(settings.MaxLimit) {
		*lim.Limit = int32(settings.MaxLimit)
	}
	if lim.Offset != nil && *lim.Offset < 0 {
		return RequestError{Code: 422, Message: "offset should be non-negative"}
	}
	if lim.Sort == nil {
		sort := DESC
		lim.Sort = &sort
	}
	if *lim.Sort != DESC && *lim.Sort != ASC {
		return RequestError{Code: 422, Message: "sort should be asc or desc"}
	}
	return nil
}

func (req *TransactionRequest) Validate() error {
	if req.Status == nil {
		return nil
	}
	switch TransactionStatus(*req.Status) {
	case StatusPending, StatusConfirmed:
		return nil
	}
	return RequestError{Code: 422, Message: "status should be PENDING or CONFIRMED"}
}
