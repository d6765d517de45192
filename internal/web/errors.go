package web

import (
	"context"
	"errors"
	"net/http"

	"fashion-script-studio/internal/adapter"
	"fashion-script-studio/internal/workflow"
)

type apiError struct {
	Code    string          `json:"code"`
	Error   string          `json:"error"`
	Message string          `json:"message,omitempty"`
	State   *workflow.State `json:"state,omitempty"`
}

var errorTable = []struct {
	err    error
	status int
	code   string
}{
	{workflow.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{workflow.ErrCredentialRequired, http.StatusBadRequest, "credential_required"},
	{workflow.ErrWrongStage, http.StatusConflict, "wrong_stage"},
	{workflow.ErrInFlight, http.StatusConflict, "in_flight"},
	{workflow.ErrStaleResult, http.StatusConflict, "stale_result"},
	{workflow.ErrProductNameRequired, http.StatusUnprocessableEntity, "product_name_required"},
	{workflow.ErrNoSelection, http.StatusUnprocessableEntity, "no_selection"},
	{workflow.ErrInvalidConfig, http.StatusUnprocessableEntity, "invalid_config"},
	{workflow.ErrUnknownScript, http.StatusNotFound, "unknown_script"},
	{workflow.ErrQuotaExceeded, http.StatusTooManyRequests, "quota_exceeded"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

func statusFor(err error) (int, string) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	var ae *adapter.Error
	if errors.As(err, &ae) {
		if ae.Kind == adapter.KindCredential {
			return http.StatusUnauthorized, "credential_rejected"
		}
		return http.StatusBadGateway, "generation_failed"
	}
	return http.StatusInternalServerError, "internal"
}
