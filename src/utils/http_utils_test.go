package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/username/limoney/backend/src/apperrors"
)

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSendAppErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{apperrors.Validation("INVALID_AMOUNT", "amount must be greater than 0"), http.StatusBadRequest, "INVALID_AMOUNT"},
		{apperrors.NotFound("request not found"), http.StatusNotFound, "NOT_FOUND"},
		{apperrors.Forbidden("admin access required"), http.StatusForbidden, "FORBIDDEN"},
		{apperrors.Conflict("ALREADY_PROCESSED", "request is no longer pending"), http.StatusBadRequest, "ALREADY_PROCESSED"},
		{apperrors.Upstream("provider unreachable", nil), http.StatusBadGateway, "UPSTREAM"},
	}

	for _, c := range cases {
		rec := httptest.NewRecorder()
		SendAppError(rec, c.err)

		assert.Equal(t, c.wantStatus, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, c.wantCode, body["code"])
		assert.NotEmpty(t, body["error"])
	}
}

func TestSendAppErrorInsufficientFundsPayload(t *testing.T) {
	rec := httptest.NewRecorder()
	SendAppError(rec, &apperrors.InsufficientFunds{Balance: 1000, Requested: 5000})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "INSUFFICIENT_FUNDS", body["code"])
	assert.Equal(t, float64(1000), body["balance"])
	assert.Equal(t, float64(5000), body["requested"])
}

func TestSendAppErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	SendAppError(rec, assertableInternalError{})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "internal server error", body["error"])
}

type assertableInternalError struct{}

func (assertableInternalError) Error() string { return "sql: database is locked" }
