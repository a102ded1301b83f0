package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/onenesskingdom/oneness-ledger/pkg/errors"
)

type amountBody struct {
	Amount int64  `json:"amount"`
	Note   string `json:"note" validate:"max=5"`
}

func decode(t *testing.T, body string) error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dest amountBody
	return DecodeJSONBody(req, &dest)
}

func TestDecodeJSONBodyReportsAmountTypeErrors(t *testing.T) {
	cases := map[string]string{
		`{"amount": 30.5}`:  "not_a_whole_number",
		`{"amount": "abc"}`: "not_a_number",
		`{"amount": true}`:  "not_a_number",
	}
	for body, reason := range cases {
		err := decode(t, body)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed, body)
		assert.Equal(t, pkgerrors.CodeInvalidAmount, typed.Code(), body)
		assert.Equal(t, map[string]any{"field": "amount", "reason": reason}, typed.Details(), body)
	}
}

func TestDecodeJSONBodyOtherErrorsStayValidation(t *testing.T) {
	for _, body := range []string{`{"amount": 1, "extra": 2}`, `{"note": 5}`, `not json`, `{"note": "too long"}`} {
		typed := pkgerrors.As(decode(t, body))
		require.NotNil(t, typed, body)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code(), body)
	}
	assert.NoError(t, decode(t, `{"amount": 30}`))
}
