package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var errSentinel = errors.New("sentinel")

func TestConstructorsWrapCause(t *testing.T) {
	err := Conflict("already started", errSentinel)

	require.True(t, errors.Is(err, errSentinel))
	require.True(t, Is(err, StatusConflict))
	require.False(t, Is(err, StatusNotFound))
	require.Equal(t, "[conflict] already started: sentinel", err.Error())
}

func TestIsThroughFmtWrap(t *testing.T) {
	err := fmt.Errorf("settle: %w", NotFound("Offer not found", nil))

	require.True(t, Is(err, StatusNotFound))
	require.Equal(t, "Offer not found", MessageOf(err, "fallback"))
	require.Equal(t, "fallback", MessageOf(errors.New("boom"), "fallback"))
}

func TestJSONHidesCause(t *testing.T) {
	err := ValidationFailed("Insufficient balance", errSentinel, WithDetails(Detail{Field: "amount", Message: "too large"}))

	var base BaseError
	require.True(t, errors.As(err, &base))

	body := base.JSON().(map[string]interface{})["error"].(map[string]interface{})
	require.Equal(t, StatusValidationFailed, body["code"])
	require.Equal(t, "Insufficient balance", body["message"])
	require.Len(t, body["details"], 1)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusNotFound:         http.StatusNotFound,
		StatusConflict:         http.StatusConflict,
		StatusValidationFailed: http.StatusUnprocessableEntity,
		StatusBadRequest:       http.StatusBadRequest,
		StatusUnauthorized:     http.StatusUnauthorized,
		StatusInternal:         http.StatusInternalServerError,
		CoreStatus("bogus"):    http.StatusInternalServerError,
	}

	for code, want := range cases {
		require.Equal(t, want, code.HTTPStatus(), string(code))
	}
}

func TestToGRPCError(t *testing.T) {
	require.Nil(t, ToGRPCError(nil))

	st, ok := status.FromError(ToGRPCError(NotFound("user not found", nil)))
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())

	st, _ = status.FromError(ToGRPCError(context.DeadlineExceeded))
	require.Equal(t, codes.DeadlineExceeded, st.Code())

	st, _ = status.FromError(ToGRPCError(errors.New("boom")))
	require.Equal(t, codes.Internal, st.Code())
	require.Equal(t, "internal error", st.Message())

	require.Equal(t, codes.AlreadyExists, StatusConflict.GRPCCode())
	require.Equal(t, codes.Unknown, CoreStatus("bogus").GRPCCode())
}
