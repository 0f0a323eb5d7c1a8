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

func TestAsFindsWrappedBaseError(t *testing.T) {
	cause := errors.New("provider said no")
	err := fmt.Errorf("issue refund: %w", BadGateway("refund rejected", cause,
		WithDetails(Detail{Field: "refund_id", Message: "r1"})))

	be := As(err)
	require.Equal(t, StatusBadGateway, be.Code)
	require.Equal(t, http.StatusBadGateway, be.Code.HTTPStatus())
	require.ErrorIs(t, be, cause)
	require.Len(t, be.Details, 1)
}

func TestAsWrapsUnknownAsInternal(t *testing.T) {
	be := As(errors.New("boom"))
	require.Equal(t, StatusInternal, be.Code)
	require.Equal(t, http.StatusInternalServerError, be.Code.HTTPStatus())

	body := be.JSON().(map[string]interface{})["error"].(map[string]interface{})
	require.Equal(t, "internal error", body["message"])
	require.NotContains(t, body, "details")
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusValidationFailed:    http.StatusUnprocessableEntity,
		StatusNotFound:            http.StatusNotFound,
		StatusConflict:            http.StatusConflict,
		StatusTooManyRequests:     http.StatusTooManyRequests,
		StatusClientClosedRequest: 499,
	}
	for code, want := range cases {
		require.Equal(t, want, code.HTTPStatus(), code)
	}
}

func TestToGRPCError(t *testing.T) {
	require.NoError(t, ToGRPCError(nil))

	st, ok := status.FromError(ToGRPCError(NotFound("dispute not found", nil)))
	require.True(t, ok)
	require.Equal(t, codes.NotFound, st.Code())

	st, _ = status.FromError(ToGRPCError(context.DeadlineExceeded))
	require.Equal(t, codes.DeadlineExceeded, st.Code())

	st, _ = status.FromError(ToGRPCError(errors.New("dial tcp 10.0.0.3:5432: refused")))
	require.Equal(t, codes.Internal, st.Code())
	require.Equal(t, "internal error", st.Message())

	st, _ = status.FromError(ToGRPCError(fmt.Errorf("trigger: %w", Conflict("task already queued", errors.New("redis: duplicate")))))
	require.Equal(t, codes.AlreadyExists, st.Code())
	require.Equal(t, "task already queued", st.Message())

	require.Equal(t, codes.Unavailable, StatusServiceUnavailable.GRPCCode())
	require.Equal(t, codes.Unknown, CoreStatus("teapot").GRPCCode())

	already := status.Error(codes.Aborted, "aborted")
	require.Equal(t, already, ToGRPCError(already))
}
