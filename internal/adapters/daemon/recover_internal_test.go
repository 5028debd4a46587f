package daemon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRecoverUnary(t *testing.T) {
	log := mocks.NewMockLogger(gomock.NewController(t))
	var logged error
	log.EXPECT().Error(gomock.Any()).Do(func(err error) { logged = err }).Times(1)

	intercept := recoverUnary(log)
	info := &grpc.UnaryServerInfo{FullMethod: methodEvaluate}

	resp, err := intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		panic("index out of range [7] with length 2")
	})
	assert.Nil(t, resp)
	assert.Equal(t, codes.Internal, status.Code(err))
	require.ErrorIs(t, logged, domain.ErrWorkPanicked)

	resp, err = intercept(context.Background(), nil, info, func(context.Context, any) (any, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}
