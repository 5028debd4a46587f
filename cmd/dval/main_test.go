package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/dval/internal/adapters/daemon"
	"go.trai.ch/dval/internal/adapters/fingerprint"
	"go.trai.ch/dval/internal/adapters/model"
	"go.trai.ch/dval/internal/adapters/telemetry"
	"go.trai.ch/dval/internal/app"
	"go.trai.ch/dval/internal/core/domain"
	"go.trai.ch/dval/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func newApp(loader *mocks.MockConfigLoader, log *mocks.MockLogger) *app.App {
	return app.New(
		loader,
		model.NewRegistry(),
		daemon.NewConnector(log, nil),
		fingerprint.NewHasher(),
		log,
		telemetry.NewNoOpTracer(),
		telemetry.NoOpMetrics{},
	).WithOutput(io.Discard, io.Discard)
}

func provide(a *app.App, log *mocks.MockLogger) ComponentProvider {
	return func(_ context.Context) (*app.Components, func(), error) {
		return &app.Components{App: a, Logger: log}, func() {}, nil
	}
}

// TestRun_Success verifies that the run function returns 0 when the command succeeds.
func TestRun_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	application := newApp(mocks.NewMockConfigLoader(ctrl), log)

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stderr, provide(application, log))
	assert.Equal(t, 0, exitCode)
}

// TestRun_InitializationError verifies that run returns 1 when component initialization fails.
func TestRun_InitializationError(t *testing.T) {
	provider := func(_ context.Context) (*app.Components, func(), error) {
		return nil, nil, errors.New("init failed")
	}

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, stderr, provider)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error: init failed")
}

// TestRun_ExecutionError verifies that run returns 1 and logs when the command fails.
func TestRun_ExecutionError(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockConfigLoader(ctrl)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Error(gomock.Any()).Times(1)

	loader.EXPECT().Load(".").Return(nil, errors.New("load failed"))

	exitCode := run(context.Background(), []string{"run"}, io.Discard, provide(newApp(loader, log), log))
	assert.Equal(t, 1, exitCode)
}

// TestRun_StrictAbort verifies the distinct exit code of a strict-mode abort.
func TestRun_StrictAbort(t *testing.T) {
	ctrl := gomock.NewController(t)
	loader := mocks.NewMockConfigLoader(ctrl)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Error(gomock.Any()).Times(1)

	loader.EXPECT().Load(".").Return(nil, domain.ErrStrictAbort)

	exitCode := run(context.Background(), []string{"run"}, io.Discard, provide(newApp(loader, log), log))
	assert.Equal(t, 2, exitCode)
}

// TestRun_Signal verifies that the context is canceled on signal.
func TestRun_Signal(t *testing.T) {
	ctrl := gomock.NewController(t)

	blockCh := make(chan struct{})
	loader := mocks.NewMockConfigLoader(ctrl)
	loader.EXPECT().Load(gomock.Any()).DoAndReturn(func(_ string) (*domain.Config, error) {
		select {
		case <-blockCh:
			return nil, context.Canceled
		case <-time.After(5 * time.Second):
			return nil, errors.New("timeout in mock")
		}
	})

	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Error(gomock.Any()).AnyTimes()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan int)

	go func() {
		errCh <- run(ctx, []string{"run"}, io.Discard, provide(newApp(loader, log), log))
	}()

	time.Sleep(100 * time.Millisecond)

	cancel()
	close(blockCh)

	select {
	case ret := <-errCh:
		assert.NotEqual(t, 0, ret)
	case <-time.After(2 * time.Second):
		t.Fatal("TestRun_Signal timed out waiting for run() to return")
	}
}
