package provider_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/gofast/pkg/provider"
	"github.com/cuemby/gofast/pkg/provider/mocks"
)

func TestLimitedDelegates(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inner := mocks.NewMockProvider(ctrl)
	inner.EXPECT().CreateInstance(gomock.Any(), provider.Spec{Name: "gofast-1"}).
		Return(provider.Instance{ID: "1", Name: "gofast-1", Status: "new"}, nil)
	inner.EXPECT().GetInstance(gomock.Any(), "1").
		Return(provider.Instance{ID: "1", Status: provider.StatusActive, Address: "10.0.0.1"}, nil)
	inner.EXPECT().DeleteInstance(gomock.Any(), "1").Return(nil)

	p := provider.NewLimited(inner, 1000, 10)
	ctx := context.Background()

	inst, err := p.CreateInstance(ctx, provider.Spec{Name: "gofast-1"})
	require.NoError(t, err)
	assert.False(t, inst.Active())

	inst, err = p.GetInstance(ctx, "1")
	require.NoError(t, err)
	assert.True(t, inst.Active())

	require.NoError(t, p.DeleteInstance(ctx, "1"))
}

func TestLimitedThrottles(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inner := mocks.NewMockProvider(ctrl)
	inner.EXPECT().GetInstance(gomock.Any(), "1").Return(provider.Instance{}, nil).Times(3)

	p := provider.NewLimited(inner, 20, 1)
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := p.GetInstance(context.Background(), "1")
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestLimitedHonoursContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	inner := mocks.NewMockProvider(ctrl)
	p := provider.NewLimited(inner, 0.001, 1)
	ctx, cancel := context.WithCancel(context.Background())

	inner.EXPECT().DeleteInstance(gomock.Any(), "1").Return(nil)
	require.NoError(t, p.DeleteInstance(ctx, "1"))

	cancel()
	assert.Error(t, p.DeleteInstance(ctx, "1"))
}
