package provision

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/gofast/pkg/provider"
	"github.com/cuemby/gofast/pkg/provider/mocks"
	"github.com/cuemby/gofast/pkg/storage"
	"github.com/cuemby/gofast/pkg/types"
)

func fastConfig() Config {
	return Config{
		Template:     types.InstanceTemplate{Region: "nyc3", Size: "s-1vcpu-1gb", Image: "ubuntu-22-04-x64"},
		PollInterval: time.Millisecond,
		PollTimeout:  200 * time.Millisecond,
	}
}

func TestCreateBecomesActive(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	prov := mocks.NewMockProvider(ctrl)
	gomock.InOrder(
		prov.EXPECT().CreateInstance(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, spec provider.Spec) (provider.Instance, error) {
				assert.Equal(t, "gofast-1", spec.Name)
				assert.Equal(t, "nyc3", spec.Template.Region)
				return provider.Instance{ID: "42", Name: spec.Name, Status: "new"}, nil
			}),
		prov.EXPECT().GetInstance(gomock.Any(), "42").Return(provider.Instance{ID: "42", Status: "new"}, nil),
		prov.EXPECT().GetInstance(gomock.Any(), "42").Return(provider.Instance{}, errors.New("502 bad gateway")),
		prov.EXPECT().GetInstance(gomock.Any(), "42").
			Return(provider.Instance{ID: "42", Status: provider.StatusActive, Address: "203.0.113.5"}, nil),
	)

	var trace []types.WorkerStatus
	p := New(prov, fastConfig(), WithTransitions(func(w *types.Worker, to types.WorkerStatus) error {
		trace = append(trace, to)
		return DirectTransition(w, to)
	}))

	w := NewWorker("gofast-1")
	require.NoError(t, p.Create(context.Background(), w))

	assert.Equal(t, types.WorkerStatusActive, w.Status)
	assert.Equal(t, "42", w.InstanceID)
	assert.Equal(t, "203.0.113.5", w.Address)
	assert.Equal(t, []types.WorkerStatus{types.WorkerStatusProvisioning, types.WorkerStatusActive}, trace)
}

func TestCreateSubmitFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	prov := mocks.NewMockProvider(ctrl)
	prov.EXPECT().CreateInstance(gomock.Any(), gomock.Any()).
		Return(provider.Instance{}, errors.New("quota exceeded")).Times(1)

	p := New(prov, fastConfig())
	w := NewWorker("gofast-1")
	err := p.Create(context.Background(), w)

	var provErr *Error
	require.True(t, errors.As(err, &provErr))
	assert.Equal(t, "gofast-1", provErr.Name)
	assert.Empty(t, w.InstanceID)
	assert.Equal(t, types.WorkerStatusRequested, w.Status)
}

func TestCreateTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	prov := mocks.NewMockProvider(ctrl)
	prov.EXPECT().CreateInstance(gomock.Any(), gomock.Any()).Return(provider.Instance{ID: "7", Status: "new"}, nil)
	prov.EXPECT().GetInstance(gomock.Any(), "7").Return(provider.Instance{ID: "7", Status: "new"}, nil).AnyTimes()

	cfg := fastConfig()
	cfg.PollTimeout = 30 * time.Millisecond
	p := New(prov, cfg)

	w := NewWorker("gofast-1")
	err := p.Create(context.Background(), w)

	assert.True(t, errors.Is(err, ErrTimeout))
	assert.Equal(t, "7", w.InstanceID, "instance id is kept so the caller can destroy it")
	assert.Equal(t, types.WorkerStatusProvisioning, w.Status)
}

func TestCreateInstanceVanished(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	prov := mocks.NewMockProvider(ctrl)
	prov.EXPECT().CreateInstance(gomock.Any(), gomock.Any()).Return(provider.Instance{ID: "7", Status: "new"}, nil)
	prov.EXPECT().GetInstance(gomock.Any(), "7").Return(provider.Instance{}, fmt.Errorf("droplet 7: %w", provider.ErrNotFound))

	p := New(prov, fastConfig())
	err := p.Create(context.Background(), NewWorker("gofast-1"))

	var provErr *Error
	assert.True(t, errors.As(err, &provErr))
	assert.True(t, errors.Is(err, provider.ErrNotFound))
}

func TestCreateContextCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())

	prov := mocks.NewMockProvider(ctrl)
	prov.EXPECT().CreateInstance(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, provider.Spec) (provider.Instance, error) {
			cancel()
			return provider.Instance{ID: "9", Status: "new"}, nil
		})
	prov.EXPECT().GetInstance(gomock.Any(), gomock.Any()).Return(provider.Instance{Status: "new"}, nil).AnyTimes()

	p := New(prov, fastConfig())
	err := p.Create(ctx, NewWorker("gofast-1"))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestDestroy(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	prov := mocks.NewMockProvider(ctrl)
	prov.EXPECT().DeleteInstance(gomock.Any(), "1").Return(nil)
	prov.EXPECT().DeleteInstance(gomock.Any(), "2").Return(fmt.Errorf("droplet 2: %w", provider.ErrNotFound))
	prov.EXPECT().DeleteInstance(gomock.Any(), "3").Return(errors.New("500 internal"))

	p := New(prov, fastConfig())
	ctx := context.Background()

	assert.NoError(t, p.Destroy(ctx, "1"))
	assert.NoError(t, p.Destroy(ctx, "2"), "already gone counts as destroyed")
	assert.Error(t, p.Destroy(ctx, "3"))
	assert.NoError(t, p.Destroy(ctx, ""), "nothing to destroy")
}

func TestLedgerHook(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ledger, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer ledger.Close()

	prov := mocks.NewMockProvider(ctrl)
	prov.EXPECT().CreateInstance(gomock.Any(), gomock.Any()).
		Return(provider.Instance{ID: "55", Status: provider.StatusActive, Address: "198.51.100.1"}, nil)
	prov.EXPECT().DeleteInstance(gomock.Any(), "55").Return(nil)

	p := New(prov, fastConfig(), WithLedger(ledger), WithRole(storage.RoleProxy))
	w := NewWorker("gofast-proxy")
	require.NoError(t, p.Create(context.Background(), w))

	recorded, err := ledger.Get("55")
	require.NoError(t, err)
	assert.Equal(t, storage.RoleProxy, recorded.Role)
	assert.Equal(t, "198.51.100.1", recorded.Address)

	require.NoError(t, p.Destroy(context.Background(), "55"))
	list, err := ledger.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}
