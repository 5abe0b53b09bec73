package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/svnlab/easy-file/errors"
)

type fakeSender struct {
	sent []int64
	err  error
}

func (s *fakeSender) Send(registerID int64) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, registerID)
	return nil
}

type refusingLimiter struct{}

func (refusingLimiter) Allow(string) bool { return false }

func newTestService(t *testing.T, sender TriggerSender, limiter Limiter, specs ...*JobSpec) (*Service, *Store) {
	t.Helper()
	store := newTestStore(t)
	registry := NewRegistry()
	for _, spec := range specs {
		registry.Register(spec)
	}
	service := NewService(store, registry, limiter, sender, "test-app", zap.NewNop().Sugar())
	require.NoError(t, service.RegisterTasks())
	return service, store
}

func TestRegisterCreatesPendingRecordAndDispatches(t *testing.T) {
	sender := &fakeSender{}
	service, store := newTestService(t, sender, nil, bytesSpec("orders", nil, nil))

	id, err := service.Register(&RegisterRequest{
		TaskCode:  "orders",
		OperateBy: "alice",
		Params:    map[string]any{"year": 2026},
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, sender.sent)

	record, err := store.FindRecordByID(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, record.Status)
	assert.Equal(t, "test-app", record.AppID)
}

func TestRegisterUnknownTaskCode(t *testing.T) {
	service, _ := newTestService(t, nil, nil, bytesSpec("orders", nil, nil))

	_, err := service.Register(&RegisterRequest{TaskCode: "nope"})
	assert.True(t, errors.Is(err, ErrTaskNotFound))
}

func TestRegisterDispatchFailureIsNonFatal(t *testing.T) {
	sender := &fakeSender{err: errors.New("broker down")}
	service, store := newTestService(t, sender, nil, bytesSpec("orders", nil, nil))

	id, err := service.Register(&RegisterRequest{TaskCode: "orders"})
	require.NoError(t, err, "dispatch failure must not fail registration")

	record, err := store.FindRecordByID(id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, record.Status)
}

func TestRegisterRateLimited(t *testing.T) {
	service, _ := newTestService(t, nil, refusingLimiter{}, bytesSpec("orders", nil, nil))

	_, err := service.Register(&RegisterRequest{TaskCode: "orders"})
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestRegisterAppliesSpecDefaults(t *testing.T) {
	spec := bytesSpec("orders", nil, nil)
	spec.FileSuffix = ".xlsx"
	spec.MaxServerRetry = 4
	service, store := newTestService(t, nil, nil, spec)

	id, err := service.Register(&RegisterRequest{TaskCode: "orders"})
	require.NoError(t, err)

	record, err := store.FindRecordByID(id)
	require.NoError(t, err)
	assert.Equal(t, 4, record.MaxServerRetry)

	info, err := record.RequestInfo()
	require.NoError(t, err)
	assert.Equal(t, ".xlsx", info.FileSuffix)
}

func TestGetResult(t *testing.T) {
	service, store := newTestService(t, nil, nil, bytesSpec("orders", nil, nil))
	id, err := service.Register(&RegisterRequest{TaskCode: "orders"})
	require.NoError(t, err)

	status := StatusSuccess
	url := "/files/orders.csv"
	_, err = store.ChangeUploadInfo(id, UploadInfoChange{Status: &status, FileURL: &url})
	require.NoError(t, err)

	result, err := service.GetResult(id)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "/files/orders.csv", result.FileURL)

	_, err = service.GetResult(9999)
	assert.True(t, errors.Is(err, ErrRecordNotFound))
}

func TestCancel(t *testing.T) {
	service, store := newTestService(t, nil, nil, bytesSpec("orders", nil, nil))
	id, err := service.Register(&RegisterRequest{TaskCode: "orders"})
	require.NoError(t, err)

	res, err := service.Cancel(id, "alice")
	require.NoError(t, err)
	assert.True(t, res.OK)

	record, err := store.FindRecordByID(id)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, record.Status)

	// Cancel is only allowed from pending.
	res, err = service.Cancel(id, "alice")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "record is not pending", res.Reason)

	res, err = service.Cancel(9999, "alice")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, "record not found", res.Reason)
}

func TestDownload(t *testing.T) {
	service, store := newTestService(t, nil, nil, bytesSpec("orders", nil, nil))
	id, err := service.Register(&RegisterRequest{TaskCode: "orders"})
	require.NoError(t, err)

	// Pending records are not downloadable.
	_, err = service.Download(id)
	assert.Error(t, err)

	status := StatusSuccess
	url := "/files/orders.csv"
	_, err = store.ChangeUploadInfo(id, UploadInfoChange{Status: &status, FileURL: &url})
	require.NoError(t, err)

	got, err := service.Download(id)
	require.NoError(t, err)
	assert.Equal(t, "/files/orders.csv", got)

	record, err := store.FindRecordByID(id)
	require.NoError(t, err)
	assert.Equal(t, 1, record.DownloadCount)
}

func TestRateLimiterPerTaskCode(t *testing.T) {
	limiter := NewRateLimiter(0, 1) // one token per code, no refill

	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	// Separate bucket per code.
	assert.True(t, limiter.Allow("b"))
}

func TestRegistryPanicsOnDuplicate(t *testing.T) {
	registry := NewRegistry()
	registry.Register(bytesSpec("x", nil, nil))

	assert.Panics(t, func() {
		registry.Register(bytesSpec("x", nil, nil))
	})
	assert.Panics(t, func() {
		registry.Register(&JobSpec{Code: "no-fn"})
	})
	assert.Nil(t, registry.Get("missing"))
	assert.ElementsMatch(t, []string{"x"}, registry.Codes())
}
