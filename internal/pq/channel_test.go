package pq_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/pqd/internal/hwbinder"
	"github.com/mattjoyce/pqd/internal/pq"
	"github.com/mattjoyce/pqd/internal/pq/mocks"
	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

type transport struct {
	driver  *mocks.MockDriver
	manager *mocks.MockServiceManager
	remote  *mocks.MockRemoteObject
	client  *mocks.MockClient
}

func newTransport(ctrl *gomock.Controller) transport {
	return transport{
		driver:  mocks.NewMockDriver(ctrl),
		manager: mocks.NewMockServiceManager(ctrl),
		remote:  mocks.NewMockRemoteObject(ctrl),
		client:  mocks.NewMockClient(ctrl),
	}
}

func (tr transport) expectOpen() {
	tr.driver.EXPECT().Open(gomock.Any(), hwbinder.DefaultDevice).Return(tr.manager, nil)
	tr.manager.EXPECT().GetService(gomock.Any(), pq.DefaultService).Return(tr.remote, nil)
	tr.remote.EXPECT().NewClient(pq.DefaultInterface).Return(tr.client, nil)
}

func (tr transport) expectClose() {
	gomock.InOrder(
		tr.client.EXPECT().Close().Return(nil),
		tr.remote.EXPECT().Release().Return(nil),
		tr.manager.EXPECT().Close().Return(nil),
	)
}

func openChecked(t *testing.T, tr transport, opts ...pq.Option) *pq.Handle {
	t.Helper()
	tr.expectOpen()
	logger, _ := testLogger()
	opts = append([]pq.Option{pq.WithLogger(logger)}, opts...)
	h, err := pq.Open(context.Background(), tr.driver, registry.MustNew(registry.RevisionChecked), opts...)
	require.NoError(t, err)
	return h
}

func payload(values ...wire.Value) []byte {
	w := wire.NewWriter(16)
	for _, v := range values {
		w.Value(v)
	}
	return w.Bytes()
}

func TestOpenAndCloseReleaseInReverseOrder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := newTransport(ctrl)

	h := openChecked(t, tr)
	tr.expectClose()
	assert.NoError(t, h.Close())
	assert.NoError(t, h.Close())
}

func TestOpenFailureStages(t *testing.T) {
	boom := errors.New("boom")
	reg := registry.MustNew(registry.RevisionChecked)

	t.Run("manager", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		tr := newTransport(ctrl)
		tr.driver.EXPECT().Open(gomock.Any(), gomock.Any()).Return(nil, boom)

		_, err := pq.Open(context.Background(), tr.driver, reg)
		var ce *pq.ConnectError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, pq.StageManager, ce.Stage)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("service", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		tr := newTransport(ctrl)
		tr.driver.EXPECT().Open(gomock.Any(), gomock.Any()).Return(tr.manager, nil)
		tr.manager.EXPECT().GetService(gomock.Any(), gomock.Any()).Return(nil, hwbinder.ErrServiceNotFound)
		tr.manager.EXPECT().Close().Return(nil)

		_, err := pq.Open(context.Background(), tr.driver, reg)
		var ce *pq.ConnectError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, pq.StageService, ce.Stage)
		assert.ErrorIs(t, err, hwbinder.ErrServiceNotFound)
	})

	t.Run("client releases remote then manager", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		tr := newTransport(ctrl)
		tr.driver.EXPECT().Open(gomock.Any(), gomock.Any()).Return(tr.manager, nil)
		tr.manager.EXPECT().GetService(gomock.Any(), gomock.Any()).Return(tr.remote, nil)
		tr.remote.EXPECT().NewClient(gomock.Any()).Return(nil, boom)
		gomock.InOrder(
			tr.remote.EXPECT().Release().Return(nil),
			tr.manager.EXPECT().Close().Return(nil),
		)

		_, err := pq.Open(context.Background(), tr.driver, reg)
		var ce *pq.ConnectError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, pq.StageClient, ce.Stage)
	})
}

func TestOpenHonoursOptions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := newTransport(ctrl)
	tr.driver.EXPECT().Open(gomock.Any(), "/dev/vndbinder").Return(tr.manager, nil)
	tr.manager.EXPECT().GetService(gomock.Any(), "a.b@1.0::IX/other").Return(tr.remote, nil)
	tr.remote.EXPECT().NewClient("a.b@1.0::IX").Return(tr.client, nil)

	h, err := pq.Open(context.Background(), tr.driver, registry.MustNew(registry.RevisionLegacy),
		pq.WithDevice("/dev/vndbinder"), pq.WithService("a.b@1.0::IX/other"), pq.WithInterface("a.b@1.0::IX"))
	require.NoError(t, err)
	assert.Equal(t, registry.RevisionLegacy, h.Registry().Revision())
}

func TestCallSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := newTransport(ctrl)

	var seen []pq.Outcome
	h := openChecked(t, tr, pq.WithObserver(func(o pq.Outcome) { seen = append(seen, o) }))

	tr.client.EXPECT().
		Transact(gomock.Any(), uint32(3), payload(wire.Int32(1), wire.Int32(registry.DefaultStep))).
		Return(wire.EncodeReply(wire.ReplySpec{Retval: true}, wire.StatusOK, 0, nil), nil)

	out := h.Call(context.Background(), registry.OpSetPQMode, wire.Int32(1))
	assert.True(t, out.OK())
	assert.Equal(t, pq.KindOK, out.Kind)
	assert.Equal(t, "setPQMode", out.Name)
	assert.NotEmpty(t, out.CallID)
	assert.True(t, out.HasRetval)
	require.Len(t, seen, 1)
	assert.Equal(t, out.CallID, seen[0].CallID)
}

func TestCallGetterDecodesValue(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := newTransport(ctrl)
	h := openChecked(t, tr)

	v := wire.Int32(300)
	tr.client.EXPECT().
		Transact(gomock.Any(), uint32(17), []byte{}).
		Return(wire.EncodeReply(wire.ReplySpec{Retval: true, Value: wire.TypeInt32}, 0, 0, &v), nil)

	out := h.Call(context.Background(), registry.OpGetBlueLightStrength)
	require.True(t, out.OK())
	require.NotNil(t, out.Value)
	assert.Equal(t, int32(300), out.Value.I32)
}

func TestCallTransportStatusHidesRetvalAndValue(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := newTransport(ctrl)
	h := openChecked(t, tr)

	tr.client.EXPECT().Transact(gomock.Any(), uint32(37), gomock.Any()).
		Return(wire.EncodeReply(wire.ReplySpec{}, wire.StatusDeadObject, 0, nil), nil)

	out := h.Call(context.Background(), registry.OpGetGlobalPQStrength)
	assert.False(t, out.OK())
	assert.Equal(t, pq.KindTransport, out.Kind)
	assert.Equal(t, wire.StatusDeadObject, out.Status)
	assert.False(t, out.HasRetval)
	assert.Nil(t, out.Value)

	var te *pq.TransportError
	require.ErrorAs(t, out.Err, &te)
	assert.Equal(t, wire.StatusDeadObject, te.Status)
}

func TestCallServiceRejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := newTransport(ctrl)
	h := openChecked(t, tr)

	tr.client.EXPECT().Transact(gomock.Any(), uint32(16), gomock.Any()).
		Return(wire.EncodeReply(wire.ReplySpec{Retval: true}, wire.StatusOK, 3, nil), nil)

	out := h.Call(context.Background(), registry.OpSetBlueLightStrength, wire.Int32(150))
	assert.Equal(t, pq.KindRejected, out.Kind)
	assert.Equal(t, wire.StatusOK, out.Status)
	assert.Equal(t, int32(3), out.Retval)
	var re *pq.ServiceRejectedError
	require.ErrorAs(t, out.Err, &re)
	assert.Equal(t, int32(3), re.Retval)
}

func TestCallDriverStatusError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := newTransport(ctrl)
	h := openChecked(t, tr)

	tr.client.EXPECT().Transact(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, &hwbinder.StatusError{Op: "reply", Status: wire.StatusFailedTransaction})

	out := h.Call(context.Background(), registry.OpEnableChameleon, wire.Bool(true))
	assert.Equal(t, pq.KindTransport, out.Kind)
	assert.Equal(t, wire.StatusFailedTransaction, out.Status)
}

func TestCallTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := newTransport(ctrl)
	h := openChecked(t, tr, pq.WithTimeout(20*time.Millisecond))

	tr.client.EXPECT().Transact(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ uint32, _ []byte) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	out := h.Call(context.Background(), registry.OpSetPQMode, wire.Int32(0))
	assert.Equal(t, pq.KindTimeout, out.Kind)
	assert.Equal(t, wire.StatusTimedOut, out.Status)
	assert.ErrorIs(t, out.Err, pq.ErrTransportTimeout)
}

func TestCallUnknownOperationSkipsTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := newTransport(ctrl)
	h := openChecked(t, tr)

	for _, id := range []registry.OperationID{0, -3, registry.OperationMax} {
		out := h.Call(context.Background(), id, wire.Int32(1))
		assert.ErrorIs(t, out.Err, pq.ErrUnknownOperation)
		assert.Equal(t, pq.KindUnknown, out.Kind)
	}
	out := h.CallByName(context.Background(), "setNothing")
	assert.Equal(t, pq.KindUnknown, out.Kind)
}

func TestCallArityError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := newTransport(ctrl)
	h := openChecked(t, tr)

	out := h.Call(context.Background(), registry.OpSetColorRegion, wire.Int32(1))
	assert.ErrorIs(t, out.Err, wire.ErrArity)
	assert.Equal(t, pq.KindInvalidArgument, out.Kind)
}

func TestCallAfterClose(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := newTransport(ctrl)
	h := openChecked(t, tr)
	tr.expectClose()
	require.NoError(t, h.Close())

	out := h.Call(context.Background(), registry.OpSetPQMode, wire.Int32(1))
	assert.ErrorIs(t, out.Err, pq.ErrClosed)
	assert.Equal(t, wire.StatusDeadObject, out.Status)
}

func TestCloseJoinsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	tr := newTransport(ctrl)
	h := openChecked(t, tr)

	tr.client.EXPECT().Close().Return(nil)
	tr.remote.EXPECT().Release().Return(errors.New("release failed"))
	tr.manager.EXPECT().Close().Return(nil)
	err := h.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release failed")
}
