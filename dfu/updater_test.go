package dfu

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-nrfdfu/logging"
	"github.com/moffa90/go-nrfdfu/peripheral"
	"github.com/moffa90/go-nrfdfu/protocol"
)

const testAddress = "C8:2B:96:A1:00:01"

// Mock logger for testing
type MockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
	kvs       [][]interface{}
}

func (l *MockLogger) Debug(msg string, kv ...interface{}) {
	l.debugMsgs = append(l.debugMsgs, msg)
	l.kvs = append(l.kvs, kv)
}

func (l *MockLogger) Info(msg string, kv ...interface{}) {
	l.infoMsgs = append(l.infoMsgs, msg)
	l.kvs = append(l.kvs, kv)
}

func (l *MockLogger) Error(msg string, kv ...interface{}) {
	l.errorMsgs = append(l.errorMsgs, msg)
	l.kvs = append(l.kvs, kv)
}

// connectTo returns a connector for p that counts how often it is used.
func connectTo(p *peripheral.Peripheral, opens *int) Connector {
	return ConnectorFunc(func(ctx context.Context, address string) (Transport, error) {
		*opens++
		return p, nil
	})
}

func TestNew(t *testing.T) {
	assert.Panics(t, func() { New(nil) })

	ctrl := gomock.NewController(t)
	u := New(NewMockConnector(ctrl))
	assert.Equal(t, DefaultMaxRetries, u.config.MaxRetries)
	assert.Equal(t, 3*time.Second, u.config.RetryDelay)
	assert.Equal(t, time.Second, u.config.SettleDelay)
	assert.Equal(t, protocol.MaxChunkSize, u.config.ChunkSize)

	logger := &MockLogger{}
	u = New(NewMockConnector(ctrl),
		WithLogger(logger),
		WithMaxRetries(5),
		WithRetryDelay(time.Second),
		WithChunkSize(8),
	)
	assert.Same(t, logger, u.config.Logger)
	assert.Equal(t, 5, u.config.MaxRetries)
	assert.Equal(t, time.Second, u.config.RetryDelay)
	assert.Equal(t, 8, u.config.ChunkSize)
}

func TestUpdateRejectsEmptyObjects(t *testing.T) {
	ctrl := gomock.NewController(t)
	u := New(NewMockConnector(ctrl))

	err := u.Update(context.Background(), testAddress, nil, testPattern(10))
	assert.True(t, errors.Is(err, ErrEmptyObject))
	assert.Contains(t, err.Error(), "init packet")

	err = u.Update(context.Background(), testAddress, testPattern(10), []byte{})
	assert.True(t, errors.Is(err, ErrEmptyObject))
	assert.Contains(t, err.Error(), "firmware")
}

func TestUpdateRetriesThenSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	connector := NewMockConnector(ctrl)
	tr := NewMockTransport(ctrl)
	rec := &sleepRecorder{}

	initPacket := testPattern(10)
	fw := testPattern(40)
	gattErr := errors.New("gatt: subscribe failed")

	connector.EXPECT().Connect(gomock.Any(), testAddress).Return(tr, nil).Times(1)
	inOrder(
		tr.EXPECT().EnableNotifications(gomock.Any()).Return(gattErr),
		tr.EXPECT().EnableNotifications(gomock.Any()).Return(gattErr),
		tr.EXPECT().EnableNotifications(gomock.Any()).Return(nil),
		expectSelect(tr, protocol.ObjectCommand, 256, 0, 0),
		expectCreate(tr, protocol.ObjectCommand, 10),
		expectChunks(tr, initPacket),
		expectChecksum(tr, 10, protocol.CRC32(initPacket)),
		expectExecute(tr),
		expectSelect(tr, protocol.ObjectData, 40, 0, 0),
		expectCreate(tr, protocol.ObjectData, 40),
		expectChunks(tr, fw),
		expectChecksum(tr, 40, protocol.CRC32(fw)),
		expectExecute(tr),
		tr.EXPECT().Close().Return(nil).Times(1),
	)

	u := New(connector,
		WithSleepFunc(rec.sleep),
		WithSettleDelay(time.Millisecond),
		WithLogger(logging.NewTest(t)),
	)
	require.NoError(t, u.Update(context.Background(), testAddress, initPacket, fw))

	want := []time.Duration{3 * time.Second, 3 * time.Second, time.Millisecond}
	if diff := cmp.Diff(want, rec.sleeps); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateRetriesExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	connector := NewMockConnector(ctrl)
	tr := NewMockTransport(ctrl)
	rec := &sleepRecorder{}
	gattErr := errors.New("gatt: subscribe failed")

	connector.EXPECT().Connect(gomock.Any(), testAddress).Return(tr, nil).Times(1)
	tr.EXPECT().EnableNotifications(gomock.Any()).Return(gattErr).Times(3)
	tr.EXPECT().Close().Return(nil).Times(1)

	u := New(connector, WithSleepFunc(rec.sleep))
	err := u.Update(context.Background(), testAddress, testPattern(10), testPattern(40))
	require.Error(t, err)

	var exhausted *RetriesExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	assert.True(t, errors.Is(err, gattErr))
	assert.Contains(t, err.Error(), "too many retries")

	if diff := cmp.Diff([]time.Duration{3 * time.Second, 3 * time.Second}, rec.sleeps); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateConnectFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	connector := NewMockConnector(ctrl)
	rec := &sleepRecorder{}
	radioErr := errors.New("device not found")

	connector.EXPECT().Connect(gomock.Any(), testAddress).Return(nil, radioErr).Times(1)

	u := New(connector, WithSleepFunc(rec.sleep))
	err := u.Update(context.Background(), testAddress, testPattern(10), testPattern(40))
	require.Error(t, err)
	assert.True(t, errors.Is(err, radioErr))
	assert.Contains(t, err.Error(), "connect to "+testAddress)

	var exhausted *RetriesExhaustedError
	assert.False(t, errors.As(err, &exhausted))
	assert.Empty(t, rec.sleeps)
}

func TestUpdateReportsLastResultCode(t *testing.T) {
	ctrl := gomock.NewController(t)
	connector := NewMockConnector(ctrl)
	tr := NewMockTransport(ctrl)
	rec := &sleepRecorder{}

	connector.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(tr, nil)
	tr.EXPECT().EnableNotifications(gomock.Any()).Return(nil).Times(2)
	inOrder(
		tr.EXPECT().Request(gomock.Any(), selectCmd(protocol.ObjectCommand)).
			Return(protocol.EncodeStatusResponse(protocol.OpSelect, protocol.ResultOperationFailed), nil),
		tr.EXPECT().Request(gomock.Any(), selectCmd(protocol.ObjectCommand)).
			Return(protocol.EncodeExtendedErrorResponse(protocol.OpSelect, protocol.ExtHwVersionFailure), nil),
	)
	tr.EXPECT().Close().Return(errors.New("already disconnected"))

	logger := &MockLogger{}
	u := New(connector, WithSleepFunc(rec.sleep), WithMaxRetries(2), WithLogger(logger))
	err := u.Update(context.Background(), testAddress, testPattern(10), testPattern(40))
	require.Error(t, err)

	result, ext := protocol.ResultOf(err)
	assert.Equal(t, protocol.ResultExtendedError, result)
	assert.Equal(t, protocol.ExtHwVersionFailure, ext)
	assert.Contains(t, err.Error(), "hardware version")

	assert.Equal(t, []string{"update attempt failed", "update attempt failed", "close transport"}, logger.errorMsgs)
}

func TestUpdateContextCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	connector := NewMockConnector(ctrl)
	tr := NewMockTransport(ctrl)
	rec := &sleepRecorder{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connector.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(tr, nil)
	tr.EXPECT().EnableNotifications(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})
	tr.EXPECT().Close().Return(nil).Times(1)

	u := New(connector, WithSleepFunc(rec.sleep))
	err := u.Update(ctx, testAddress, testPattern(10), testPattern(40))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, rec.sleeps)
}

func TestUpdateCancelledDuringBackoff(t *testing.T) {
	ctrl := gomock.NewController(t)
	connector := NewMockConnector(ctrl)
	tr := NewMockTransport(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connector.EXPECT().Connect(gomock.Any(), gomock.Any()).Return(tr, nil)
	tr.EXPECT().EnableNotifications(gomock.Any()).Return(errors.New("gatt: busy"))
	tr.EXPECT().Close().Return(nil)

	u := New(connector,
		WithRetryDelay(time.Hour),
		WithProgressCallback(func(p Progress) {
			if p.Phase == PhaseRetrying {
				cancel()
			}
		}),
	)

	start := time.Now()
	err := u.Update(ctx, testAddress, testPattern(10), testPattern(40))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Less(t, time.Since(start), time.Minute)
}

func TestUpdateResetsReceiptNotifications(t *testing.T) {
	p := peripheral.New()
	opens := 0
	rec := &sleepRecorder{}

	u := New(connectTo(p, &opens), WithSleepFunc(rec.sleep), WithReceiptNotifications(true))
	require.NoError(t, u.Update(context.Background(), testAddress, testPattern(16), testPattern(100)))

	requests := p.Requests()
	require.NotEmpty(t, requests)
	assert.Equal(t, protocol.BuildSetReceiptNotificationCmd(0), requests[0])
	assert.Zero(t, p.ReceiptInterval())
}

func TestUpdatePeripheral(t *testing.T) {
	initPacket := testPattern(140)
	fw := testPattern(10000)

	tests := []struct {
		name      string
		opts      []peripheral.Option
		setup     func(p *peripheral.Peripheral)
		wantOpens int
		wantSleep []time.Duration
	}{
		{
			name:      "clean update",
			wantSleep: []time.Duration{time.Second, time.Second},
		},
		{
			name: "small data objects",
			opts: []peripheral.Option{peripheral.WithMaxObjectSize(protocol.ObjectData, 512)},
			wantSleep: []time.Duration{
				time.Second,
				time.Second,
			},
		},
		{
			name: "notification failures",
			opts: []peripheral.Option{peripheral.WithNotificationFailures(2)},
			wantSleep: []time.Duration{
				3 * time.Second,
				3 * time.Second,
				time.Second,
				time.Second,
			},
		},
		{
			name:      "corrupted on the link",
			opts:      []peripheral.Option{peripheral.WithCorruptedByte(5000)},
			wantSleep: []time.Duration{time.Second, time.Second},
		},
		{
			name: "write failure resumes buffered data",
			opts: []peripheral.Option{peripheral.WithWriteFailure(100)},
			wantSleep: []time.Duration{
				time.Second,
				3 * time.Second,
				time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := peripheral.New(tt.opts...)
			opens := 0
			rec := &sleepRecorder{}

			u := New(connectTo(p, &opens), WithSleepFunc(rec.sleep), WithLogger(logging.NewTest(t)))
			require.NoError(t, u.Update(context.Background(), testAddress, initPacket, fw))

			assert.Equal(t, initPacket, p.InitPacket())
			assert.Equal(t, fw, p.Image())
			assert.Equal(t, 1, opens)
			assert.Equal(t, 1, p.Closes())

			for _, n := range p.ChunkSizes() {
				assert.LessOrEqual(t, n, protocol.MaxChunkSize)
			}
			if diff := cmp.Diff(tt.wantSleep, rec.sleeps); diff != "" {
				t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUpdateResumesFromPeripheral(t *testing.T) {
	initPacket := testPattern(140)
	fw := testPattern(10000)

	p := peripheral.New()
	p.Preload(protocol.ObjectCommand, initPacket, true)
	p.Preload(protocol.ObjectData, fw[:1000], false)

	opens := 0
	rec := &sleepRecorder{}
	u := New(connectTo(p, &opens), WithSleepFunc(rec.sleep))
	require.NoError(t, u.Update(context.Background(), testAddress, initPacket, fw))
	assert.Equal(t, fw, p.Image())

	requests := p.Requests()
	require.GreaterOrEqual(t, len(requests), 5)
	want := [][]byte{
		selectCmd(protocol.ObjectCommand),
		protocol.BuildExecuteCmd(),
		selectCmd(protocol.ObjectData),
		protocol.BuildExecuteCmd(),
		createCmd(protocol.ObjectData, peripheral.DefaultMaxDataSize),
	}
	if diff := cmp.Diff(want, requests[:5]); diff != "" {
		t.Errorf("resume requests mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateRecoversFromBadResume(t *testing.T) {
	initPacket := testPattern(140)
	fw := testPattern(10000)

	p := peripheral.New()
	p.Preload(protocol.ObjectCommand, initPacket, true)
	p.Preload(protocol.ObjectData, testPattern(1001)[1:], false)

	opens := 0
	rec := &sleepRecorder{}
	logger := &MockLogger{}
	u := New(connectTo(p, &opens), WithSleepFunc(rec.sleep), WithLogger(logger))
	require.NoError(t, u.Update(context.Background(), testAddress, initPacket, fw))

	assert.Equal(t, fw, p.Image())
	assert.Contains(t, logger.infoMsgs, "resume aborted, sending object from the start")
	assert.Equal(t, 3*time.Second, rec.sleeps[0])

	ops := p.Ops()
	require.GreaterOrEqual(t, len(ops), 5)
	want := []protocol.Opcode{
		protocol.OpSelect,
		protocol.OpExecute,
		protocol.OpSelect,
		protocol.OpSelect,
		protocol.OpCreate,
	}
	if diff := cmp.Diff(want, ops[:5]); diff != "" {
		t.Errorf("a bad data resume must not create anything (-want +got):\n%s", diff)
	}
}

func TestUpdateResumeRejected(t *testing.T) {
	initPacket := testPattern(140)
	fw := testPattern(3000)

	p := peripheral.New(peripheral.WithRejection(protocol.OpExecute, protocol.ResultOperationNotPermitted, 0, 1))
	p.Preload(protocol.ObjectCommand, initPacket, true)

	var phases []string
	opens := 0
	rec := &sleepRecorder{}
	u := New(connectTo(p, &opens),
		WithSleepFunc(rec.sleep),
		WithProgressCallback(func(pr Progress) {
			phases = append(phases, pr.Phase)
		}),
	)
	require.NoError(t, u.Update(context.Background(), testAddress, initPacket, fw))

	assert.Contains(t, phases, PhaseResumeRejected)
	assert.Contains(t, phases, PhaseRetrying)
	assert.Equal(t, PhaseConnecting, phases[0])
	assert.Equal(t, PhaseComplete, phases[len(phases)-1])
	assert.Equal(t, fw, p.Image())
}

func TestUpdateInitPacketRejected(t *testing.T) {
	p := peripheral.New(peripheral.WithInitValidator(func([]byte) protocol.ExtendedCode {
		return protocol.ExtSignatureMissing
	}))

	opens := 0
	rec := &sleepRecorder{}
	u := New(connectTo(p, &opens), WithSleepFunc(rec.sleep))
	err := u.Update(context.Background(), testAddress, testPattern(140), testPattern(1000))
	require.Error(t, err)

	var exhausted *RetriesExhaustedError
	require.True(t, errors.As(err, &exhausted))

	result, ext := protocol.ResultOf(err)
	assert.Equal(t, protocol.ResultExtendedError, result)
	assert.Equal(t, protocol.ExtSignatureMissing, ext)
	assert.Equal(t, 1, p.Closes())
	assert.Empty(t, p.Image())
}

func TestUpdateProgressAndLogging(t *testing.T) {
	p := peripheral.New(peripheral.WithMaxObjectSize(protocol.ObjectData, 1024))
	fw := testPattern(5000)

	var reports []Progress
	logger := &MockLogger{}
	opens := 0
	u := New(connectTo(p, &opens),
		WithSleepFunc((&sleepRecorder{}).sleep),
		WithLogger(logger),
		WithProgressCallback(func(pr Progress) {
			reports = append(reports, pr)
		}),
	)
	require.NoError(t, u.Update(context.Background(), testAddress, testPattern(64), fw))

	require.NotEmpty(t, reports)
	assert.Equal(t, PhaseConnecting, reports[0].Phase)
	last := reports[len(reports)-1]
	assert.Equal(t, PhaseComplete, last.Phase)
	assert.Equal(t, 100.0, last.Percentage)

	var offsets []uint32
	for _, r := range reports {
		if r.Phase == PhaseTransferring && r.Object == protocol.ObjectData {
			offsets = append(offsets, r.Offset)
			assert.Equal(t, uint32(len(fw)), r.Total)
			assert.Equal(t, 1, r.Attempt)
		}
	}
	if diff := cmp.Diff([]uint32{1024, 2048, 3072, 4096, 5000}, offsets); diff != "" {
		t.Errorf("data progress mismatch (-want +got):\n%s", diff)
	}

	assert.Contains(t, logger.infoMsgs, "update complete")
	assert.Empty(t, logger.errorMsgs)
	for _, kv := range logger.kvs {
		require.GreaterOrEqual(t, len(kv), 2)
		assert.Equal(t, "session", kv[0])
	}
}
