package pvbridge

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-rogue/logger"
	"github.com/arloliu/go-rogue/memory"
	"github.com/arloliu/go-rogue/tree"
)

func TestMain(m *testing.M) {
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logger.ErrorLevel
	}
	logger.SetLevel(level)

	os.Exit(m.Run())
}

type mockDriver struct {
	mock.Mock
}

func (d *mockDriver) SetParam(name string, value any) { d.Called(name, value) }
func (d *mockDriver) GetParam(name string) any        { return d.Called(name).Get(0) }
func (d *mockDriver) UpdatePVs()                      { d.Called() }

type fixture struct {
	root   *tree.Root
	emu    *memory.Emulator
	resets atomic.Int32
	picked atomic.Value
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	require := require.New(t)

	f := &fixture{}
	var err error
	f.emu, err = memory.NewEmulator()
	require.NoError(err)

	f.root, err = tree.NewRoot("Top", tree.WithLogger(logger.NewNopMockLogger()))
	require.NoError(err)

	dev, err := tree.NewDevice("Dev", tree.WithSlave(f.emu), tree.WithOffset(0x2000))
	require.NoError(err)

	newVar := func(name string, opts ...tree.Option) *tree.Variable {
		v, err := tree.NewVariable(name, opts...)
		require.NoError(err)
		return v
	}

	reset, err := tree.NewCommand("Reset", func(context.Context, any) (any, error) {
		f.resets.Add(1)
		return nil, nil //nolint:nilnil
	})
	require.NoError(err)
	pick, err := tree.NewCommand("Pick", func(_ context.Context, arg any) (any, error) {
		f.picked.Store(arg)
		return nil, nil //nolint:nilnil
	}, tree.WithEnum(tree.Enum{1: "A", 5: "B"}))
	require.NoError(err)

	require.NoError(dev.Add(
		newVar("Mode", tree.WithBits(0, 0, 2), tree.WithEnum(tree.Enum{0: "Off", 1: "On", 2: "Auto"})),
		newVar("Flag", tree.WithBits(0, 8, 1), tree.WithBase(tree.BaseBool)),
		newVar("Count", tree.WithBits(4, 0, 32), tree.WithBase(tree.BaseUInt), tree.WithMode(tree.RO)),
		newVar("Gain", tree.WithRange(0, 100), tree.WithValue(50)),
		newVar("Ratio", tree.WithBase(tree.BaseFloat), tree.WithValue(0.5)),
		newVar("Label", tree.WithBase(tree.BaseString), tree.WithValue("x")),
		reset,
		pick,
	))
	require.NoError(f.root.Add(dev))
	require.NoError(f.root.Start(context.Background()))
	t.Cleanup(f.root.Stop)

	return f
}

func TestBuildPVDB(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	db, err := BuildPVDB(f.root, "lab")
	require.NoError(err)
	require.Equal([]string{
		"lab:Top:Dev:Count",
		"lab:Top:Dev:Flag",
		"lab:Top:Dev:Gain",
		"lab:Top:Dev:Label",
		"lab:Top:Dev:Mode",
		"lab:Top:Dev:Pick",
		"lab:Top:Dev:Ratio",
		"lab:Top:Dev:Reset",
		"lab:Top:structure",
	}, db.Names())

	mode := db["lab:Top:Dev:Mode"]
	require.Equal(TypeEnum, mode.Type)
	require.Equal([]string{"Off", "On", "Auto"}, mode.EnumStrings)
	require.Equal("Top.Dev.Mode", mode.Path)

	require.Equal([]string{"False", "True"}, db["lab:Top:Dev:Flag"].EnumStrings)
	require.True(db["lab:Top:Dev:Count"].ReadOnly)
	require.Equal(TypeInt, db["lab:Top:Dev:Count"].Type)
	require.Equal(TypeFloat, db["lab:Top:Dev:Ratio"].Type)
	require.Equal(TypeString, db["lab:Top:Dev:Label"].Type)

	gain := db["lab:Top:Dev:Gain"]
	require.Equal(TypeInt, gain.Type)
	require.Equal(uint64(0), *gain.Lolim)
	require.Equal(uint64(100), *gain.Hilim)

	require.True(db["lab:Top:Dev:Reset"].Command)
	require.Equal(TypeString, db["lab:Top:Dev:Reset"].Type)
	require.Equal([]string{"A", "B"}, db["lab:Top:Dev:Pick"].EnumStrings)

	structure := db["lab:Top:structure"]
	require.True(structure.ReadOnly)
	require.Empty(structure.Path)

	for _, base := range []string{"", "a.b", "a b"} {
		_, err := BuildPVDB(f.root, base)
		require.ErrorIs(err, ErrInvalidBase, base)
	}
	_, err = BuildPVDB(nil, "lab")
	require.ErrorIs(err, ErrRootNil)
}

func startServer(t *testing.T, f *fixture, opts ...Option) *Server {
	t.Helper()

	opts = append([]Option{WithLogger(logger.NewNopMockLogger())}, opts...)
	srv, err := NewServer("lab", f.root, opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Stop)

	return srv
}

func TestServer_InitialValues(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	drv := NewMemDriver()
	srv := startServer(t, f, WithDriver(drv))

	require.Same(drv, srv.Driver())
	require.Len(srv.PVDB(), 9)
	require.Equal(uint64(50), drv.GetParam("lab:Top:Dev:Gain"))
	require.Equal(0.5, drv.GetParam("lab:Top:Dev:Ratio"))
	require.Equal("x", drv.GetParam("lab:Top:Dev:Label"))
	require.Equal(0, drv.GetParam("lab:Top:Dev:Mode"))
	require.Equal(0, drv.GetParam("lab:Top:Dev:Flag"))
	require.Contains(drv.GetParam("lab:Top:structure"), "Top:")
	require.Equal(1, drv.Updates())
	require.Equal(9, drv.Posted())

	require.ErrorIs(srv.Start(context.Background()), ErrAlreadyStarted)
}

func TestServer_TreeUpdates(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	drv := NewMemDriver()
	startServer(t, f, WithDriver(drv))

	require.NoError(f.root.Set(ctx, "Top.Dev.Mode", "Auto"))
	require.Equal(2, drv.GetParam("lab:Top:Dev:Mode"))

	require.NoError(f.root.Set(ctx, "Top.Dev.Flag", true))
	require.Equal(1, drv.GetParam("lab:Top:Dev:Flag"))

	require.NoError(f.root.Set(ctx, "Top.Dev.Label", "hello"))
	require.Equal("hello", drv.GetParam("lab:Top:Dev:Label"))

	// a change made by another master shows up after a read
	require.NoError(memory.WriteBytes(ctx, f.emu, 0x2004, []byte{0x10, 0, 0, 0}))
	require.NoError(f.root.ReadAll(ctx))
	require.Equal(uint64(16), drv.GetParam("lab:Top:Dev:Count"))
	require.Equal(5, drv.Updates())
}

func TestServer_Writes(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"lock-free queue", nil},
		{"slice queue", []Option{WithWriteBuffer(4)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()
			f := newFixture(t)
			drv := NewMemDriver()
			srv := startServer(t, f, append([]Option{WithDriver(drv)}, tt.opts...)...)

			require.NoError(srv.Write("lab:Top:Dev:Mode", 1))
			require.Equal(1, drv.GetParam("lab:Top:Dev:Mode"), "writes are echoed")
			require.NoError(srv.Write("lab:Top:Dev:Flag", 1))
			require.NoError(srv.Write("lab:Top:Dev:Gain", 77))
			require.NoError(srv.Write("lab:Top:Dev:Reset", 1))
			require.NoError(srv.Write("lab:Top:Dev:Pick", 1))

			require.Eventually(func() bool {
				return f.resets.Load() == 1 && f.picked.Load() != nil
			}, 2*time.Second, 5*time.Millisecond)
			require.Equal(uint64(5), f.picked.Load())

			// writes are applied in order, so the earlier ones are done
			mode, err := f.root.Get(ctx, "Top.Dev.Mode")
			require.NoError(err)
			require.Equal(uint64(1), mode)
			flag, err := f.root.Get(ctx, "Top.Dev.Flag")
			require.NoError(err)
			require.Equal(true, flag)
			gain, err := f.root.Get(ctx, "Top.Dev.Gain")
			require.NoError(err)
			require.Equal(uint64(77), gain)
			require.Equal([]byte{0x01, 0x01}, f.emu.Snapshot(0x2000, 2))
		})
	}
}

func TestServer_BadWrites(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	srv := startServer(t, f)

	require.ErrorIs(srv.Write("lab:Top:Dev:Nope", 1), ErrUnknownPV)
	require.ErrorIs(srv.Write("lab:Top:Dev:Count", 1), ErrReadOnlyPV)
	require.ErrorIs(srv.Write("lab:Top:structure", "x"), ErrReadOnlyPV)

	// dropped by the worker
	require.NoError(srv.Write("lab:Top:Dev:Mode", 7))
	require.NoError(srv.Write("lab:Top:Dev:Gain", 500))
	require.NoError(srv.Write("lab:Top:Dev:Reset", 1))

	require.Eventually(func() bool { return f.resets.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	mode, err := f.root.Get(ctx, "Top.Dev.Mode")
	require.NoError(err)
	require.Equal(uint64(0), mode)
	gain, err := f.root.Get(ctx, "Top.Dev.Gain")
	require.NoError(err)
	require.Equal(uint64(50), gain)

	srv.Stop()
	require.ErrorIs(srv.Write("lab:Top:Dev:Mode", 1), ErrNotStarted)

	// stopped servers no longer follow the tree
	require.NoError(f.root.Set(ctx, "Top.Dev.Label", "after"))
	require.Equal("x", srv.Driver().GetParam("lab:Top:Dev:Label"))
}

func TestServer_MockDriver(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	drv := &mockDriver{}
	drv.On("SetParam", mock.Anything, mock.Anything).Return()
	drv.On("UpdatePVs").Return()

	startServer(t, f, WithDriver(drv))
	drv.AssertNumberOfCalls(t, "SetParam", 9)
	drv.AssertNumberOfCalls(t, "UpdatePVs", 1)

	require.NoError(f.root.Set(ctx, "Top.Dev.Ratio", 1.5))
	drv.AssertCalled(t, "SetParam", "lab:Top:Dev:Ratio", 1.5)
	drv.AssertNumberOfCalls(t, "UpdatePVs", 2)
}

func TestNewServer_Errors(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	_, err := NewServer("lab", nil)
	require.ErrorIs(err, ErrRootNil)

	_, err = NewServer("", f.root)
	require.ErrorIs(err, ErrInvalidBase)

	_, err = NewServer("lab", f.root, WithDriver(nil))
	require.EqualError(err, "driver is nil")

	_, err = NewServer("lab", f.root, WithLogger(nil))
	require.EqualError(err, "logger is nil")

	_, err = NewServer("lab", f.root, WithWriteBuffer(0))
	require.EqualError(err, "write buffer out of range [1, 65536]")
}
