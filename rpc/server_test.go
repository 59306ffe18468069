package rpc

import (
	"context"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-rogue/logger"
	"github.com/arloliu/go-rogue/memory"
	"github.com/arloliu/go-rogue/tree"
)

func TestMain(m *testing.M) {
	level, err := logger.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		level = logger.InfoLevel
	}
	logger.SetLevel(level)

	os.Exit(m.Run())
}

type fixture struct {
	root *tree.Root
	emu  *memory.Emulator
	srv  *Server

	mu   sync.Mutex
	args []any
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

	dev, err := tree.NewDevice("Dev", tree.WithSlave(f.emu), tree.WithDescription("demo"))
	require.NoError(err)

	scratch, err := tree.NewVariable("Scratch", tree.WithBits(0, 0, 32))
	require.NoError(err)
	mode, err := tree.NewVariable("Mode", tree.WithBits(4, 0, 2), tree.WithEnum(tree.Enum{0: "Off", 1: "On"}))
	require.NoError(err)
	label, err := tree.NewVariable("Label", tree.WithBase(tree.BaseString), tree.WithValue("multi\nline"))
	require.NoError(err)
	status, err := tree.NewVariable("Status", tree.WithBits(8, 0, 8), tree.WithBase(tree.BaseUInt), tree.WithMode(tree.RO))
	require.NoError(err)
	echo, err := tree.NewCommand("Echo", func(_ context.Context, arg any) (any, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.args = append(f.args, arg)

		return arg, nil
	}, tree.WithBase(tree.BaseUInt))
	require.NoError(err)
	reset, err := tree.NewCommand("Reset", func(context.Context, any) (any, error) {
		return nil, nil //nolint:nilnil
	})
	require.NoError(err)

	require.NoError(dev.Add(scratch, mode, label, status, echo, reset))
	require.NoError(f.root.Add(dev))
	require.NoError(f.root.Start(context.Background()))
	t.Cleanup(f.root.Stop)

	f.srv, err = NewServer(context.Background(), f.root, WithLogger(logger.NewNopMockLogger()))
	require.NoError(err)

	return f
}

func TestServer_Handle(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(memory.WriteBytes(context.Background(), f.emu, 8, []byte{0x2A, 0, 0, 0}))

	tests := []struct {
		name string
		req  string
		want string
	}{
		{"root name", `{"path":"__rootname__"}`, `"Top"`},
		{"root name raw", `{"path":"__rootname__","rawStr":true}`, `Top`},
		{"set", `{"path":"Top.Dev.Scratch","attr":"set","args":[4660]}`, `true`},
		{"get", `{"path":"Top.Dev.Scratch","attr":"get"}`, `4660`},
		{"disp", `{"path":"Top.Dev.Scratch","attr":"disp"}`, `"0x1234"`},
		{"disp raw", `{"path":"Top.Dev.Scratch","attr":"disp","rawStr":true}`, `0x1234`},
		{"set hex text", `{"path":"Top.Dev.Scratch","attr":"set","args":["0xffffffff"]}`, `true`},
		{"get large", `{"path":"Top.Dev.Scratch","attr":"get"}`, `4294967295`},
		{"set enum", `{"path":"Top.Dev.Mode","attr":"set","args":["On"]}`, `true`},
		{"enum disp", `{"path":"Top.Dev.Mode","attr":"disp"}`, `"On"`},
		{"read only memory", `{"path":"Top.Dev.Status","attr":"get"}`, `42`},
		{"value without read", `{"path":"Top.Dev.Status","attr":"value"}`, `42`},
		{"raw multi line stays quoted", `{"path":"Top.Dev.Label","attr":"disp","rawStr":true}`, `"multi\nline"`},
		{"exec", `{"path":"Top.Dev.Echo","attr":"exec","args":[7]}`, `7`},
		{"call", `{"path":"Top.Dev.Echo","attr":"call","args":["16"]}`, `16`},
		{"exec void", `{"path":"Top.Dev.Reset","attr":"exec"}`, `true`},
		{"name", `{"path":"Top.Dev.Mode","attr":"name"}`, `"Mode"`},
		{"path", `{"path":"Top.Dev.Mode","attr":"path"}`, `"Top.Dev.Mode"`},
		{"description", `{"path":"Top.Dev","attr":"description"}`, `"demo"`},
		{"base", `{"path":"Top.Dev.Mode","attr":"base"}`, `"enum"`},
		{"command base", `{"path":"Top.Dev.Echo","attr":"base"}`, `"uint"`},
		{"mode", `{"path":"Top.Dev.Status","attr":"mode"}`, `"RO"`},
		{"read all", `{"path":"Top","attr":"readAll"}`, `true`},
		{"write all", `{"path":"Top.Dev","attr":"writeAll"}`, `true`},
		{"unknown node", `{"path":"Top.Nope","attr":"get"}`, `null`},
		{"malformed", `{"path":`, `null`},
		{"not json", `hello`, `null`},
		{"unknown attr", `{"path":"Top.Dev.Mode","attr":"explode"}`, `{"error":"unknown attribute: explode"}`},
		{"read only set", `{"path":"Top.Dev.Status","attr":"set","args":[1]}`, `{"error":"Top.Dev.Status: variable is read-only"}`},
		{"missing argument", `{"path":"Top.Dev.Scratch","attr":"set"}`, `{"error":"rpc: missing argument: set needs a value"}`},
		{"attr on wrong node", `{"path":"Top.Dev","attr":"get"}`, `{"error":"rpc: attribute not supported by node: get on Top.Dev"}`},
		{"exec on variable", `{"path":"Top.Dev.Mode","attr":"exec"}`, `{"error":"rpc: attribute not supported by node: exec on Top.Dev.Mode"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.srv.Handle([]byte(tt.req))
			assert.Equal(t, tt.want, string(got))
		})
	}

	require.Equal([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0x01, 0, 0, 0}, f.emu.Snapshot(0, 8))
}

func TestServer_HandleStructure(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	want, err := f.root.YAMLStructure()
	require.NoError(err)

	// multi line strings are always JSON encoded
	got := f.srv.Handle([]byte(`{"path":"__structure__","rawStr":true}`))
	require.Contains(string(got), `Top:\n`)

	v, err := decodeResponse(got)
	require.NoError(err)
	require.Equal(want, v)
}

func TestNewServer_Errors(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	_, err := NewServer(context.Background(), nil)
	require.ErrorIs(err, ErrRootNil)
	_, err = NewServer(context.Background(), f.root, WithLogger(nil))
	require.EqualError(err, "logger is nil")
	_, err = NewServer(context.Background(), f.root, WithMaxLineSize(1))
	require.EqualError(err, "max line size out of range [64, 64MiB]")
	_, err = NewServer(context.Background(), f.root, WithRequestTimeout(0))
	require.EqualError(err, "request timeout out of range [1ms, 10m]")
}

func openServer(t *testing.T, f *fixture) string {
	t.Helper()

	require.NoError(t, f.srv.Open("127.0.0.1:0"))
	t.Cleanup(func() { _ = f.srv.Close() })

	return f.srv.Addr().String()
}

func TestClient_RoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	addr := openServer(t, f)

	require.ErrorIs(f.srv.Open("127.0.0.1:0"), ErrAlreadyOpened)

	client, err := Dial(ctx, addr, WithLogger(logger.NewNopMockLogger()))
	require.NoError(err)
	defer client.Close()

	name, err := client.RootName(ctx)
	require.NoError(err)
	require.Equal("Top", name)

	structure, err := client.Structure(ctx)
	require.NoError(err)
	require.Contains(structure, "Top.Dev.Scratch")

	require.NoError(client.Set(ctx, "Top.Dev.Scratch", uint64(0xCAFEBABE)))
	val, err := client.Get(ctx, "Top.Dev.Scratch")
	require.NoError(err)
	require.Equal(uint64(0xCAFEBABE), val)

	disp, err := client.GetDisp(ctx, "Top.Dev.Scratch")
	require.NoError(err)
	require.Equal("0xcafebabe", disp)

	out, err := client.Exec(ctx, "Top.Dev.Echo", 3)
	require.NoError(err)
	require.Equal(uint64(3), out)

	out, err = client.Exec(ctx, "Top.Dev.Reset", nil)
	require.NoError(err)
	require.Equal(true, out)

	_, err = client.Get(ctx, "Top.Dev.Missing")
	require.ErrorIs(err, ErrNodeNotFound)

	err = client.Set(ctx, "Top.Dev.Status", 1)
	var remote *RemoteError
	require.ErrorAs(err, &remote)
	require.Contains(remote.Message, "read-only")

	raw, err := client.Call(ctx, Request{Path: "Top.Dev.Mode", Attr: "disp", RawStr: true})
	require.NoError(err)
	require.Equal("Off", string(raw))
}

func TestClient_ConcurrentCallers(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	addr := openServer(t, f)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers*10)

	for i := 0; i < workers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()

			client, err := Dial(ctx, addr)
			if err != nil {
				errs <- err
				return
			}
			defer client.Close()

			for j := 0; j < 10; j++ {
				if _, err := client.Exec(ctx, "Top.Dev.Echo", i*100+j); err != nil {
					errs <- err
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(f.args, workers*10)
}

func TestServer_MalformedLineKeepsConnection(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	addr := openServer(t, f)

	conn, err := net.Dial("tcp", addr)
	require.NoError(err)
	defer conn.Close()

	_, err = conn.Write([]byte("garbage\n\n{\"path\":\"__rootname__\"}\n"))
	require.NoError(err)

	require.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
	buf := make([]byte, 64)
	var got []byte
	for len(got) < len("null\n\"Top\"\n") {
		n, err := conn.Read(buf)
		require.NoError(err)
		got = append(got, buf[:n]...)
	}
	require.Equal("null\n\"Top\"\n", string(got))
}

func TestServer_CloseDisconnectsClients(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(f.srv.Open("127.0.0.1:0"))
	addr := f.srv.Addr().String()

	client, err := Dial(ctx, addr)
	require.NoError(err)
	_, err = client.RootName(ctx)
	require.NoError(err)

	require.NoError(f.srv.Close())
	require.Nil(f.srv.Addr())

	_, err = client.RootName(ctx)
	require.Error(err)
	_, err = client.RootName(ctx)
	require.ErrorIs(err, ErrClientClosed)

	// reopen on a new port
	require.NoError(f.srv.Open("127.0.0.1:0"))
	defer f.srv.Close()

	client, err = Dial(ctx, f.srv.Addr().String())
	require.NoError(err)
	defer client.Close()
	name, err := client.RootName(ctx)
	require.NoError(err)
	require.Equal("Top", name)
}
