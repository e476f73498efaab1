package ftpclient_test

import (
	"context"
	"net"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	ftpclient "github.com/fclairamb/ftpclient"
	"github.com/fclairamb/ftpclient/internal/testserver"
)

// newTestEngineAndServer starts an in-process FTP fixture server and builds
// an Engine with fresh, empty caches pointed at it. The returned
// ControlSocket is already connected and logged in.
func newTestEngineAndServer(t *testing.T) (*ftpclient.ControlSocket, *testserver.Fixture, ftpclient.Server) {
	t.Helper()

	fixture, err := testserver.NewFixture(testserver.FixtureOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fixture.Stop() })

	host, portStr, err := net.SplitHostPort(fixture.Addr())
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	server := ftpclient.Server{
		Host:     host,
		Port:     port,
		Protocol: ftpclient.ProtocolFTP,
		Type:     ftpclient.ServerTypeUnix,
	}

	engine := ftpclient.NewEngine(ftpclient.DefaultEngineConfig(), nil)
	cs := ftpclient.NewControlSocket(engine, server, ftpclient.NoopNotifier{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := cs.Connect(ctx, ftpclient.Credentials{
		LogonType: ftpclient.LogonNormal,
		User:      testserver.FixtureUser,
		Password:  testserver.FixturePass,
	})
	require.NoError(t, err)
	require.True(t, status.Ok(), "connect status: %v", status)

	t.Cleanup(func() { _ = cs.Close() })

	return cs, fixture, server
}

func TestConnectLoginDiscoversCapabilities(t *testing.T) {
	cs, _, _ := newTestEngineAndServer(t)

	// The fixture server advertises MLSD/MLST/UTF8/SIZE/MDTM/REST STREAM in
	// FEAT; a successful Connect/Logon must have resolved the current
	// directory via PWD.
	path, status, err := cs.ChangeDir(nil, "")
	require.NoError(t, err)
	require.True(t, status.Ok())
	require.Equal(t, "/", path.String())
}

func TestUploadListDownloadRoundTrip(t *testing.T) {
	cs, fixture, _ := newTestEngineAndServer(t)

	localFs := afero.NewMemMapFs()
	content := []byte("hello from the integration test\n")
	require.NoError(t, afero.WriteFile(localFs, "/local/up.txt", content, 0o644))

	root := ftpclient.NewServerPath("/", ftpclient.PathStyleUnix)

	status, err := cs.Upload(ftpclient.UploadArgs{
		Path:      root,
		Name:      "up.txt",
		LocalPath: "/local/up.txt",
		Fs:        localFs,
		Binary:    true,
	})
	require.NoError(t, err)
	require.True(t, status.Ok(), "upload status: %v", status)

	remoteBytes, err := afero.ReadFile(fixture.Fs(), "/up.txt")
	require.NoError(t, err)
	require.Equal(t, content, remoteBytes)

	listing, status, err := cs.ListResult(&root, true)
	require.NoError(t, err)
	require.True(t, status.Ok())

	entry, ok := listing.ByName("up.txt")
	require.True(t, ok, "expected up.txt in listing, got %+v", listing.Entries)
	require.Equal(t, int64(len(content)), entry.Size)
	require.False(t, entry.IsDir)

	status, err = cs.Download(ftpclient.DownloadArgs{
		Path:      root,
		Name:      "up.txt",
		LocalPath: "/local/down.txt",
		Fs:        localFs,
		Binary:    true,
	})
	require.NoError(t, err)
	require.True(t, status.Ok(), "download status: %v", status)

	downloaded, err := afero.ReadFile(localFs, "/local/down.txt")
	require.NoError(t, err)
	require.Equal(t, content, downloaded)
}

func TestMkdirDeepPathThenRemoveDir(t *testing.T) {
	cs, fixture, _ := newTestEngineAndServer(t)

	target := ftpclient.NewServerPath("/a/b/c", ftpclient.PathStyleUnix)

	status, err := cs.Mkdir(target)
	require.NoError(t, err)
	require.True(t, status.Ok(), "mkdir status: %v", status)

	info, err := fixture.Fs().Stat("/a/b/c")
	require.NoError(t, err)
	require.True(t, info.IsDir())

	parent := ftpclient.NewServerPath("/a/b", ftpclient.PathStyleUnix)
	status, err = cs.RemoveDir(parent, "c")
	require.NoError(t, err)
	require.True(t, status.Ok(), "removedir status: %v", status)

	_, err = fixture.Fs().Stat("/a/b/c")
	require.Error(t, err, "expected /a/b/c to be gone after RemoveDir")
}

func TestRenameAndDelete(t *testing.T) {
	cs, fixture, _ := newTestEngineAndServer(t)

	require.NoError(t, afero.WriteFile(fixture.Fs(), "/orig.txt", []byte("x"), 0o644))

	root := ftpclient.NewServerPath("/", ftpclient.PathStyleUnix)

	status, err := cs.Rename(root, "orig.txt", root, "renamed.txt")
	require.NoError(t, err)
	require.True(t, status.Ok(), "rename status: %v", status)

	_, err = fixture.Fs().Stat("/orig.txt")
	require.Error(t, err)

	_, err = fixture.Fs().Stat("/renamed.txt")
	require.NoError(t, err)

	status, err = cs.Delete(root, []string{"renamed.txt"})
	require.NoError(t, err)
	require.True(t, status.Ok(), "delete status: %v", status)

	_, err = fixture.Fs().Stat("/renamed.txt")
	require.Error(t, err, "expected renamed.txt to be gone after Delete")
}

func TestChmod(t *testing.T) {
	cs, fixture, _ := newTestEngineAndServer(t)

	require.NoError(t, afero.WriteFile(fixture.Fs(), "/perm.txt", []byte("x"), 0o600))

	root := ftpclient.NewServerPath("/", ftpclient.PathStyleUnix)

	status, err := cs.Chmod(root, "perm.txt", "644")
	require.NoError(t, err)
	require.True(t, status.Ok(), "chmod status: %v", status)

	info, err := fixture.Fs().Stat("/perm.txt")
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestRawCommandForwardsReply(t *testing.T) {
	cs, _, _ := newTestEngineAndServer(t)

	status, err := cs.RawCommand("NOOP")
	require.NoError(t, err)
	require.True(t, status.Ok(), "NOOP status: %v", status)
}

func TestBadLoginFails(t *testing.T) {
	fixture, err := testserver.NewFixture(testserver.FixtureOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = fixture.Stop() })

	host, portStr, err := net.SplitHostPort(fixture.Addr())
	require.NoError(t, err)

	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	server := ftpclient.Server{Host: host, Port: port, Protocol: ftpclient.ProtocolFTP}
	engine := ftpclient.NewEngine(ftpclient.DefaultEngineConfig(), nil)
	cs := ftpclient.NewControlSocket(engine, server, ftpclient.NoopNotifier{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := cs.Connect(ctx, ftpclient.Credentials{
		LogonType: ftpclient.LogonNormal,
		User:      testserver.FixtureUser,
		Password:  "wrong-password",
	})
	require.Error(t, err)
	require.True(t, status.Has(ftpclient.StatusPasswordFailed), "status: %v", status)
}
