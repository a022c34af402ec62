package transport

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radishkv/radishkv/session"
)

var testCounter int

func startTestServer(t *testing.T) *Server {
	testCounter++
	cfg := session.Config{
		DatabaseDir:      t.TempDir(),
		LogDir:           t.TempDir(),
		SnapshotInterval: time.Hour,
		AOFEnabled:       true,
		RDBEnabled:       true,
	}
	srv := New("127.0.0.1:0", cfg)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	require.Eventually(t, func() bool { return srv.Addr() != "" }, time.Second, time.Millisecond)

	t.Cleanup(func() {
		srv.Shutdown()
		<-errCh
	})
	return srv
}

func TestServerServesSequentialCommandsOnOneConnection(t *testing.T) {
	srv := startTestServer(t)

	client, err := Dial(srv.Addr())
	require.NoError(t, err)
	defer client.Close()

	dbName := "db" + strconv.Itoa(testCounter)
	out, err := client.Send("SELECT " + dbName)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded Dataset")

	out, err = client.Send("SET k v")
	require.NoError(t, err)
	assert.Equal(t, "OK", out)

	out, err = client.Send("GET k")
	require.NoError(t, err)
	assert.Equal(t, "v", out)
}

func TestServerSerializesAcrossConnections(t *testing.T) {
	srv := startTestServer(t)
	dbName := "db" + strconv.Itoa(testCounter)

	setup, err := Dial(srv.Addr())
	require.NoError(t, err)
	defer setup.Close()
	out, err := setup.Send("SELECT " + dbName)
	require.NoError(t, err)
	require.Contains(t, out, "Loaded Dataset")

	// a second connection cannot SELECT a different dataset while the first
	// is still active: the shared session allows only one at a time.
	second, err := Dial(srv.Addr())
	require.NoError(t, err)
	defer second.Close()

	out, err = second.Send("SELECT someother")
	require.NoError(t, err)
	assert.Contains(t, out, "currently in use")

	out, err = second.Send("GET k")
	require.NoError(t, err)
	assert.Equal(t, "(nil)", out)
}

func TestServerExitShutsDownWholeServer(t *testing.T) {
	srv := startTestServer(t)
	dbName := "db" + strconv.Itoa(testCounter)

	client, err := Dial(srv.Addr())
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Send("SELECT " + dbName)
	require.NoError(t, err)

	_, err = client.Send("EXIT")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := Dial(srv.Addr())
		return err != nil
	}, time.Second, 10*time.Millisecond, "server should stop accepting connections after EXIT")
}
