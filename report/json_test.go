package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/buger/jsonparser"
	"github.com/stretchr/testify/require"

	"github.com/dfinity-lab/raclette/core"
)

func TestJSON_EventStream(t *testing.T) {
	var out bytes.Buffer
	r := NewJSON(&out)

	r.Init(plan(2))
	r.Start("a")
	r.Report(&core.CompletedTask{
		FullName: []string{"a"},
		Duration: 1500 * time.Millisecond,
		Stdout:   []byte("captured"),
		Status:   core.Failure(3),
	})
	r.Stage([]string{"b"}, &core.StageReport{
		Name:     "s1",
		Status:   core.StageSuccess(),
		Duration: time.Millisecond,
	})
	r.Done()

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 5)

	event := func(line []byte, key string) string {
		v, err := jsonparser.GetString(line, key)
		require.NoError(t, err)
		return v
	}

	require.Equal(t, "init", event(lines[0], "event"))
	total, err := jsonparser.GetInt(lines[0], "total")
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	require.Equal(t, "start", event(lines[1], "event"))
	require.Equal(t, "a", event(lines[1], "name"))

	require.Equal(t, "report", event(lines[2], "event"))
	require.Equal(t, "failure", event(lines[2], "status"))
	code, err := jsonparser.GetInt(lines[2], "exit_code")
	require.NoError(t, err)
	require.EqualValues(t, 3, code)
	ms, err := jsonparser.GetInt(lines[2], "duration_ms")
	require.NoError(t, err)
	require.EqualValues(t, 1500, ms)
	require.Equal(t, "captured", event(lines[2], "stdout"))

	require.Equal(t, "stage", event(lines[3], "event"))
	require.Equal(t, "b::s1", event(lines[3], "name"))
	require.Equal(t, "s1", event(lines[3], "stage"))
	require.Equal(t, "success", event(lines[3], "status"))

	require.Equal(t, "done", event(lines[4], "event"))
}
