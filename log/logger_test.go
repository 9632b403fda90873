package log

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func BenchmarkTraceLogging(b *testing.B) {
	Root().SetHandler(LvlFilterHandler(LvlInfo, StreamHandler(os.Stderr, TerminalFormat(true))))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Trace("a message", "v", i)
	}
}

type notimeHandler struct {
	next Handler
}

func (n notimeHandler) Log(r *Record) error {
	r.Time = time.Unix(0, 0).UTC()
	return n.next.Log(r)
}

func TestLoggingNoTrace(t *testing.T) {
	out := new(bytes.Buffer)
	logger := New()
	{
		glog := NewGlogHandler(StreamHandler(out, TerminalFormat(false)))
		glog.Verbosity(LvlTrace)
		logger.SetHandler(notimeHandler{glog})
	}
	logger.Trace("a message", "foo", "bar")
	have := out.String()
	want := `TRACE[01-01|00:00:00.000] a message                                foo=bar
`
	if have != want {
		t.Errorf("\nhave: '%v'\nwant: '%v'\n", have, want)
	}
}

func TestLoggingWithTrace(t *testing.T) {
	PrintOrigins(true)
	defer PrintOrigins(false)
	out := new(bytes.Buffer)
	logger := New()
	{
		glog := NewGlogHandler(StreamHandler(out, TerminalFormat(false)))
		glog.Verbosity(LvlTrace)
		if err := glog.BacktraceAt("logger_test.go:58"); err != nil {
			t.Fatal(err)
		}
		logger.SetHandler(notimeHandler{glog})
	}
	logger.Trace("a message", "foo", "bar")
	have := out.String()
	if !strings.HasPrefix(have, "INFO") {
		t.Errorf("backtrace hit should be promoted to info, got %q", have)
	}
	if !strings.Contains(have, "goroutine") {
		t.Errorf("missing stack dump in backtrace output %q", have)
	}
}

func TestVmodule(t *testing.T) {
	out := new(bytes.Buffer)
	logger := New()
	{
		glog := NewGlogHandler(StreamHandler(out, TerminalFormat(false)))
		glog.Verbosity(LvlError)
		if err := glog.Vmodule("logger_test.go=5"); err != nil {
			t.Fatal(err)
		}
		logger.SetHandler(notimeHandler{glog})
	}
	logger.Debug("a debug message", "foo", "bar")
	if !strings.Contains(out.String(), "a debug message") {
		t.Errorf("vmodule override did not pass record through: %q", out.String())
	}
}
