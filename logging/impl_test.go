package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"go.viam.com/test"
)

// assertLogMatches fuzzy matches one log line: the time only by length, the caller by file
// name but not line number.
func assertLogMatches(t *testing.T, actual *bytes.Buffer, expected string) {
	t.Helper()

	output, err := actual.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)

	actualParts := strings.Split(strings.TrimSuffix(output, "\n"), "\t")
	expectedParts := strings.Split(expected, "\t")
	test.That(t, len(actualParts), test.ShouldEqual, len(expectedParts))
	test.That(t, len(actualParts[0]), test.ShouldEqual, len(expectedParts[0]))
	test.That(t, actualParts[1], test.ShouldEqual, expectedParts[1])
	test.That(t, actualParts[2], test.ShouldEqual, expectedParts[2])

	actualFilename, actualLineNumber, found := strings.Cut(actualParts[3], ":")
	test.That(t, found, test.ShouldBeTrue)
	expectedFilename, _, found := strings.Cut(expectedParts[3], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, actualFilename, test.ShouldEqual, expectedFilename)
	_, err = strconv.Atoi(actualLineNumber)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, actualParts[4], test.ShouldEqual, expectedParts[4])
	if len(actualParts) == 5 {
		return
	}

	actualMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(actualParts[5]), &actualMap), test.ShouldBeNil)
	expectedMap := make(map[string]any)
	test.That(t, json.Unmarshal([]byte(expectedParts[5]), &expectedMap), test.ShouldBeNil)
	test.That(t, actualMap, test.ShouldResemble, expectedMap)
}

func newBufferLogger(name string) (Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	logger := NewBlankLogger(name)
	logger.AddAppender(NewWriterAppender(buf))
	return logger, buf
}

func TestConsoleOutput(t *testing.T) {
	logger, buf := newBufferLogger("sensors")

	logger.Info("tap sensor armed")
	assertLogMatches(t, buf,
		`2023-10-30T09:12:09.459Z	INFO	sensors	logging/impl_test.go:0	tap sensor armed`)

	logger.Debugf("sensitivity 0x%02X", 64)
	assertLogMatches(t, buf,
		`2023-10-30T09:12:09.459Z	DEBUG	sensors	logging/impl_test.go:0	sensitivity 0x40`)

	logger.Warnw("ambiguous tap direction", "x", 10, "y", 10)
	assertLogMatches(t, buf,
		`2023-10-30T09:12:09.459Z	WARN	sensors	logging/impl_test.go:0	ambiguous tap direction	{"x":10,"y":10}`)

	logger.Errorw("unpaired", "key")
	assertLogMatches(t, buf,
		`2023-10-30T09:12:09.459Z	ERROR	sensors	logging/impl_test.go:0	unpaired	{"key":"unpaired log key"}`)
}

func TestLevels(t *testing.T) {
	logger, buf := newBufferLogger("sensors")
	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)

	logger.Debug("dropped")
	logger.Info("dropped")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Error("kept")
	test.That(t, buf.String(), test.ShouldContainSubstring, "kept")

	for _, name := range []string{"debug", "INFO", "warning", "Error"} {
		_, err := LevelFromString(name)
		test.That(t, err, test.ShouldBeNil)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)

	var level Level
	test.That(t, json.Unmarshal([]byte(`"warn"`), &level), test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)
}

func TestSublogger(t *testing.T) {
	logger, buf := newBufferLogger("tapsense")
	sub := logger.Sublogger("knock")
	sub.Info("hello")
	test.That(t, buf.String(), test.ShouldContainSubstring, "\ttapsense.knock\t")

	sub.SetLevel(ERROR)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
}

func TestObservedTestLogger(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Infow("gesture", "kind", "double")

	entries := observed.FilterMessage("gesture").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].ContextMap()["kind"], test.ShouldEqual, "double")
	test.That(t, logger.Sync(), test.ShouldBeNil)
}

func TestAsZap(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.SetLevel(INFO)
	zl := logger.Sublogger("proc").AsZap()

	zl.Debugw("hidden")
	zl.With("id", "a").Infow("started", "pid", 7)

	test.That(t, observed.FilterMessage("hidden").Len(), test.ShouldEqual, 0)
	entries := observed.FilterMessage("started").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "proc")
	test.That(t, entries[0].ContextMap(), test.ShouldResemble, map[string]interface{}{"id": "a", "pid": int64(7)})
}

func TestFileAppender(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "tapsense.log")
	appender := NewFileAppender(path)
	logger := NewBlankLogger("file")
	logger.AddAppender(appender)

	logger.Infow("written", "sensor", "knock")
	test.That(t, appender.Close(), test.ShouldBeNil)

	contents, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(contents), test.ShouldContainSubstring, "written")
	test.That(t, string(contents), test.ShouldContainSubstring, `"sensor":"knock"`)
}
