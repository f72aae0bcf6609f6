package cmd

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/oneconcern/cfs/internal/rand"
	"github.com/oneconcern/cfs/pkg/hashing"
	"github.com/oneconcern/cfs/pkg/model"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

type exitMocks struct {
	fatalCalls int
	exitCode   int
	messages   []string
}

func (m *exitMocks) Fatalf(format string, v ...interface{}) {
	m.fatalCalls++
	m.messages = append(m.messages, fmt.Sprintf(format, v...))
}

func (m *exitMocks) Fatalln(v ...interface{}) {
	m.fatalCalls++
	m.messages = append(m.messages, fmt.Sprintln(v...))
}

func (m *exitMocks) Exit(code int) {
	m.fatalCalls++
	m.exitCode = code
}

func setupTests(t *testing.T) (string, *exitMocks) {
	mocks := new(exitMocks)
	logFatalf = mocks.Fatalf
	logFatalln = mocks.Fatalln
	osExit = mocks.Exit
	cfsFlags.core.Template = ""
	cfsFlags.put.start = 0

	// flag values survive from one execution to the next
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	t.Cleanup(func() {
		logFatalf = log.Fatalf
		logFatalln = log.Fatalln
		osExit = os.Exit
	})
	return t.TempDir(), mocks
}

// runCmd executes the CLI and captures what it logs
func runCmd(t *testing.T, args ...string) string {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	rootCmd.SetOut(&buf)
	defer func() {
		log.SetOutput(os.Stderr)
		rootCmd.SetOut(nil)
	}()

	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return buf.String()
}

func writeSource(t *testing.T, dir string, data []byte) string {
	src := filepath.Join(dir, "source.bin")
	require.NoError(t, os.WriteFile(src, data, 0600))
	return src
}

func TestCLI_PutCatRm(t *testing.T) {
	root, mocks := setupTests(t)
	data := rand.Bytes(3*model.BlockSize + 100)
	src := writeSource(t, t.TempDir(), data)

	out := runCmd(t, "put", "--root", root, "--loglevel", "none", "dir/file", src)
	assert.Contains(t, out, "stored 4 blocks")
	require.Zero(t, mocks.fatalCalls, mocks.messages)

	out = runCmd(t, "cat", "--root", root, "dir/file")
	assert.Equal(t, string(data), out)

	out = runCmd(t, "stat", "--root", root, "dir/file")
	assert.Contains(t, out, fmt.Sprintf("size: %d", len(data)))
	assert.Contains(t, out, "blocks: 4")

	out = runCmd(t, "stat", "--root", root, "--format", "{{ .TotalBlocks }}", "dir/file")
	assert.Equal(t, "4", strings.TrimSpace(out))
	cfsFlags.core.Template = ""

	out = runCmd(t, "inspect", "--root", root, "dir/file")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "0 -> "+hashing.Sum(data[:model.BlockSize]).String(), lines[1])

	out = runCmd(t, "blocks", "--root", root)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 4)
	assert.Contains(t, out, "refs: 1")

	runCmd(t, "rm", "--root", root, "dir/file")
	require.Zero(t, mocks.fatalCalls, mocks.messages)

	out = runCmd(t, "blocks", "--root", root)
	assert.Empty(t, strings.TrimSpace(out))

	runCmd(t, "stat", "--root", root, "dir/file")
	assert.Equal(t, 1, mocks.fatalCalls)
	assert.Equal(t, int(unix.ENOENT), mocks.exitCode)
}

func TestCLI_PutOverwrite(t *testing.T) {
	root, mocks := setupTests(t)
	dir := t.TempDir()

	runCmd(t, "put", "--root", root, "file", writeSource(t, dir, []byte("hello")))
	runCmd(t, "put", "--root", root, "file", writeSource(t, dir, []byte("world!")))
	require.Zero(t, mocks.fatalCalls, mocks.messages)

	out := runCmd(t, "cat", "--root", root, "file")
	assert.Equal(t, "world!", out)

	out = runCmd(t, "blocks", "--root", root)
	assert.Equal(t, hashing.Sum([]byte("world!")).String()+" refs: 1 size: 6", strings.TrimSpace(out))
}

func TestCLI_Rebuild(t *testing.T) {
	root, mocks := setupTests(t)

	runCmd(t, "put", "--root", root, "file", writeSource(t, t.TempDir(), []byte("some content")))

	// corrupt the header
	p := filepath.Join(root, "file")
	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	model.ByteOrder.PutUint64(raw[model.SizeOffset:], 999)
	require.NoError(t, os.WriteFile(p, raw, 0600))

	out := runCmd(t, "rebuild", "--root", root, "file")
	require.Zero(t, mocks.fatalCalls, mocks.messages)
	assert.Contains(t, out, "previous: size: 999, blocks: 1")
	assert.Contains(t, out, "rebuilt:  size: 12, blocks: 1")
}

func TestCLI_Config(t *testing.T) {
	root, mocks := setupTests(t)
	t.Setenv("CFS_CACHE_SIZE", "1MiB")

	out := runCmd(t, "config", "--root", root, "--scheme", "blake2b")
	require.Zero(t, mocks.fatalCalls, mocks.messages)
	assert.Contains(t, out, "root: "+root)
	assert.Contains(t, out, "scheme: blake2b")
	assert.Contains(t, out, "cache-size: 1MiB")
}

func TestCLI_Errors(t *testing.T) {
	root, mocks := setupTests(t)

	runCmd(t, "cat", "--root", root, "../outside")
	assert.Equal(t, 1, mocks.fatalCalls)
	assert.Equal(t, int(unix.EINVAL), mocks.exitCode)

	runCmd(t, "stat", "--root", filepath.Join(root, "missing"), "file")
	assert.Equal(t, 2, mocks.fatalCalls)
}

func TestCLI_Completion(t *testing.T) {
	_, mocks := setupTests(t)

	out := runCmd(t, "completion", "bash")
	require.Zero(t, mocks.fatalCalls, mocks.messages)
	assert.Contains(t, out, "__start_cfs")

	out = runCmd(t, "completion", "fish")
	require.Zero(t, mocks.fatalCalls, mocks.messages)
	assert.Contains(t, out, "complete -c cfs")

	rootCmd.SetArgs([]string{"completion", "tcsh"})
	assert.Error(t, rootCmd.Execute())
}

func TestConfig_CacheSize(t *testing.T) {
	for _, toPin := range []struct {
		input    string
		expected int
		fails    bool
	}{
		{input: "", expected: 0},
		{input: "0", expected: -1},
		{input: "0B", expected: -1},
		{input: "16KiB", expected: 16 * 1024},
		{input: "8MB", expected: 8 * 1024 * 1024},
		{input: "lots", fails: true},
	} {
		fixture := toPin
		t.Run(fixture.input, func(t *testing.T) {
			c := CLIConfig{CacheSize: fixture.input}
			size, err := c.cacheSize()
			if fixture.fails {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, fixture.expected, size)
		})
	}
}
