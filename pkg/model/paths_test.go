package model

import (
	"path/filepath"
	"testing"

	"github.com/oneconcern/cfs/pkg/cfs/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pathFixture struct {
	name       string
	path       string
	wantsError bool
	expected   string
}

func pathTestCases() []pathFixture {
	return []pathFixture{
		// happy path
		{
			name:     "simple file",
			path:     "file",
			expected: "file",
		},
		{
			name:     "nested file",
			path:     "a/b/c",
			expected: "a/b/c",
		},
		{
			name:     "redundant separators",
			path:     "a//b/./c",
			expected: "a/b/c",
		},
		{
			name:     "inner parent reference",
			path:     "a/b/../c",
			expected: "a/c",
		},
		{
			name:     "dotted file",
			path:     ".BLOCKSfile",
			expected: ".BLOCKSfile",
		},
		// error cases
		{
			name:       "empty",
			path:       "",
			wantsError: true,
		},
		{
			name:       "absolute",
			path:       "/etc/passwd",
			wantsError: true,
		},
		{
			name:       "root itself",
			path:       "a/..",
			wantsError: true,
		},
		{
			name:       "escaping",
			path:       "../outside",
			wantsError: true,
		},
		{
			name:       "escaping after clean",
			path:       "a/../../outside",
			wantsError: true,
		},
		{
			name:       "blocks directory",
			path:       ".BLOCKS",
			wantsError: true,
		},
		{
			name:       "inside blocks directory",
			path:       ".BLOCKS/aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d",
			wantsError: true,
		},
		{
			name:       "nul byte",
			path:       "a\x00b",
			wantsError: true,
		},
	}
}

func TestNewPath(t *testing.T) {
	for _, toPin := range pathTestCases() {
		testCase := toPin
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			p, err := NewPath(testCase.path)
			if testCase.wantsError {
				require.Error(t, err)
				assert.ErrorIs(t, err, status.ErrInvalidPath)
				assert.True(t, p.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, p.String())
		})
	}
}

func TestPathComposition(t *testing.T) {
	p := MustNewPath("dir/file")
	assert.Equal(t, filepath.Join("root", "dir", "file"), p.Under("root"))
	assert.Equal(t, "dir", p.Dir())
	assert.Equal(t, filepath.Join("dir", "file"), p.Local())

	assert.Panics(t, func() { MustNewPath("") })

	d, err := ParseDigest(testDigest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".BLOCKS", testDigest), BlockPath(d))
}
