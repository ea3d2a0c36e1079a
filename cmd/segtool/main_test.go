package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"8403912", "https://www.strava.com/segments/13651993?filter=overall", " 8403912 "})
	require.NoError(t, err)
	assert.Equal(t, []int64{8403912, 13651993}, ids)

	_, err = parseIDs([]string{"hill"})
	assert.Error(t, err)
}

func TestLoadArgsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("# favorites\n16075927\n\nhttps://www.strava.com/segments/18422851 # bridge\n"), 0o600))

	ids, err := loadArgs([]string{"-file", path, "20575625"})
	require.NoError(t, err)
	assert.Equal(t, []int64{20575625, 16075927, 18422851}, ids)
}

func TestLoadArgsEmpty(t *testing.T) {
	_, err := loadArgs(nil)
	assert.ErrorContains(t, err, "no segment ids")
}

func TestReadList(t *testing.T) {
	lines, err := readList(strings.NewReader("1\n  # skip\n2 #two\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, lines)
}

func TestRunUsage(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, run(context.Background(), nil, &out))
	assert.Contains(t, out.String(), "usage: segtool")

	out.Reset()
	assert.ErrorContains(t, run(context.Background(), []string{"frobnicate"}, &out), "unknown command")

	out.Reset()
	assert.NoError(t, run(context.Background(), []string{"help"}, &out))
}
