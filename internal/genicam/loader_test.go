package genicam

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURLFileScheme(t *testing.T) {
	u, err := ParseURL("file:/var/lib/camera/genicam.xml")
	require.NoError(t, err)
	assert.False(t, u.Local, "expected Local=false for file: scheme")
	assert.Equal(t, "/var/lib/camera/genicam.xml", u.Path)
}

func TestParseURLLocalScheme(t *testing.T) {
	u, err := ParseURL("local:genicam.xml;10000;2000")
	require.NoError(t, err)
	assert.True(t, u.Local, "expected Local=true for local: scheme")
	assert.EqualValues(t, 0x10000, u.Addr)
	assert.EqualValues(t, 0x2000, u.Size)
}

func TestParseURLCaseInsensitive(t *testing.T) {
	u, err := ParseURL("LOCAL:GENICAM.XML;FF;10")
	require.NoError(t, err)
	assert.True(t, u.Local)
}

func TestParseURLLocalMissingAddrFails(t *testing.T) {
	_, err := ParseURL("local:genicam.xml")
	assert.Error(t, err, "expected error for local: url missing address/size")
}

func TestParseURLTruncatesAtNUL(t *testing.T) {
	raw := "file:/tmp/genicam.xml\x00garbage-after-nul"
	u, err := ParseURL(raw)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/genicam.xml", u.Path)
}

func TestParseURLRejectsMalformed(t *testing.T) {
	_, err := ParseURL("http://example.com/genicam.xml")
	assert.Error(t, err, "expected error for unsupported scheme")
}

func TestLoadFileScheme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "genicam.xml")
	require.NoError(t, os.WriteFile(path, []byte("<RegisterDescription/>"), 0o644))

	data, err := Load(nil, URL{Local: false, Path: path})
	require.NoError(t, err)
	assert.Equal(t, "<RegisterDescription/>", string(data))
}

type fakeMemory struct {
	data []byte
}

func (f *fakeMemory) ReadMemory(address, count uint32) ([]byte, error) {
	out := make([]byte, count)
	copy(out, f.data)
	return out, nil
}

func TestLoadLocalSchemeTerminatesFinalByte(t *testing.T) {
	mem := &fakeMemory{data: []byte("<RegisterDescription/>")}
	data, err := Load(mem, URL{Local: true, Addr: 0x1000, Size: 32, hasAddr: true, hasSize: true})
	require.NoError(t, err)
	require.Len(t, data, 32)
	assert.Zero(t, data[len(data)-1], "expected final byte NUL-terminated")
}
