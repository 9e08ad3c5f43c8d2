package biometrics

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// writeScript 在临时目录写一个可执行脚本，充当外部进程
func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o755))
	return path
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "work dir must be cleaned up")
}

var jpegFrame = base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10})

func TestVideoAssembler_Assemble(t *testing.T) {
	encoder := writeScript(t, "encoder.sh", `#!/usr/bin/env bash
for last; do :; done
n=$(ls "$(dirname "$last")"/frame_*.jpg | wc -l)
printf "frames=%d" "$n" > "$last"
`)
	tmp := t.TempDir()
	a := NewVideoAssembler(encoder, 5, tmp, zap.NewNop())

	video, err := a.Assemble(context.Background(), []string{jpegFrame, "data:image/jpeg;base64," + jpegFrame, jpegFrame})
	require.NoError(t, err)
	assert.Equal(t, "frames=3", string(video))
	assertEmptyDir(t, tmp)
}

func TestVideoAssembler_EncoderFailure(t *testing.T) {
	encoder := writeScript(t, "encoder.sh", "#!/usr/bin/env bash\necho 'boom' 1>&2\nexit 3\n")
	tmp := t.TempDir()
	a := NewVideoAssembler(encoder, 5, tmp, zap.NewNop())

	_, err := a.Assemble(context.Background(), []string{jpegFrame})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncoding)
	assert.Contains(t, err.Error(), "code 3")
	assert.Contains(t, err.Error(), "boom")
	assertEmptyDir(t, tmp)
}

func TestVideoAssembler_BadFrame(t *testing.T) {
	tmp := t.TempDir()
	a := NewVideoAssembler("/nonexistent/ffmpeg", 5, tmp, zap.NewNop())

	_, err := a.Assemble(context.Background(), []string{"!!not base64!!"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEncoding)
	assertEmptyDir(t, tmp)
}

func TestVideoAssembler_NoFrames(t *testing.T) {
	a := NewVideoAssembler("", 0, "", zap.NewNop())
	_, err := a.Assemble(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestDecodeFrame_Unpadded(t *testing.T) {
	raw := base64.RawStdEncoding.EncodeToString([]byte("ab"))
	data, err := decodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(data))
}
