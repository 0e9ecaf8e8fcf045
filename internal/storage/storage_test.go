package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalPut(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, "/archive/")

	res, err := l.Put(context.Background(), strings.NewReader(`{"id":"evt_1"}`), PutInput{
		Key:         "webhooks/stripe/2024/05/01/evt_1.json",
		ContentType: "application/json",
	})
	require.NoError(t, err)
	assert.Equal(t, "webhooks/stripe/2024/05/01/evt_1.json", res.Key)
	assert.Equal(t, "/archive/webhooks/stripe/2024/05/01/evt_1.json", res.URL)

	b, err := os.ReadFile(filepath.Join(dir, "webhooks", "stripe", "2024", "05", "01", "evt_1.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"id":"evt_1"}`, string(b))
}

func TestLocalPutRejectsEscapingKeys(t *testing.T) {
	l := NewLocal(t.TempDir(), "")
	for _, key := range []string{"", "/etc/passwd", "../x", "a/../../x", "..", `a\b`} {
		_, err := l.Put(context.Background(), strings.NewReader("x"), PutInput{Key: key})
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()

	res, err := FromConfig(ctx, Config{})
	require.NoError(t, err)
	assert.Equal(t, "none", res.Driver)

	res, err = FromConfig(ctx, Config{Driver: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "local", res.Driver)

	_, err = FromConfig(ctx, Config{Driver: "s3"})
	assert.Error(t, err)

	_, err = FromConfig(ctx, Config{Driver: "ftp"})
	assert.Error(t, err)
}
