package gsettings

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTool writes an executable shell script standing in for gsettings.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gsettings")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"true", 1, false},
		{"false\n", 0, false},
		{"uint32 3700", 3700, false},
		{"int32 -4", -4, false},
		{"@i 5", 5, false},
		{"12", 12, false},
		{"'standard'", 0, true},
		{"", 0, true},
		{"uint32 1 2", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseValue(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog("", []string{"pq-mode", "sharpness"})

	k, ok := c.Lookup("location-enabled")
	require.True(t, ok)
	assert.Equal(t, SchemaLocation, k.Schema)
	assert.Equal(t, "enabled", k.Name)

	k, ok = c.Resolve(DefaultPQSchema, "sharpness")
	require.True(t, ok)
	assert.Equal(t, "sharpness", k.Alias)

	assert.Equal(t, []string{SchemaColor, SchemaPrivacy, SchemaLocation, DefaultPQSchema}, c.Schemas())
	assert.Equal(t, []string{DefaultPQSchema}, c.Only(DefaultPQSchema).Schemas())
}

func TestNewCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog(
		Key{Alias: "a", Schema: "s", Name: "k"},
		Key{Alias: "a", Schema: "s", Name: "j"},
	)
	assert.Error(t, err)

	_, err = NewCatalog(Key{Alias: "a", Schema: "s"})
	assert.Error(t, err)
}

func TestReaderInt(t *testing.T) {
	tool := fakeTool(t, `
case "$3" in
  night-light-temperature) echo "uint32 3200" ;;
  night-light-enabled) echo "true" ;;
  *) echo "No such key '$3'" >&2; exit 1 ;;
esac
`)
	r := NewReader(DefaultCatalog("", []string{"pq-mode"}), tool)
	ctx := context.Background()

	v, err := r.Int(ctx, "night-light-temperature")
	require.NoError(t, err)
	assert.Equal(t, int64(3200), v)

	on, err := r.Bool(ctx, "night-light-enabled")
	require.NoError(t, err)
	assert.True(t, on)

	_, err = r.Int(ctx, "pq-mode")
	assert.ErrorContains(t, err, "No such key")

	_, err = r.Int(ctx, "not-catalogued")
	assert.Error(t, err)
}

func TestWatcherReportsCataloguedChanges(t *testing.T) {
	tool := fakeTool(t, `
if [ "$2" = "org.gnome.settings-daemon.plugins.color" ]; then
  echo "night-light-temperature: uint32 2700"
  echo "night-light-schedule-from: 20.0"
  echo "night-light-enabled: false"
fi
exec sleep 30
`)
	c := DefaultCatalog("", nil).Only(SchemaColor)
	w := NewWatcher(c, tool)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []Change
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(ch Change) {
			mu.Lock()
			got = append(got, ch)
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Change{
		{Alias: "night-light-temperature", Value: 2700},
		{Alias: "night-light-enabled", Value: 0},
	}, got)
}
