package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixed(fsType string, m Medium) fsDetector {
	return func(string) (string, Medium, error) { return fsType, m, nil }
}

func TestProbeMedia(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		fsType  string
		medium  Medium
		wantErr string
	}{
		{name: "local", fsType: "ext4", medium: MediumLocal},
		{name: "volatile passes", fsType: "tmpfs", medium: MediumVolatile},
		{name: "network rejected", fsType: "nfs", medium: MediumNetwork, wantErr: "PQD_STATE_PATH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "state.db")
			p, err := probeWith(path, fixed(tt.fsType, tt.medium))
			require.NoError(t, err)
			assert.Equal(t, tt.medium, p.Medium)

			err = p.Err(path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.fsType)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProbeUsesNearestExistingAncestor(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	var seen string
	_, err := probeWith(filepath.Join(root, "a", "b", "state.db"), func(p string) (string, Medium, error) {
		seen = p
		return "f2fs", MediumLocal, nil
	})
	require.NoError(t, err)
	assert.Equal(t, root, seen)
}

func TestProbeEmptyPath(t *testing.T) {
	_, err := ProbeStatePath("")
	assert.Error(t, err)
}

func TestMediumString(t *testing.T) {
	assert.Equal(t, "local", MediumLocal.String())
	assert.Equal(t, "network", MediumNetwork.String())
	assert.Equal(t, "volatile", MediumVolatile.String())
}
