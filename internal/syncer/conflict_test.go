package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/vaultsync/internal/models"
)

func base(deviceID string, version int64, createdAt, updatedAt time.Time) models.BaseModel {
	return models.BaseModel{
		ID:        "e1",
		DeviceID:  deviceID,
		Version:   version,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
}

func TestDetectConflict(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	tests := []struct {
		name     string
		local    models.BaseModel
		remote   models.BaseModel
		want     models.ConflictType
		conflict bool
	}{
		{
			name:     "versions differ",
			local:    base("d1", 3, t0, t1),
			remote:   base("d1", 4, t0, t1),
			want:     models.ConflictTypeVersion,
			conflict: true,
		},
		{
			name:     "equal versions, differing device and timestamp",
			local:    base("d1", 3, t0, t0),
			remote:   base("d2", 3, t0, t1),
			want:     models.ConflictTypeData,
			conflict: true,
		},
		{
			name:     "equal versions, same device",
			local:    base("d1", 3, t0, t0),
			remote:   base("d1", 3, t0, t1),
			conflict: false,
		},
		{
			name:     "equal versions, same timestamp",
			local:    base("d1", 3, t0, t1),
			remote:   base("d2", 3, t0, t1),
			conflict: false,
		},
		{
			name:     "identical",
			local:    base("d1", 3, t0, t1),
			remote:   base("d1", 3, t0, t1),
			conflict: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := DetectConflict(tt.local, tt.remote)
			assert.Equal(t, tt.conflict, found)
			if tt.conflict {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestResolve_LastWriteWins(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	tests := []struct {
		name   string
		local  models.BaseModel
		remote models.BaseModel
		want   models.Resolution
	}{
		{"local newer", base("d1", 2, t0, t1), base("d2", 3, t0, t0), models.ResolutionUseLocal},
		{"remote newer", base("d1", 2, t0, t0), base("d2", 3, t0, t1), models.ResolutionUseRemote},
		{"tie goes to remote", base("d1", 2, t0, t1), base("d2", 3, t0, t1), models.ResolutionUseRemote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(models.StrategyLastWriteWins, tt.local, tt.remote)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_FirstWriteWins(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	got, err := Resolve(models.StrategyFirstWriteWins, base("d1", 2, t0, t1), base("d2", 3, t1, t0))
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionUseLocal, got)

	got, err = Resolve(models.StrategyFirstWriteWins, base("d1", 2, t1, t0), base("d2", 3, t0, t1))
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionUseRemote, got)
}

func TestResolve_ManualAndUnknown(t *testing.T) {
	t0 := time.Now().UTC()

	got, err := Resolve(models.StrategyManualResolve, base("d1", 1, t0, t0), base("d2", 2, t0, t0))
	require.NoError(t, err)
	assert.Equal(t, models.ResolutionManual, got)

	_, err = Resolve("merge_fields", base("d1", 1, t0, t0), base("d2", 2, t0, t0))
	require.Error(t, err)
}
