package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moniker-data/moniker-go/pkg/moniker"
)

func TestBuildDSN(t *testing.T) {
	t.Parallel()

	params := map[string]any{"postgres_user": "u", "postgres_password": "pw"}
	tests := []struct {
		name    string
		conn    map[string]any
		params  map[string]any
		want    string
		wantErr bool
	}{
		{
			name: "explicit dsn wins without credentials",
			conn: map[string]any{"dsn": "postgres://other:pw@db9/app", "host": "ignored"},
			want: "postgres://other:pw@db9/app",
		},
		{
			name:   "assembled from parts",
			conn:   map[string]any{"host": "db1", "port": 5433, "database": "app"},
			params: params,
			want:   "postgres://u:pw@db1:5433/app",
		},
		{
			name:   "defaults fill host and port",
			conn:   map[string]any{"database": "app"},
			params: params,
			want:   "postgres://u:pw@localhost:5432/app",
		},
		{
			name:    "missing database",
			conn:    map[string]any{"host": "db1"},
			params:  params,
			wantErr: true,
		},
		{
			name:    "assembled parts need credentials",
			conn:    map[string]any{"database": "app"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := moniker.DefaultConfig()
			got, err := BuildDSN(tt.conn, tt.params, &cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, moniker.ErrConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	got := BuildQuery("SELECT * FROM events", map[string]any{"limit": 50, "kind": "click"})
	assert.Equal(t, "SELECT * FROM events WHERE kind = 'click' LIMIT 50", got)
}

func TestCredentials(t *testing.T) {
	t.Parallel()

	cfg := moniker.DefaultConfig()
	cfg.Credentials = map[string]string{
		"postgres_user":     "cfg_user",
		"postgres_password": "cfg_pass",
	}

	user, pass, err := credentials(nil, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "cfg_user", user)
	assert.Equal(t, "cfg_pass", pass)

	user, _, err = credentials(map[string]any{"postgres_user": "param_user"}, &cfg)
	require.NoError(t, err)
	assert.Equal(t, "param_user", user)

	bare := moniker.DefaultConfig()
	_, _, err = credentials(nil, &bare)
	assert.ErrorIs(t, err, moniker.ErrConfiguration)
}
