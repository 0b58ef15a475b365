package timex

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{name: "string form", raw: `"2s"`, want: 2 * time.Second},
		{name: "compound string", raw: `"1h30m"`, want: 90 * time.Minute},
		{name: "integer nanoseconds", raw: `1000000000`, want: time.Second},
		{name: "bad string", raw: `"soon"`, wantErr: true},
		{name: "wrong type", raw: `true`, wantErr: true},
		{name: "not json", raw: `{`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := json.Unmarshal([]byte(tt.raw), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestDuration_MarshalRoundTrip(t *testing.T) {
	in := Duration{90 * time.Minute}
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, `"1h30m0s"`, string(raw))

	var out Duration
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, in.Duration, out.Duration)
}
