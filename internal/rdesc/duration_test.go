package rdesc

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationJSON(t *testing.T) {
	var rule Rule
	err := json.Unmarshal([]byte(`{"Act":"create_run","Timeout":"1m30s"}`), &rule)
	require.NoError(t, err)
	require.NotNil(t, rule.Timeout)
	assert.Equal(t, 90*time.Second, rule.Timeout.Duration)

	data, err := json.Marshal(Duration{Duration: 5 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, `"5m0s"`, string(data))

	err = json.Unmarshal([]byte(`"not-a-duration"`), &Duration{})
	assert.Error(t, err)
}
