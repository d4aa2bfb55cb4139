package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCacheKeyFormats(t *testing.T) {
	assert.Equal(t, "5:100", RecordKey(5, 100))
	assert.Equal(t, "5:all", TenantListKey(5))
	assert.Equal(t, "5:", TenantPrefix(5))
}

func TestTenantPrefixCoversTenantKeys(t *testing.T) {
	prefix := TenantPrefix(5)

	assert.True(t, strings.HasPrefix(RecordKey(5, 100), prefix))
	assert.True(t, strings.HasPrefix(TenantListKey(5), prefix))
	assert.False(t, strings.HasPrefix(RecordKey(51, 100), prefix))
	assert.False(t, strings.HasPrefix(RecordKey(6, 100), prefix))
}
