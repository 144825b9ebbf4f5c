package api

import (
	"strconv"
	"testing"

	"github.com/peterldowns/testy/assert"

	"github.com/cloudx-io/scionauction/core"
)

func itoa(v uint64) string {
	return strconv.FormatUint(v, 10)
}

func mustRandom(t *testing.T) core.RandomSource {
	t.Helper()
	src, err := core.NewInsecureRandomSource([]byte("api-test"))
	assert.NoError(t, err)
	return src
}
