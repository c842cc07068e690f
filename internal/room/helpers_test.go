package room

import (
	"testing"

	"github.com/ringdb/ringdb/internal/xcrypto"
	"github.com/stretchr/testify/require"
)

func testUid(t *testing.T) xcrypto.Uid {
	t.Helper()
	uid, err := xcrypto.NewUid()
	require.NoError(t, err)
	return uid
}
