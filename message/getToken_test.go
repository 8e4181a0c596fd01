package message

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetToken(t *testing.T) {
	token, err := GetToken()
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.NotEmpty(t, token.String())

}

func TestCalcETagIsStableAndSensitiveToPayload(t *testing.T) {
	require.Nil(t, CalcETag(nil))

	a := CalcETag([]byte("hello"))
	b := CalcETag([]byte("hello"))
	require.Equal(t, a, b)

	c := CalcETag([]byte("goodbye"))
	require.NotEqual(t, a, c)
}
