package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePHY(t *testing.T) {
	tests := []struct {
		input   string
		want    PHY
		wantErr bool
	}{
		{input: "1m", want: PHY1M},
		{input: "2M", want: PHY2M},
		{input: " coded ", want: PHYCoded},
		{input: "4", want: PHYCoded},
		{input: "3", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePHY(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSubscriptionKind(t *testing.T) {
	k, err := ParseSubscriptionKind("Indication")
	require.NoError(t, err)
	assert.Equal(t, SubscribeIndication, k)

	k, err = ParseSubscriptionKind("notify")
	require.NoError(t, err)
	assert.Equal(t, SubscribeNotification, k)

	_, err = ParseSubscriptionKind("broadcast")
	assert.Error(t, err)
}

func TestConnectionErrorIs(t *testing.T) {
	err := fmt.Errorf("connect: %w", &ConnectionError{State: NotConnected, Msg: "link lost"})

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NotErrorIs(t, err, ErrAlreadyConnected)
	assert.True(t, IsConnectionState(err, NotConnected))
	assert.Equal(t, "not_connected: link lost", errors.Unwrap(err).Error())
}

func TestCommandErrorUnwraps(t *testing.T) {
	err := &CommandError{Command: "set_phy", Err: ErrUnsupported}
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.Equal(t, "set_phy: unsupported", err.Error())
}

func TestParseUUID(t *testing.T) {
	u, err := ParseUUID("BBB99E70-FFF7-46CF-ABC7-2D32C71820F2")
	require.NoError(t, err)
	assert.Equal(t, "bbb99e70fff746cfabc72d32c71820f2", u.String())
	assert.Equal(t, "bbb99e70", ShortenUUID(u))

	short, err := ParseUUID("0x2902")
	require.NoError(t, err)
	assert.Equal(t, "2902", short.String())

	_, err = ParseUUID("")
	assert.Error(t, err)
	_, err = ParseUUID("xyz")
	assert.Error(t, err)
}

func TestSameUUID(t *testing.T) {
	a, _ := ParseUUID("2902")
	b, _ := ParseUUID("2902")
	c, _ := ParseUUID("2901")

	assert.True(t, SameUUID(a, b))
	assert.False(t, SameUUID(a, c))
	assert.False(t, SameUUID(a, nil))
	assert.True(t, SameUUID(nil, nil))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "<nil>", Describe(nil))
	assert.Equal(t, "procedure_completed result=0x0401", Describe(ProcedureCompletedEvent{Result: 0x0401}))
	assert.Equal(t, "characteristic_value char=7 kind=indication len=3",
		Describe(CharacteristicValueEvent{Characteristic: 7, Kind: DeliveredIndication, Value: []byte{1, 2, 3}}))
}
