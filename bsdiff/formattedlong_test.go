package bsdiff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormattedLong_RoundTrip(t *testing.T) {
	cases := []int64{0, 1, -1, 255, -255, 1 << 40, -(1 << 40), 1<<62 - 1, -(1<<62 - 1)}

	for _, v := range cases {
		buf := FormattedLong(v)
		require.Equal(t, v, ParseFormattedLong(buf[:]))
	}
}

func TestFormattedLong_NegativeSetsTopBit(t *testing.T) {
	buf := FormattedLong(-5)
	require.Equal(t, byte(5), buf[0])
	require.Equal(t, byte(0x80), buf[7])
}

func TestFormattedLong_PositiveClearsTopBit(t *testing.T) {
	buf := FormattedLong(5)
	require.Equal(t, byte(5), buf[0])
	require.Equal(t, byte(0x00), buf[7])
}
