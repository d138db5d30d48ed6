package fixed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		raw     int64
		wantErr bool
	}{
		{name: "integer", in: "2", raw: 2_000_000_000_000_000_000},
		{name: "fraction", in: "0.0625", raw: 62_500_000_000_000_000},
		{name: "negative", in: "-1.5", raw: -1_500_000_000_000_000_000},
		{name: "zero", in: "0", raw: 0},
		{name: "garbage", in: "not a number", wantErr: true},
		{name: "too many decimals", in: "0.0000000000000000001", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(New(tt.raw)), "got %s", got)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "1.0625", MustParse("1.0625").String())
	assert.Equal(t, "0", Zero().String())
	assert.Equal(t, "-0.5", MustParse("-0.5").String())
}

func TestMulDownFloors(t *testing.T) {
	// 1 wei short of an exact product still floors down.
	a := New(3)
	b := MustParse("0.5")
	assert.True(t, a.MulDown(b).Equal(New(1)))

	assert.True(t, MustParse("2").MulDown(MustParse("3")).Equal(MustParse("6")))
	assert.True(t, Zero().MulDown(MustParse("3")).IsZero())
}

func TestDivDownFloors(t *testing.T) {
	assert.True(t, New(10).DivInt(3).Equal(New(3)))
	assert.True(t, MustParse("1").DivDown(MustParse("3")).Equal(MustParse("0.333333333333333333")))
}

func TestZeroValueIsUsable(t *testing.T) {
	var a Amount
	assert.True(t, a.IsZero())
	assert.True(t, a.Add(One()).Equal(One()))
}

func TestSumOfFloorsNeverExceedsFloorOfSum(t *testing.T) {
	price := MustParse("0.333333333333333333")
	parts := []Amount{MustParse("1.7"), MustParse("2.3"), MustParse("0.000000000000000007")}

	total := Zero()
	floorSum := Zero()
	for _, p := range parts {
		total = total.Add(p)
		floorSum = floorSum.Add(p.MulDown(price))
	}
	assert.LessOrEqual(t, floorSum.Cmp(total.MulDown(price)), 0)
}

func TestBinaryRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1.0625", "-2.5", "123456789.987654321"} {
		in := MustParse(s)
		raw, err := in.MarshalBinary()
		require.NoError(t, err)
		var out Amount
		require.NoError(t, out.UnmarshalBinary(raw))
		assert.True(t, in.Equal(out))
	}
}

func TestTextRoundTrip(t *testing.T) {
	in := MustParse("42.000000000000000001")
	raw, err := in.MarshalText()
	require.NoError(t, err)
	var out Amount
	require.NoError(t, out.UnmarshalText(raw))
	assert.True(t, in.Equal(out))
}
