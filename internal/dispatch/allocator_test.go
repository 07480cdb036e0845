package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate_SingleVehicle(t *testing.T) {
	tests := []struct {
		groupSize int
		expected  VehicleClass
	}{
		{1, TukTuk},
		{2, TukTuk},
		{3, UMMJeep},
		{4, UMMJeep},
		{5, PremiumVan},
		{6, PremiumVan},
	}

	for _, tc := range tests {
		t.Run(string(tc.expected), func(t *testing.T) {
			a, err := Allocate(tc.groupSize)
			require.NoError(t, err)
			assert.Equal(t, 1, a.VehicleCount)
			require.Len(t, a.Fleet, 1)
			assert.Equal(t, tc.expected, a.Fleet[0].Class)
			assert.Equal(t, tc.groupSize, a.Fleet[0].Passengers)
			assert.False(t, a.IsMultiVehicle())
		})
	}
}

func TestAllocate_SevenIsFirstMultiVehicle(t *testing.T) {
	a, err := Allocate(7)
	require.NoError(t, err)

	assert.Equal(t, 2, a.VehicleCount)
	assert.True(t, a.IsMultiVehicle())
	assert.Equal(t, []Assignment{
		{Class: PremiumVan, Passengers: 6},
		{Class: TukTuk, Passengers: 1},
	}, a.Breakdown())
	assert.Equal(t, "1 x Premium Van (6) + 1 x Tuk Tuk (1)", a.Summary)
}

func TestAllocate_Eight(t *testing.T) {
	a, err := Allocate(8)
	require.NoError(t, err)

	assert.Equal(t, 2, a.VehicleCount)
	assert.Equal(t, []Line{
		{Class: PremiumVan, Count: 1, Passengers: 6},
		{Class: TukTuk, Count: 1, Passengers: 2},
	}, a.Fleet)
	assert.Equal(t, "1 x Premium Van (6) + 1 x Tuk Tuk (2)", a.Summary)
}

func TestAllocate_ExactVans(t *testing.T) {
	a, err := Allocate(12)
	require.NoError(t, err)

	assert.Equal(t, 2, a.VehicleCount)
	assert.Equal(t, []Line{{Class: PremiumVan, Count: 2, Passengers: 6}}, a.Fleet)
	assert.Len(t, a.Breakdown(), 2)
	assert.Equal(t, "2 x Premium Van (6)", a.Summary)
}

func TestAllocate_Thirteen(t *testing.T) {
	a, err := Allocate(13)
	require.NoError(t, err)

	assert.Equal(t, 3, a.VehicleCount)
	assert.Equal(t, []Assignment{
		{Class: PremiumVan, Passengers: 6},
		{Class: PremiumVan, Passengers: 6},
		{Class: TukTuk, Passengers: 1},
	}, a.Breakdown())
}

func TestAllocate_RemainderClasses(t *testing.T) {
	tests := []struct {
		groupSize int
		last      VehicleClass
		count     int
	}{
		{9, UMMJeep, 2},
		{10, UMMJeep, 2},
		{11, PremiumVan, 2},
		{50, TukTuk, 9},
	}

	for _, tc := range tests {
		a, err := Allocate(tc.groupSize)
		require.NoError(t, err)
		assert.Equal(t, tc.count, a.VehicleCount, "group %d", tc.groupSize)
		assert.Equal(t, tc.last, a.Fleet[len(a.Fleet)-1].Class, "group %d", tc.groupSize)
	}
}

func TestAllocate_CarriesEveryPassenger(t *testing.T) {
	for n := 1; n <= MaxGroupSize; n++ {
		a, err := Allocate(n)
		require.NoError(t, err)

		seated := 0
		assert.LessOrEqual(t, len(a.Fleet), 2)
		for _, as := range a.Breakdown() {
			assert.LessOrEqual(t, as.Passengers, as.Class.Capacity())
			seated += as.Passengers
		}
		assert.Equal(t, n, seated)
		assert.Equal(t, (n+5)/6, a.VehicleCount)
	}
}

func TestAllocate_InvalidGroupSize(t *testing.T) {
	_, err := Allocate(0)
	assert.Equal(t, ErrInvalidGroupSize, err)

	_, err = Allocate(-3)
	assert.Equal(t, ErrInvalidGroupSize, err)
}

func TestGuidance(t *testing.T) {
	single, _ := Allocate(3)
	assert.Equal(t, "We'll send a UMM Jeep for your group of 3.", single.Guidance())

	two, _ := Allocate(7)
	assert.Contains(t, two.Guidance(), "2 vehicles")

	many, _ := Allocate(20)
	assert.Contains(t, many.Guidance(), "4 coordinated vehicles")
}
