package calc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScenarios(t *testing.T) {
	testCases := []struct {
		present  int
		total    int
		percent  float64
		required int
		canMiss  int
	}{
		{present: 22, total: 29, percent: 75.86, required: 0, canMiss: 0},
		{present: 10, total: 20, percent: 50, required: 20, canMiss: 0},
		{present: 0, total: 0, percent: 0, required: 1, canMiss: 0},
		{present: 3, total: 4, percent: 75, required: 0, canMiss: 0},
		{present: 40, total: 40, percent: 100, required: 0, canMiss: 13},
		{present: 0, total: 10, percent: 0, required: 30, canMiss: 0},
		{present: 1, total: 3, percent: 33.33, required: 5, canMiss: 0},
	}

	for _, test := range testCases {
		require.Equal(t, test.percent, Percent(test.present, test.total), "percent %d/%d", test.present, test.total)
		require.Equal(t, test.required, Required(test.present, test.total), "required %d/%d", test.present, test.total)
		require.Equal(t, test.canMiss, CanMiss(test.present, test.total), "canMiss %d/%d", test.present, test.total)
	}
}

func TestCanMissInvalid(t *testing.T) {
	require.Equal(t, 0, CanMiss(5, 0))
	require.Equal(t, 0, CanMiss(-1, 10))
	require.Equal(t, 0, CanMiss(5, -3))
}

func TestMetricAgreement(t *testing.T) {
	for total := 0; total <= 500; total++ {
		for present := 0; present <= total; present++ {
			required := Required(present, total)
			percent := Percent(present, total)

			if (required == 0) != (percent >= Threshold) {
				t.Fatalf("required=%d but percent=%v for %d/%d", required, percent, present, total)
			}
			if after := Percent(present+required, total+required); after < Threshold {
				t.Fatalf("attending %d more of %d/%d only reaches %v", required, present, total, after)
			}
			if total <= 60 {
				require.Equal(t, requiredIterative(present, total), required, "%d/%d", present, total)
			}

			// missing CanMiss more classes must still keep the threshold
			canMiss := CanMiss(present, total)
			if total > 0 && percent >= Threshold {
				require.GreaterOrEqual(t, float64(present)/float64(total+canMiss), 0.75, "%d/%d", present, total)
				require.Less(t, float64(present)/float64(total+canMiss+1), 0.75, "%d/%d", present, total)
			}
		}
	}
}

func TestDerive(t *testing.T) {
	require.Equal(t, Metrics{
		Absent:   7,
		Percent:  75.86,
		Margin:   0,
		Required: 0,
	}, Derive(22, 29))

	require.Equal(t, 0, Absent(5, 3))
}
