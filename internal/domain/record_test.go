package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLine = "2021-06-01 2021-06-20 X2 2021-06-15 [11,19,29,41,51,59] 0.42"

func TestRecord_Line(t *testing.T) {
	f := Feature{ID: "X2", EventStart: "2021-06-01", EventEnd: "2021-06-20"}
	rec := NewRecord(f, "2021-06-15", []float64{11, 19, 29, 41, 51, 59}, 0.4173)
	assert.Equal(t, testLine, rec.Line())
}

func TestRecord_LineRoundsValues(t *testing.T) {
	f := Feature{ID: "7", EventStart: "2020-03-01", EventEnd: "2020-03-10"}
	rec := NewRecord(f, "2020-04-02", []float64{0.012345, 0.1, 0.99999, 0, -0.00006, 1.5}, 1.006)
	assert.Equal(t, "2020-03-01 2020-03-10 7 2020-04-02 [0.0123,0.1,1,0,-0.0001,1.5] 1.01", rec.Line())
}

func TestParseRecord_RoundTripsLine(t *testing.T) {
	rec, err := ParseRecord(testLine)
	require.NoError(t, err)
	assert.Equal(t, "X2", rec.FeatureID)
	assert.Equal(t, "2021-06-15", rec.Date)
	assert.Equal(t, []float64{11, 19, 29, 41, 51, 59}, rec.Values)
	assert.Equal(t, 0.42, rec.Elapsed)
	assert.Equal(t, testLine, rec.Line())
}

func TestParseRecord_Invalid(t *testing.T) {
	for _, line := range []string{
		"",
		"Error: boom",
		"a b c d 1,2 0.1",
		"a b c d [1,x] 0.1",
		"a b c d [1,2] slow",
	} {
		_, err := ParseRecord(line)
		assert.Error(t, err, line)
	}
}

func TestHeaderAndErrorLines(t *testing.T) {
	assert.Equal(t, "Hylak ID: 42 ImageNum: 3", HeaderLine("Hylak ID", "42", 3))
	assert.Equal(t, "Error: catalog unavailable retry later", ErrorLine(errors.New("catalog unavailable\nretry later")))
}
