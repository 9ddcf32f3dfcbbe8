package nlq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommafy(t *testing.T) {
	assert.Equal(t, "1,234,567.80", commafy(1234567.8, 2))
	assert.Equal(t, "930.00", commafy(930, 2))
	assert.Equal(t, "2,000", commafy(2000, 0))
	assert.Equal(t, "-1,500.50", commafy(-1500.5, 2))
	assert.Equal(t, "0.00", commafy(0, 2))
	assert.Equal(t, "999", commafy(999.4, 0))
}
