package spantest_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fjell-io/spanner-orm/spantest"
)

func TestUniqueDatabaseID(t *testing.T) {
	a := spantest.UniqueDatabaseID()
	b := spantest.UniqueDatabaseID()

	// ids must satisfy the database id charset and length limits
	assert.Regexp(t, `^t_[0-9a-f]{12}$`, a)
	assert.NotEqual(t, a, b)
}
