package hub_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	_ "github.com/moniker-data/moniker-go/pkg/adapters/hub"
	"github.com/moniker-data/moniker-go/pkg/moniker"
)

func TestAllAdaptersRegistered(t *testing.T) {
	t.Parallel()

	registered := moniker.RegisteredAdapters()
	for _, tag := range []string{
		"kafka", "mssql", "oracle", "postgres", "rest", "sheets", "snowflake", "static",
	} {
		assert.Contains(t, registered, tag)
	}

	for _, tag := range registered {
		a, err := moniker.AdapterFor(tag)
		assert.NoError(t, err)
		assert.NotNil(t, a)
	}
}
