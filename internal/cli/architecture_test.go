package cli

import (
	"testing"

	"lineagecore/testutil"
)

func TestCommandsAvoidInfra(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InfraImportForbidden, "commands select backends through core and blob")
}
