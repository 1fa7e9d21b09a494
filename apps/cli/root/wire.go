package root

import (
	"github.com/queuex-cloud/queuex/apps/cli/cmd/auth"
	"github.com/queuex-cloud/queuex/apps/cli/cmd/company"
)

func init() {
	Root().AddCommand(auth.Command())
	Root().AddCommand(company.Command())
}
