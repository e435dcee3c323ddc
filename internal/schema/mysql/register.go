package mysql

import (
	"github.com/mlsmithjr/gurglefish/internal/schema"
	"github.com/mlsmithjr/gurglefish/internal/types"
)

func init() {
	schema.Register(types.VendorMySQL, func() types.SchemaDriver { return New() })
}
