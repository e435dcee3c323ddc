package postgres

import (
	"github.com/mlsmithjr/gurglefish/internal/schema"
	"github.com/mlsmithjr/gurglefish/internal/types"
)

func init() {
	schema.Register(types.VendorPostgres, func() types.SchemaDriver { return New() })
}
