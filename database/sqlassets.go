package sqlassets

import _ "embed"

//go:embed schema/control_plane/companies.sql
var CompaniesSQL string

//go:embed schema/tenant/tenant_tables.sql
var TenantTablesSQL string

//go:embed schema/tenant/branch_tables.sql
var BranchTablesSQL string
