// Package hub registers every built-in source adapter. Import it for its
// side effects when a program should read all supported source types:
//
//	import _ "github.com/moniker-data/moniker-go/pkg/adapters/hub"
//
// Programs that only need specific sources can import the individual
// adapter packages instead and keep the dependency surface small.
package hub

import (
	_ "github.com/moniker-data/moniker-go/pkg/adapters/kafka"
	_ "github.com/moniker-data/moniker-go/pkg/adapters/mssql"
	_ "github.com/moniker-data/moniker-go/pkg/adapters/oracle"
	_ "github.com/moniker-data/moniker-go/pkg/adapters/postgres"
	_ "github.com/moniker-data/moniker-go/pkg/adapters/rest"
	_ "github.com/moniker-data/moniker-go/pkg/adapters/sheets"
	_ "github.com/moniker-data/moniker-go/pkg/adapters/snowflake"
	_ "github.com/moniker-data/moniker-go/pkg/adapters/static"
)
