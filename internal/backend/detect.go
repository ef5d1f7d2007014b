package backend

import (
	"database/sql"
	"slices"
)

// Info describes a session backend and whether this binary can serve it.
type Info struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// Available lists the backends linked into the process. Drivers registered
// with database/sql by other packages are served by the bridging backend.
func Available() []Info {
	infos := []Info{
		{Name: DriverPostgres, Kind: "postgres", Available: true},
		detectSQL(DriverOracle, "oracle"),
		detectSQL(DriverMySQL, "sql"),
		detectSQL(DriverSQLite, "sql"),
	}
	for _, name := range sql.Drivers() {
		if name == DriverOracle || name == DriverMySQL || name == DriverSQLite {
			continue
		}
		infos = append(infos, Info{Name: name, Kind: "sql", Available: true})
	}
	return infos
}

func detectSQL(name, kind string) Info {
	info := Info{Name: name, Kind: kind}
	if !registered(name) {
		info.Reason = "database/sql driver not registered"
		return info
	}
	info.Available = true
	return info
}

func registered(name string) bool {
	return slices.Contains(sql.Drivers(), name)
}
