package integration

import (
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"flowjs-works/aslcompiler/internal/graph"
)

// sqlHook lowers sql.query(config)/sql.execute(config) to a Task invoking
// an RDS Data API-style integration, validating engine/dsn shape at
// compile time via the real driver DSN parsers — never opening a
// connection (spec.md §5, §4.10).
type sqlHook struct{}

func newSQLHook() *sqlHook { return &sqlHook{} }

func (h *sqlHook) Name() string { return "sql" }

func (h *sqlHook) Lower(call Call) (*graph.NodeState, error) {
	m, err := configMap(call, 0)
	if err != nil {
		return nil, err
	}
	engine, err := constString(call, m, "engine")
	if err != nil {
		return nil, err
	}
	dsn, err := constString(call, m, "dsn")
	if err != nil {
		return nil, err
	}

	switch engine {
	case "mysql":
		if _, err := mysql.ParseDSN(dsn); err != nil {
			return nil, configErr(call, "sql.%s: invalid mysql dsn: %v", call.Method, err)
		}
	case "postgres":
		if _, err := pq.ParseURL(dsn); err != nil {
			return nil, configErr(call, "sql.%s: invalid postgres dsn: %v", call.Method, err)
		}
	default:
		return nil, configErr(call, "sql.%s: unsupported engine %q, expected mysql or postgres", call.Method, engine)
	}

	statement, err := constString(call, m, "statement")
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"Engine":    engine,
		"Dsn":       dsn,
		"Statement": statement,
	}
	if args, ok := m["parameters"]; ok {
		params["Parameters"] = args
	}

	return &graph.NodeState{
		Type:       graph.TypeTask,
		Resource:   "arn:flowjs-works:integration:::sql:" + call.Method,
		Parameters: toParams(params),
	}, nil
}
