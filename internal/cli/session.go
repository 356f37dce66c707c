package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mesh-intelligence/websql/internal/paths"
	"github.com/mesh-intelligence/websql/internal/sqlite"
	"github.com/mesh-intelligence/websql/pkg/types"
	"github.com/mesh-intelligence/websql/pkg/websql"
)

// session is an attached bridge plus one open database.
type session struct {
	bridge *sqlite.Bridge
	db     *websql.Database
}

// attachBridge resolves the data directory and attaches a SQLite bridge to
// it. The caller must Detach it.
func (a *app) attachBridge() (*sqlite.Bridge, error) {
	dataDir, err := paths.ResolveDataDir(a.flags.dataDir, a.cfg.GetString(cfgKeyDataDir))
	if err != nil {
		return nil, fmt.Errorf("resolve data dir: %w", err)
	}
	cfg, err := bridgeConfig(a.cfg, dataDir)
	if err != nil {
		return nil, err
	}
	b := sqlite.NewBridge(sqlite.WithLogger(a.log))
	if err := b.Attach(cfg); err != nil {
		return nil, fmt.Errorf("attach bridge: %w", err)
	}
	return b, nil
}

// open attaches a bridge and opens name, expecting version ("" for any).
func (a *app) open(ctx context.Context, name, version string) (*session, error) {
	b, err := a.attachBridge()
	if err != nil {
		return nil, err
	}
	db, err := websql.OpenDatabase(ctx, b, name, version, name, 0, nil, websql.WithLogger(a.log))
	if err != nil {
		_ = b.Detach()
		return nil, err
	}
	return &session{bridge: b, db: db}, nil
}

func (s *session) close() error {
	if err := s.bridge.Detach(); err != nil {
		return fmt.Errorf("close %s: %w", s.db.Name(), err)
	}
	return nil
}

// closeInto runs fn and stores its error in *errp unless an earlier
// error is already there.
func closeInto(errp *error, fn func() error) {
	if err := fn(); err != nil && *errp == nil {
		*errp = err
	}
}

// parseArgs turns command-line statement arguments into bind values. Each
// is decoded as JSON when it parses and kept as a string otherwise.
func parseArgs(raw []string) []any {
	args := make([]any, 0, len(raw))
	for _, r := range raw {
		var v any
		if err := json.Unmarshal([]byte(r), &v); err != nil {
			v = r
		}
		args = append(args, v)
	}
	return args
}

// statementOutput is the JSON shape of one statement result.
type statementOutput struct {
	SQL          string      `json:"sql"`
	Columns      []string    `json:"columns"`
	Rows         []types.Row `json:"rows"`
	RowsAffected int64       `json:"rowsAffected"`
	InsertID     int64       `json:"insertId"`
}

func newStatementOutput(sql string, rs *types.ResultSet) statementOutput {
	return statementOutput{
		SQL:          sql,
		Columns:      rs.Rows.Columns(),
		Rows:         rs.Rows.All(),
		RowsAffected: rs.RowsAffected,
		InsertID:     rs.InsertID,
	}
}
