package tracer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed tracer that persists run telemetry for
// post-mortem inspection.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (or creates) the run database at dbPath.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	// WAL mode for concurrent readers while the run is writing.
	dsn := dbPath + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open run database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping run database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize run schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		agent_id   TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		task       TEXT,
		parent_id  TEXT,
		status     TEXT NOT NULL DEFAULT 'running',
		status_msg TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		message_id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id   TEXT NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_agent ON chat_messages(agent_id);

	CREATE TABLE IF NOT EXISTS tool_executions (
		execution_id INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id     TEXT NOT NULL,
		tool_name    TEXT NOT NULL,
		args_json    TEXT,
		status       TEXT NOT NULL DEFAULT 'running',
		result_json  TEXT,
		started_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exec_agent ON tool_executions(agent_id);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) LogAgentCreation(agentID, name, task, parentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().Unix()
	_, _ = s.db.Exec(`
		INSERT INTO agents (agent_id, name, task, parent_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'running', ?, ?)
		ON CONFLICT(agent_id) DO NOTHING`,
		agentID, name, task, nullable(parentID), now, now)
}

func (s *Store) UpdateAgentStatus(agentID string, status AgentStatus, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec(`
		UPDATE agents SET status = ?, status_msg = ?, updated_at = ? WHERE agent_id = ?`,
		string(status), nullable(message), time.Now().Unix(), agentID)
}

func (s *Store) LogChatMessage(agentID, role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.db.Exec(`
		INSERT INTO chat_messages (agent_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		agentID, role, content, time.Now().Unix())
}

func (s *Store) LogToolExecutionStart(agentID, toolName string, args map[string]any) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	argsJSON, _ := json.Marshal(args)
	now := time.Now().Unix()
	res, err := s.db.Exec(`
		INSERT INTO tool_executions (agent_id, tool_name, args_json, status, started_at, updated_at)
		VALUES (?, ?, ?, 'running', ?, ?)`,
		agentID, toolName, string(argsJSON), now, now)
	if err != nil {
		return 0
	}
	id, _ := res.LastInsertId()
	return id
}

func (s *Store) UpdateToolExecution(executionID int64, status string, result any) {
	if executionID == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	resultJSON, _ := json.Marshal(result)
	_, _ = s.db.Exec(`
		UPDATE tool_executions SET status = ?, result_json = ?, updated_at = ? WHERE execution_id = ?`,
		status, string(resultJSON), time.Now().Unix(), executionID)
}

// AgentRecord is a persisted agent row.
type AgentRecord struct {
	AgentID   string
	Name      string
	Task      string
	Status    string
	StatusMsg string
}

// GetAgent reads back a persisted agent record.
func (s *Store) GetAgent(ctx context.Context, agentID string) (*AgentRecord, error) {
	var rec AgentRecord
	var task, msg sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, name, task, status, status_msg FROM agents WHERE agent_id = ?`,
		agentID).Scan(&rec.AgentID, &rec.Name, &task, &rec.Status, &msg)
	if err != nil {
		return nil, err
	}
	rec.Task = task.String
	rec.StatusMsg = msg.String
	return &rec, nil
}

// ChatMessages reads back the recorded conversation for an agent, oldest first.
func (s *Store) ChatMessages(ctx context.Context, agentID string) ([]string, []string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM chat_messages WHERE agent_id = ? ORDER BY message_id`,
		agentID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var roles, contents []string
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, nil, err
		}
		roles = append(roles, role)
		contents = append(contents, content)
	}
	return roles, contents, rows.Err()
}

// ToolExecutions reads back recorded tool runs for an agent, oldest first.
func (s *Store) ToolExecutions(ctx context.Context, agentID string) ([]ToolExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, tool_name, args_json, status, started_at, updated_at
		FROM tool_executions WHERE agent_id = ? ORDER BY execution_id`,
		agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []ToolExecution
	for rows.Next() {
		var e ToolExecution
		var argsJSON sql.NullString
		var started, updated int64
		if err := rows.Scan(&e.ID, &e.ToolName, &argsJSON, &e.Status, &started, &updated); err != nil {
			return nil, err
		}
		e.AgentID = agentID
		e.StartedAt = time.Unix(started, 0)
		e.UpdatedAt = time.Unix(updated, 0)
		if argsJSON.Valid {
			_ = json.Unmarshal([]byte(argsJSON.String), &e.Args)
		}
		execs = append(execs, e)
	}
	return execs, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
