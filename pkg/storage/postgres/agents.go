package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

const agentColumns = `id, name, type, provider, model, system_prompt,
	temperature, max_tokens, auto_reply, status, llm_call_count,
	last_active, last_llm_call`

func (s *Store) SaveAgent(ctx context.Context, worldID string, a *models.Agent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (world_id, `+agentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (world_id, id) DO UPDATE SET
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			provider = EXCLUDED.provider,
			model = EXCLUDED.model,
			system_prompt = EXCLUDED.system_prompt,
			temperature = EXCLUDED.temperature,
			max_tokens = EXCLUDED.max_tokens,
			auto_reply = EXCLUDED.auto_reply,
			status = EXCLUDED.status,
			llm_call_count = EXCLUDED.llm_call_count,
			last_active = EXCLUDED.last_active,
			last_llm_call = EXCLUDED.last_llm_call`,
		worldID, a.ID, a.Name, a.Type, string(a.Provider), a.Model,
		a.SystemPrompt, a.Temperature, a.MaxTokens, a.AutoReply,
		string(a.Status), a.LLMCallCount,
		nullTime(a.LastActive), nullTime(a.LastLLMCall))
	if err != nil {
		return fmt.Errorf("saving agent %s/%s: %w", worldID, a.ID, err)
	}
	return nil
}

func (s *Store) LoadAgent(ctx context.Context, worldID, agentID string) (*models.Agent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE world_id = $1 AND id = $2`,
		worldID, agentID)
	a, err := scanAgent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("loading agent %s/%s: %w", worldID, agentID, err)
	}
	return a, nil
}

func (s *Store) DeleteAgent(ctx context.Context, worldID, agentID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM agents WHERE world_id = $1 AND id = $2`, worldID, agentID)
	if err != nil {
		return fmt.Errorf("deleting agent %s/%s: %w", worldID, agentID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) ListAgents(ctx context.Context, worldID string) ([]*models.Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE world_id = $1 ORDER BY id`,
		worldID)
	if err != nil {
		return nil, fmt.Errorf("listing agents of world %s: %w", worldID, err)
	}
	defer rows.Close()

	var agents []*models.Agent
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning agent: %w", err)
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func scanAgent(r rowScanner) (*models.Agent, error) {
	var a models.Agent
	var provider, status string
	var lastActive, lastLLMCall sql.NullTime
	err := r.Scan(&a.ID, &a.Name, &a.Type, &provider, &a.Model,
		&a.SystemPrompt, &a.Temperature, &a.MaxTokens, &a.AutoReply,
		&status, &a.LLMCallCount, &lastActive, &lastLLMCall)
	if err != nil {
		return nil, err
	}
	a.Provider = models.Provider(provider)
	a.Status = models.AgentStatus(status)
	if lastActive.Valid {
		a.LastActive = lastActive.Time
	}
	if lastLLMCall.Valid {
		a.LastLLMCall = lastLLMCall.Time
	}
	return &a, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
