package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/agent-world/agentworld/pkg/models"
	"github.com/agent-world/agentworld/pkg/storage"
)

const worldColumns = `id, name, description, turn_limit, main_agent,
	chat_llm_provider, chat_llm_model, mcp_config, variables,
	current_chat_id, created_at, last_updated`

func (s *Store) SaveWorld(ctx context.Context, w *models.World) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO worlds (`+worldColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			turn_limit = EXCLUDED.turn_limit,
			main_agent = EXCLUDED.main_agent,
			chat_llm_provider = EXCLUDED.chat_llm_provider,
			chat_llm_model = EXCLUDED.chat_llm_model,
			mcp_config = EXCLUDED.mcp_config,
			variables = EXCLUDED.variables,
			current_chat_id = EXCLUDED.current_chat_id,
			last_updated = EXCLUDED.last_updated`,
		w.ID, w.Name, w.Description, w.TurnLimit, w.MainAgent,
		string(w.ChatLLMProvider), w.ChatLLMModel, w.MCPConfig, w.Variables,
		w.CurrentChatID, w.CreatedAt, w.LastUpdated)
	if err != nil {
		return fmt.Errorf("saving world %s: %w", w.ID, err)
	}
	return nil
}

func (s *Store) LoadWorld(ctx context.Context, worldID string) (*models.World, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+worldColumns+` FROM worlds WHERE id = $1`, worldID)
	w, err := scanWorld(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("loading world %s: %w", worldID, err)
	}
	return w, nil
}

func (s *Store) DeleteWorld(ctx context.Context, worldID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete of world %s: %w", worldID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM memory_archives WHERE world_id = $1`, worldID); err != nil {
		return fmt.Errorf("deleting archives of world %s: %w", worldID, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM worlds WHERE id = $1`, worldID)
	if err != nil {
		return fmt.Errorf("deleting world %s: %w", worldID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) ListWorlds(ctx context.Context) ([]*models.World, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+worldColumns+` FROM worlds ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing worlds: %w", err)
	}
	defer rows.Close()

	var worlds []*models.World
	for rows.Next() {
		w, err := scanWorld(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning world: %w", err)
		}
		worlds = append(worlds, w)
	}
	return worlds, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorld(r rowScanner) (*models.World, error) {
	var w models.World
	var provider string
	err := r.Scan(&w.ID, &w.Name, &w.Description, &w.TurnLimit, &w.MainAgent,
		&provider, &w.ChatLLMModel, &w.MCPConfig, &w.Variables,
		&w.CurrentChatID, &w.CreatedAt, &w.LastUpdated)
	if err != nil {
		return nil, err
	}
	w.ChatLLMProvider = models.Provider(provider)
	return &w, nil
}
