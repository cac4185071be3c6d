package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE agents (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				instruction TEXT NOT NULL,
				model_id VARCHAR(255) NOT NULL DEFAULT '',
				tools JSONB NOT NULL DEFAULT '[]',
				events_config JSONB,
				planning BOOLEAN NOT NULL DEFAULT false,
				temperature DOUBLE PRECISION,
				max_tokens INTEGER,
				workspace_id VARCHAR(255) NOT NULL DEFAULT '',
				created_by VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE tasks (
				id VARCHAR(255) PRIMARY KEY,
				agent_id VARCHAR(255) NOT NULL REFERENCES agents(id),
				query TEXT NOT NULL,
				parameters JSONB,
				status VARCHAR(50) NOT NULL,
				workflow_id VARCHAR(255) NOT NULL DEFAULT '',
				run_id VARCHAR(255) NOT NULL DEFAULT '',
				user_id VARCHAR(255) NOT NULL DEFAULT '',
				workspace_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_tasks_agent_id ON tasks(agent_id);
			CREATE INDEX idx_tasks_status ON tasks(status);

			CREATE TABLE triggers (
				id VARCHAR(255) PRIMARY KEY,
				agent_id VARCHAR(255) NOT NULL REFERENCES agents(id),
				trigger_type VARCHAR(50) NOT NULL CHECK (trigger_type IN ('cron', 'webhook')),
				is_active BOOLEAN NOT NULL DEFAULT true,
				webhook_id VARCHAR(255) UNIQUE,
				next_run_time TIMESTAMP WITH TIME ZONE,
				consecutive_failures INTEGER NOT NULL DEFAULT 0,
				definition JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_triggers_due ON triggers(next_run_time) WHERE is_active AND trigger_type = 'cron';

			CREATE TABLE trigger_executions (
				id VARCHAR(255) PRIMARY KEY,
				trigger_id VARCHAR(255) NOT NULL REFERENCES triggers(id) ON DELETE CASCADE,
				executed_at TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('success', 'failed', 'skipped', 'timeout')),
				task_id VARCHAR(255) NOT NULL DEFAULT '',
				execution_time_ms BIGINT NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				trigger_data JSONB,
				workflow_id VARCHAR(255) NOT NULL DEFAULT '',
				run_id VARCHAR(255) NOT NULL DEFAULT ''
			);

			CREATE INDEX idx_trigger_executions_trigger ON trigger_executions(trigger_id, executed_at DESC);
		`,
		2: `
			ALTER TABLE tasks ADD COLUMN result JSONB;
		`,
	}
}
