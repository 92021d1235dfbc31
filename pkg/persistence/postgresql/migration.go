package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(50) NOT NULL,
				trigger_config JSONB,
				flow JSONB NOT NULL DEFAULT '{}',
				error_handling JSONB NOT NULL DEFAULT '{}',
				is_active BOOLEAN NOT NULL DEFAULT false,
				execution_count BIGINT NOT NULL DEFAULT 0,
				success_count BIGINT NOT NULL DEFAULT 0,
				last_executed_at TIMESTAMP WITH TIME ZONE,
				version INTEGER NOT NULL DEFAULT 1,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_trigger_type ON workflows(trigger_type);
			CREATE INDEX idx_workflows_is_active ON workflows(is_active);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE executions (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL,
				trigger_event VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				context JSONB,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				error_message TEXT NOT NULL DEFAULT '',
				node_failures JSONB
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_started_at ON executions(started_at);

			CREATE TABLE pending_resumes (
				id UUID PRIMARY KEY,
				kind VARCHAR(50) NOT NULL,
				workflow_id UUID NOT NULL,
				execution_id UUID,
				node_id VARCHAR(255),
				resume_at TIMESTAMP WITH TIME ZONE NOT NULL,
				context JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_pending_resumes_resume_at ON pending_resumes(resume_at);

			CREATE TABLE batched_events (
				id BIGSERIAL PRIMARY KEY,
				workflow_id UUID NOT NULL,
				payload JSONB,
				arrived_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_batched_events_workflow_id ON batched_events(workflow_id);

			CREATE TABLE schedules (
				id UUID PRIMARY KEY,
				workflow_id UUID NOT NULL UNIQUE,
				cron_expression VARCHAR(255) NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_schedules_next_due_at ON schedules(next_due_at);

			CREATE TABLE automation_rules (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				trigger_event VARCHAR(255) NOT NULL,
				trigger_conditions JSONB,
				action JSONB NOT NULL DEFAULT '{}',
				is_active BOOLEAN NOT NULL DEFAULT false,
				execution_count BIGINT NOT NULL DEFAULT 0,
				last_executed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_automation_rules_trigger_event ON automation_rules(trigger_event);
			CREATE INDEX idx_automation_rules_is_active ON automation_rules(is_active);

			CREATE TABLE workflow_templates (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				trigger_type VARCHAR(50) NOT NULL,
				trigger_config JSONB,
				flow JSONB NOT NULL DEFAULT '{}',
				error_handling JSONB NOT NULL DEFAULT '{}'
			);
		`,
	}
}
