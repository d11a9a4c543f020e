package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE executions (
				id UUID PRIMARY KEY,
				campaign_id VARCHAR(255) NOT NULL,
				lead_id VARCHAR(255) NOT NULL,
				template_id VARCHAR(255) NOT NULL,
				sequence_id UUID,
				step_index INT NOT NULL DEFAULT 0,
				channel VARCHAR(50) NOT NULL,
				scheduled_for TIMESTAMP WITH TIME ZONE NOT NULL,
				status VARCHAR(50) NOT NULL CHECK (status IN ('scheduled', 'executing', 'completed', 'failed')),
				attempts INT NOT NULL DEFAULT 0,
				last_attempt TIMESTAMP WITH TIME ZONE,
				error_message TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_executions_campaign_id ON executions(campaign_id);
			CREATE INDEX idx_executions_lead_id ON executions(lead_id);
			CREATE INDEX idx_executions_sequence_id ON executions(sequence_id);
			CREATE INDEX idx_executions_status ON executions(status);
			-- Due-scan index: status + scheduled_for drive the monitor tick
			CREATE INDEX idx_executions_due ON executions(status, scheduled_for);
		`,
		2: `
			CREATE TABLE recurrences (
				id UUID PRIMARY KEY,
				campaign_id VARCHAR(255) NOT NULL,
				lead_ids JSONB NOT NULL,
				cron_expression VARCHAR(255) NOT NULL,
				next_due_at TIMESTAMP WITH TIME ZONE NOT NULL,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_recurrences_due ON recurrences(active, next_due_at);

			CREATE TABLE communications (
				id UUID PRIMARY KEY,
				execution_id UUID NOT NULL,
				campaign_id VARCHAR(255) NOT NULL,
				lead_id VARCHAR(255) NOT NULL,
				template_id VARCHAR(255) NOT NULL,
				channel VARCHAR(50) NOT NULL,
				content JSONB NOT NULL,
				sent_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_communications_lead_id ON communications(lead_id);
			CREATE INDEX idx_communications_campaign_id ON communications(campaign_id);
		`,
	}
}
