package postgresql

// migrations returns the versioned schema for tree-flow storage. The unique
// indexes on step_connections back the application-level fan-out and
// duplicate-edge checks with storage-level guarantees.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS tree_flows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				slug VARCHAR(255) NOT NULL UNIQUE,
				active BOOLEAN NOT NULL DEFAULT true,
				json_version JSONB,
				template_version JSONB,
				canvas_layout JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_tree_flows_active ON tree_flows(active);
			CREATE INDEX IF NOT EXISTS idx_tree_flows_created_at ON tree_flows(created_at);
			CREATE INDEX IF NOT EXISTS idx_tree_flows_updated_at ON tree_flows(updated_at);

			CREATE TABLE IF NOT EXISTS steps (
				id VARCHAR(255) PRIMARY KEY,
				tree_flow_id VARCHAR(255) NOT NULL REFERENCES tree_flows(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				slug VARCHAR(255),
				is_entry_point BOOLEAN NOT NULL DEFAULT false,
				prompt TEXT,
				objective TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_steps_tree_flow_id ON steps(tree_flow_id);
			CREATE INDEX IF NOT EXISTS idx_steps_entry_point ON steps(tree_flow_id, is_entry_point);

			CREATE TABLE IF NOT EXISTS step_inputs (
				id VARCHAR(255) PRIMARY KEY,
				step_id VARCHAR(255) NOT NULL REFERENCES steps(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				input_type VARCHAR(32) NOT NULL DEFAULT 'any'
			);

			CREATE INDEX IF NOT EXISTS idx_step_inputs_step_id ON step_inputs(step_id);

			CREATE TABLE IF NOT EXISTS step_outputs (
				id VARCHAR(255) PRIMARY KEY,
				step_id VARCHAR(255) NOT NULL REFERENCES steps(id) ON DELETE CASCADE,
				name VARCHAR(255) NOT NULL,
				condition TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_step_outputs_step_id ON step_outputs(step_id);

			CREATE TABLE IF NOT EXISTS step_connections (
				id VARCHAR(255) PRIMARY KEY,
				tree_flow_id VARCHAR(255) NOT NULL REFERENCES tree_flows(id) ON DELETE CASCADE,
				source_output_id VARCHAR(255) NOT NULL REFERENCES step_outputs(id) ON DELETE CASCADE,
				target_input_id VARCHAR(255) NOT NULL REFERENCES step_inputs(id) ON DELETE CASCADE,
				source_step_id VARCHAR(255) NOT NULL,
				target_step_id VARCHAR(255) NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_step_connections_tree_flow_id ON step_connections(tree_flow_id);
			CREATE UNIQUE INDEX IF NOT EXISTS ux_step_connections_source ON step_connections(source_output_id);
			CREATE UNIQUE INDEX IF NOT EXISTS ux_step_connections_pair ON step_connections(source_output_id, target_input_id);
		`,
	}
}
